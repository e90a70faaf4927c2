// Package attachments validates file references crossing a worker-invocation
// boundary against the receiving worker's declared policy.
package attachments

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"worker-cli/internal/sandbox"
)

// Policy constrains inbound attachments for one worker.
type Policy struct {
	MaxCount        int      `yaml:"max_count"`
	MaxBytes        int64    `yaml:"max_bytes"`
	AllowedSuffixes []string `yaml:"allowed_suffixes,omitempty"`
	DeniedSuffixes  []string `yaml:"denied_suffixes,omitempty"`
}

// DefaultPolicy mirrors the limits applied when a definition declares none.
func DefaultPolicy() Policy {
	return Policy{MaxCount: 4, MaxBytes: 10_000_000}
}

// Spec names a file inside a declared sandbox, as supplied by the caller.
type Spec struct {
	Sandbox string
	Path    string
}

func (s Spec) String() string {
	return s.Sandbox + ":" + s.Path
}

// Payload is a validated attachment. Immutable once produced.
type Payload struct {
	Sandbox      string
	Path         string
	AbsolutePath string
	Bytes        int64
}

// Problem describes one failing spec.
type Problem struct {
	Spec   Spec
	Reason string
}

// ValidationError lists every failing spec so callers can report all problems
// at once instead of fixing them one by one.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "attachment validation failed"
	}
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		if p.Spec.Sandbox == "" && p.Spec.Path == "" {
			parts = append(parts, p.Reason)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", p.Spec, p.Reason))
	}
	return "attachment validation failed: " + strings.Join(parts, "; ")
}

// Validate checks every spec against the policy and the invocation's sandbox
// handles. It is pure with respect to the filesystem (stat only, no writes)
// and returns either the full payload set or the full problem set, never a
// partial mix.
func Validate(specs []Spec, policy Policy, boxes *sandbox.Manager) ([]Payload, error) {
	var problems []Problem
	payloads := make([]Payload, 0, len(specs))

	if policy.MaxCount >= 0 && len(specs) > policy.MaxCount {
		names := make([]string, 0, len(specs))
		for _, s := range specs {
			names = append(names, s.String())
		}
		problems = append(problems, Problem{
			Reason: fmt.Sprintf("attachment count %d exceeds limit %d (%s)",
				len(specs), policy.MaxCount, strings.Join(names, ", ")),
		})
	}

	var total int64
	for _, spec := range specs {
		if boxes == nil {
			problems = append(problems, Problem{Spec: spec, Reason: "no sandboxes declared"})
			continue
		}
		handle, err := boxes.Handle(spec.Sandbox)
		if err != nil {
			problems = append(problems, Problem{Spec: spec, Reason: err.Error()})
			continue
		}
		abs, size, err := handle.Stat(spec.Path)
		if err != nil {
			problems = append(problems, Problem{Spec: spec, Reason: err.Error()})
			continue
		}
		if reason := checkSuffix(spec.Path, policy); reason != "" {
			problems = append(problems, Problem{Spec: spec, Reason: reason})
			continue
		}
		total += size
		payloads = append(payloads, Payload{
			Sandbox:      spec.Sandbox,
			Path:         spec.Path,
			AbsolutePath: abs,
			Bytes:        size,
		})
	}

	if policy.MaxBytes > 0 && total > policy.MaxBytes {
		problems = append(problems, Problem{
			Reason: fmt.Sprintf("attachments total %d bytes, limit %d", total, policy.MaxBytes),
		})
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return payloads, nil
}

func checkSuffix(p string, policy Policy) string {
	suffix := strings.ToLower(path.Ext(filepath.ToSlash(p)))
	if len(policy.AllowedSuffixes) > 0 && !containsSuffix(policy.AllowedSuffixes, suffix) {
		return fmt.Sprintf("suffix %q not in allow-list", suffix)
	}
	if containsSuffix(policy.DeniedSuffixes, suffix) {
		return fmt.Sprintf("suffix %q is denied", suffix)
	}
	return ""
}

func containsSuffix(list []string, suffix string) bool {
	for _, s := range list {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		if s == suffix {
			return true
		}
	}
	return false
}
