package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Sandbox access modes.
const (
	ModeReadOnly  = "ro"
	ModeReadWrite = "rw"
)

// DefaultMaxBytes caps file content when a sandbox declares no limit.
const DefaultMaxBytes = 2_000_000

// Config is the declared shape of a sandbox inside a worker definition.
type Config struct {
	Root            string   `yaml:"root"`
	Mode            string   `yaml:"mode"`
	AllowedSuffixes []string `yaml:"allowed_suffixes,omitempty"`
	MaxBytes        int64    `yaml:"max_bytes,omitempty"`
}

// Handle is a runtime-resolved sandbox. Exactly one exists per declared
// sandbox per invocation; handles are never shared across invocations.
type Handle struct {
	name            string
	root            string
	readOnly        bool
	allowedSuffixes []string
	maxBytes        int64
}

// NewHandle resolves a sandbox config against the filesystem. The root is
// made absolute and symlink-canonical up front so later prefix checks compare
// like with like.
func NewHandle(name string, cfg Config) (*Handle, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = ModeReadOnly
	}
	if mode != ModeReadOnly && mode != ModeReadWrite {
		return nil, fmt.Errorf("sandbox %q: mode must be %q or %q, got %q", name, ModeReadOnly, ModeReadWrite, cfg.Mode)
	}
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("sandbox %q: root is required", name)
	}
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("sandbox %q: resolve root: %w", name, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox %q: create root: %w", name, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox %q: canonicalize root: %w", name, err)
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Handle{
		name:            name,
		root:            canonical,
		readOnly:        mode == ModeReadOnly,
		allowedSuffixes: lowerSuffixes(cfg.AllowedSuffixes),
		maxBytes:        maxBytes,
	}, nil
}

func (h *Handle) Name() string    { return h.name }
func (h *Handle) Root() string    { return h.root }
func (h *Handle) ReadOnly() bool  { return h.readOnly }
func (h *Handle) MaxBytes() int64 { return h.maxBytes }

// Resolve maps a sandbox-relative path to an absolute one. Absolute input,
// any normalized form starting with a parent segment, and symlinks pointing
// outside the root all fail with EscapeError.
func (h *Handle) Resolve(relative string) (string, error) {
	if filepath.IsAbs(relative) || strings.HasPrefix(filepath.ToSlash(relative), "/") {
		return "", EscapeError{Sandbox: h.name, Path: relative}
	}
	cleaned := path.Clean(filepath.ToSlash(relative))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", EscapeError{Sandbox: h.name, Path: relative}
	}
	joined := filepath.Join(h.root, filepath.FromSlash(cleaned))

	// Symlinks may have appeared after the root was configured; canonicalize
	// the deepest existing ancestor and re-check the prefix.
	canonical, err := canonicalizeExisting(joined)
	if err != nil {
		return "", fmt.Errorf("sandbox %q: resolve %q: %w", h.name, relative, err)
	}
	if !within(h.root, canonical) {
		return "", EscapeError{Sandbox: h.name, Path: relative}
	}
	return canonical, nil
}

// Stat resolves a relative path and returns its absolute form plus size.
func (h *Handle) Stat(relative string) (string, int64, error) {
	abs, err := h.Resolve(relative)
	if err != nil {
		return "", 0, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", 0, err
	}
	if info.IsDir() {
		return "", 0, fmt.Errorf("sandbox %q: %q is a directory", h.name, relative)
	}
	return abs, info.Size(), nil
}

// ReadText returns file content after mode-independent suffix and size checks.
func (h *Handle) ReadText(relative string) (string, error) {
	abs, size, err := h.Stat(relative)
	if err != nil {
		return "", err
	}
	if err := h.checkSuffix(relative); err != nil {
		return "", err
	}
	if size > h.maxBytes {
		return "", SizeError{Sandbox: h.name, Path: relative, Size: size, Limit: h.maxBytes}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteText writes content under the sandbox root. All checks run before any
// I/O so a rejected write leaves the filesystem untouched.
func (h *Handle) WriteText(relative, content string) error {
	if h.readOnly {
		return ModeError{Sandbox: h.name, Path: relative, Operation: "write"}
	}
	abs, err := h.Resolve(relative)
	if err != nil {
		return err
	}
	if err := h.checkSuffix(relative); err != nil {
		return err
	}
	if size := int64(len(content)); size > h.maxBytes {
		return SizeError{Sandbox: h.name, Path: relative, Size: size, Limit: h.maxBytes}
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, []byte(content), 0o644)
}

// List returns sorted root-relative slash paths matching the glob pattern.
// Absolute paths never leak out, so callers learn nothing about the host
// filesystem layout.
func (h *Handle) List(pattern string) ([]string, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = "**"
	}
	var matches []string
	err := filepath.WalkDir(h.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(h.root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if matchPattern(pattern, rel) {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (h *Handle) checkSuffix(relative string) error {
	if len(h.allowedSuffixes) == 0 {
		return nil
	}
	suffix := strings.ToLower(path.Ext(filepath.ToSlash(relative)))
	for _, allowed := range h.allowedSuffixes {
		if suffix == allowed {
			return nil
		}
	}
	return SuffixError{Sandbox: h.name, Path: relative, Suffix: suffix}
}

// matchPattern supports plain glob segments plus the ** wildcard for
// arbitrary-depth matching.
func matchPattern(pattern, rel string) bool {
	if pattern == "**" || pattern == "**/*" {
		return true
	}
	if strings.HasPrefix(pattern, "**/") {
		tail := strings.TrimPrefix(pattern, "**/")
		if ok, _ := path.Match(tail, path.Base(rel)); ok {
			return true
		}
	}
	ok, err := path.Match(pattern, rel)
	return err == nil && ok
}

// canonicalizeExisting resolves symlinks along the deepest existing ancestor
// of target and re-joins the not-yet-existing tail.
func canonicalizeExisting(target string) (string, error) {
	existing := target
	var tail []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		tail = append([]string{filepath.Base(existing)}, tail...)
		existing = parent
	}
	canonical, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	if len(tail) == 0 {
		return canonical, nil
	}
	return filepath.Join(append([]string{canonical}, tail...)...), nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func lowerSuffixes(suffixes []string) []string {
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		out = append(out, s)
	}
	return out
}
