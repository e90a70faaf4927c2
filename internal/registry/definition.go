// Package registry loads and persists worker definitions.
package registry

import (
	"fmt"
	"regexp"
	"strings"

	"worker-cli/internal/approval"
	"worker-cli/internal/attachments"
	"worker-cli/internal/sandbox"
)

var workerNameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Definition is the persisted document describing one worker. It is read-only
// during execution; changes go through Registry.Save.
type Definition struct {
	Name             string                    `yaml:"name"`
	Description      string                    `yaml:"description,omitempty"`
	Instructions     string                    `yaml:"instructions"`
	Model            string                    `yaml:"model,omitempty"`
	OutputSchemaRef  string                    `yaml:"output_schema_ref,omitempty"`
	Sandboxes        map[string]sandbox.Config `yaml:"sandboxes,omitempty"`
	AttachmentPolicy *attachments.Policy       `yaml:"attachment_policy,omitempty"`
	ToolRules        map[string]approval.Rule  `yaml:"tool_rules,omitempty"`
	AllowWorkers     []string                  `yaml:"allow_workers,omitempty"`
	Locked           bool                      `yaml:"locked"`
}

// Validate checks the structural rules a definition must satisfy before the
// engine will run it.
func (d *Definition) Validate() error {
	if !workerNameRE.MatchString(d.Name) {
		return fmt.Errorf("invalid worker name %q", d.Name)
	}
	if strings.TrimSpace(d.Instructions) == "" {
		return fmt.Errorf("worker %q: instructions are required", d.Name)
	}
	for tool := range d.ToolRules {
		if strings.TrimSpace(tool) == "" {
			return fmt.Errorf("worker %q: empty tool rule name", d.Name)
		}
	}
	for _, target := range d.AllowWorkers {
		if !workerNameRE.MatchString(target) {
			return fmt.Errorf("worker %q: invalid allow_workers entry %q", d.Name, target)
		}
	}
	return nil
}

// MayCall reports whether target is in this worker's delegation allow-list.
func (d *Definition) MayCall(target string) bool {
	for _, name := range d.AllowWorkers {
		if name == target {
			return true
		}
	}
	return false
}

// Policy returns the effective attachment policy, falling back to defaults
// when the definition declares none.
func (d *Definition) Policy() attachments.Policy {
	if d.AttachmentPolicy != nil {
		return *d.AttachmentPolicy
	}
	return attachments.DefaultPolicy()
}

// RenderInstructions substitutes ${name} placeholders with caller-supplied
// values. Only names present in params are replaced; anything else stays
// verbatim, so instruction text never becomes an execution surface.
func (d *Definition) RenderInstructions(params map[string]string) string {
	if len(params) == 0 {
		return d.Instructions
	}
	out := d.Instructions
	for name, value := range params {
		out = strings.ReplaceAll(out, "${"+name+"}", value)
	}
	return out
}
