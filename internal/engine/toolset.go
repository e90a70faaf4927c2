package engine

import (
	"fmt"
	"strings"

	"worker-cli/internal/agent"
	"worker-cli/internal/registry"
)

// Built-in tool names. Worker definitions reference these in tool_rules.
const (
	ToolSandboxList  = "sandbox_list"
	ToolSandboxRead  = "sandbox_read"
	ToolSandboxWrite = "sandbox_write"
	ToolRunCommand   = "run_command"
	ToolCallWorker   = "call_worker"
	ToolCreateWorker = "create_worker"
)

// builtinTools returns the tool surface exposed to the model for one worker.
// call_worker only appears when the definition allows delegation, so models
// never see a tool the policy layer would always refuse.
func builtinTools(def *registry.Definition) []agent.ToolSpec {
	sandboxNames := make([]string, 0, len(def.Sandboxes))
	for name := range def.Sandboxes {
		sandboxNames = append(sandboxNames, name)
	}
	sandboxDesc := "Declared sandboxes: " + strings.Join(sandboxNames, ", ") + "."
	if len(sandboxNames) == 0 {
		sandboxDesc = "No sandboxes are declared for this worker."
	}

	specs := []agent.ToolSpec{
		{
			Name:        ToolSandboxList,
			Description: "List files in a sandbox, optionally filtered by a glob pattern. " + sandboxDesc,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sandbox": map[string]any{
						"type":        "string",
						"description": "Name of a declared sandbox.",
					},
					"pattern": map[string]any{
						"type":        "string",
						"description": "Glob pattern such as *.md or **/*.go. Empty lists everything.",
					},
				},
				"required":             []string{"sandbox"},
				"additionalProperties": false,
			},
		},
		{
			Name:        ToolSandboxRead,
			Description: "Read a text file from a sandbox. " + sandboxDesc,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sandbox": map[string]any{
						"type":        "string",
						"description": "Name of a declared sandbox.",
					},
					"path": map[string]any{
						"type":        "string",
						"description": "Path relative to the sandbox root.",
					},
				},
				"required":             []string{"sandbox", "path"},
				"additionalProperties": false,
			},
		},
		{
			Name:        ToolSandboxWrite,
			Description: "Write a text file into a read-write sandbox. " + sandboxDesc,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sandbox": map[string]any{
						"type":        "string",
						"description": "Name of a declared read-write sandbox.",
					},
					"path": map[string]any{
						"type":        "string",
						"description": "Path relative to the sandbox root.",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Full file content to write.",
					},
				},
				"required":             []string{"sandbox", "path", "content"},
				"additionalProperties": false,
			},
		},
		{
			Name:        ToolRunCommand,
			Description: "Run a shell command with a read-write sandbox root as the working directory. Returns combined output.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sandbox": map[string]any{
						"type":        "string",
						"description": "Name of a declared read-write sandbox to run in.",
					},
					"command": map[string]any{
						"type":        "string",
						"description": "The full shell command to execute.",
					},
				},
				"required":             []string{"sandbox", "command"},
				"additionalProperties": false,
			},
		},
		{
			Name:        ToolCreateWorker,
			Description: "Create a new worker definition in the registry. Existing definitions are never overwritten.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "Worker name. Letters, digits, dot, dash and underscore.",
					},
					"description": map[string]any{
						"type":        "string",
						"description": "One-line summary of what the worker does.",
					},
					"instructions": map[string]any{
						"type":        "string",
						"description": "System instructions for the new worker. May contain ${param} placeholders.",
					},
					"model": map[string]any{
						"type":        "string",
						"description": "Optional model override for the new worker.",
					},
					"allow_workers": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Workers the new worker may delegate to.",
					},
				},
				"required":             []string{"name", "instructions"},
				"additionalProperties": false,
			},
		},
	}

	if len(def.AllowWorkers) > 0 {
		specs = append(specs, agent.ToolSpec{
			Name: ToolCallWorker,
			Description: fmt.Sprintf("Delegate a task to another worker and return its output. Allowed targets: %s.",
				strings.Join(def.AllowWorkers, ", ")),
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"worker": map[string]any{
						"type":        "string",
						"description": "Name of the worker to call.",
					},
					"task": map[string]any{
						"type":        "string",
						"description": "The task to hand over.",
					},
					"params": map[string]any{
						"type":        "object",
						"description": "Values for ${param} placeholders in the target's instructions.",
					},
					"attachments": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Attachments to forward, each as sandbox:path.",
					},
				},
				"required":             []string{"worker", "task"},
				"additionalProperties": false,
			},
		})
	}

	return specs
}
