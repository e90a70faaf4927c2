package agent

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	Role    Role
	Content string
}

// ToolSpec describes a tool offered to the model, following the common
// function-tool schema convention.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Prompt is one complete model request: model, conversation and tool surface.
type Prompt struct {
	Model        string
	Messages     []Message
	Tools        []ToolSpec
	OutputSchema string
}
