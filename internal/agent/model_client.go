package agent

import (
	"context"
	"encoding/json"
	"errors"
)

type StreamEventType string

const (
	StreamEventTextDelta StreamEventType = "text_delta"
	StreamEventItem      StreamEventType = "item"
	StreamEventCompleted StreamEventType = "completed"
)

// StreamEvent is one chunk of a model response: a text fragment, a structured
// item (tool-call requests arrive this way), or the completion marker.
type StreamEvent struct {
	Type StreamEventType
	Text string
	Item json.RawMessage
}

// FunctionCallItem is the structured shape clients emit for tool-call
// requests, regardless of provider wire format.
type FunctionCallItem struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	CallID    string `json:"call_id"`
}

// ModelClient is the completion-engine boundary.
type ModelClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
	Stream(ctx context.Context, prompt Prompt, onEvent func(StreamEvent)) error
}

// EchoClient is a fallback when no API credentials are available; it mirrors
// the last user message back, which keeps smoke tests offline.
type EchoClient struct {
	Prefix string
}

func (c EchoClient) Complete(_ context.Context, prompt Prompt) (string, error) {
	for i := len(prompt.Messages) - 1; i >= 0; i-- {
		if prompt.Messages[i].Role == RoleUser {
			return c.Prefix + prompt.Messages[i].Content, nil
		}
	}
	return "", errors.New("no user message to echo")
}

func (c EchoClient) Stream(ctx context.Context, prompt Prompt, onEvent func(StreamEvent)) error {
	text, err := c.Complete(ctx, prompt)
	if err != nil {
		return err
	}
	onEvent(StreamEvent{Type: StreamEventTextDelta, Text: text})
	onEvent(StreamEvent{Type: StreamEventCompleted})
	return nil
}
