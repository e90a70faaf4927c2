package engine

import (
	"sync"
	"time"
)

type TraceKind string

const (
	TraceWorkerStart TraceKind = "worker_start"
	TraceModelText   TraceKind = "model_text"
	TraceToolCall    TraceKind = "tool_call"
	TraceToolResult  TraceKind = "tool_result"
	TraceWorkerEnd   TraceKind = "worker_end"
)

// TraceEvent is one entry in an invocation's ordered activity trace. Nested
// worker invocations record into the same trace, so delegation shows up
// inline between the parent's tool_call and tool_result.
type TraceEvent struct {
	Kind       TraceKind `json:"kind"`
	Time       time.Time `json:"time"`
	Invocation string    `json:"invocation"`
	Worker     string    `json:"worker"`
	Depth      int       `json:"depth"`
	Tool       string    `json:"tool,omitempty"`
	CallID     string    `json:"call_id,omitempty"`
	Text       string    `json:"text,omitempty"`
	Err        string    `json:"error,omitempty"`
}

type traceRecorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (r *traceRecorder) add(evt TraceEvent) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *traceRecorder) snapshot() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, len(r.events))
	copy(out, r.events)
	return out
}
