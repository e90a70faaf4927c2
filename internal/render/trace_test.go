package render

import (
	"strings"
	"testing"

	"worker-cli/internal/engine"
)

func TestTraceOneLinePerEvent(t *testing.T) {
	events := []engine.TraceEvent{
		{Kind: engine.TraceWorkerStart, Worker: "lead", Depth: 1},
		{Kind: engine.TraceToolCall, Worker: "lead", Depth: 1, Tool: "call_worker", CallID: "c1"},
		{Kind: engine.TraceWorkerStart, Worker: "scout", Depth: 2},
		{Kind: engine.TraceWorkerEnd, Worker: "scout", Depth: 2},
		{Kind: engine.TraceToolResult, Worker: "lead", Depth: 1, Tool: "call_worker"},
		{Kind: engine.TraceWorkerEnd, Worker: "lead", Depth: 1},
	}
	out := Trace(events, 80)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != len(events) {
		t.Fatalf("lines = %d, want %d", len(lines), len(events))
	}
	if !strings.Contains(lines[2], "scout") {
		t.Fatalf("nested worker missing: %q", lines[2])
	}
	if !strings.HasPrefix(lines[2], "  ") {
		t.Fatalf("depth 2 event not indented: %q", lines[2])
	}
}

func TestTraceShowsToolFailure(t *testing.T) {
	out := Trace([]engine.TraceEvent{
		{Kind: engine.TraceToolResult, Worker: "w", Depth: 1, Tool: "sandbox_write", Err: "sandbox \"docs\" is read-only"},
	}, 120)
	if !strings.Contains(out, "read-only") {
		t.Fatalf("failure reason missing: %q", out)
	}
}

func TestClipByDisplayWidth(t *testing.T) {
	long := strings.Repeat("界", 50)
	got := clip(long, 20)
	if got == long {
		t.Fatal("wide text not truncated")
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("missing ellipsis: %q", got)
	}
}

func TestFirstLineFlattensMultiline(t *testing.T) {
	got := firstLine("first\nsecond")
	if got != "first …" {
		t.Fatalf("firstLine = %q", got)
	}
}
