package tools

import (
	"context"
	"os/exec"
	"strings"
	"testing"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func TestRunCommandEmpty(t *testing.T) {
	if _, err := RunCommand(context.Background(), "", "   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestRunCommandEcho(t *testing.T) {
	requireBash(t)
	out, err := RunCommand(context.Background(), t.TempDir(), "echo hello")
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Fatalf("output %q missing echo", out)
	}
}

func TestRunCommandFailureKeepsOutput(t *testing.T) {
	requireBash(t)
	out, err := RunCommand(context.Background(), "", "echo before; exit 3")
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	if !strings.Contains(out, "before") {
		t.Fatalf("output %q lost on failure", out)
	}
}

func TestRunWrappedExitCode(t *testing.T) {
	requireBash(t)
	cmd := exec.Command("bash", "-c", "echo oops >&2; exit 2")
	out, code, err := RunWrapped(cmd)
	if err == nil || code != 2 {
		t.Fatalf("RunWrapped code = %d, err = %v", code, err)
	}
	if !strings.Contains(out, "oops") {
		t.Fatalf("stderr missing from combined output: %q", out)
	}
}
