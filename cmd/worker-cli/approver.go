package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"worker-cli/internal/approval"
	"worker-cli/internal/config"
)

// ErrQuit aborts the whole invocation from the approval prompt.
var ErrQuit = errors.New("aborted at approval prompt")

// stdinApprover prompts on the terminal for each approval request. Prompts go
// to stderr so piped stdout stays clean for the worker output.
type stdinApprover struct {
	in  *bufio.Reader
	out io.Writer
}

func newStdinApprover(in io.Reader, out io.Writer) *stdinApprover {
	return &stdinApprover{in: bufio.NewReader(in), out: out}
}

func (a *stdinApprover) Decide(ctx context.Context, req approval.Request) (approval.Decision, error) {
	fmt.Fprintf(a.out, "\nTool %q requests approval", req.Tool)
	if req.Description != "" {
		fmt.Fprintf(a.out, " (%s)", req.Description)
	}
	fmt.Fprintln(a.out)
	for _, line := range payloadLines(req.Payload) {
		fmt.Fprintf(a.out, "  %s\n", line)
	}

	for {
		if err := ctx.Err(); err != nil {
			return approval.Decision{}, err
		}
		fmt.Fprint(a.out, "Approve? [y]es / [n]o / [a]lways / [q]uit: ")
		line, err := a.in.ReadString('\n')
		if err != nil {
			return approval.Decision{}, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return approval.Decision{Approved: true}, nil
		case "n", "no":
			return approval.Decision{Approved: false, Note: "denied at prompt"}, nil
		case "a", "always":
			return approval.Decision{Approved: true, ApproveForSession: true}, nil
		case "q", "quit":
			return approval.Decision{}, ErrQuit
		}
		fmt.Fprintln(a.out, "Please answer y, n, a or q.")
	}
}

func payloadLines(payload map[string]any) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s = %v", k, payload[k]))
	}
	return lines
}

func approverForMode(mode string, in io.Reader, out io.Writer) approval.Approver {
	switch mode {
	case config.ApprovalAllow:
		return approval.AllowAll()
	case config.ApprovalReject:
		return approval.RejectAll()
	default:
		return newStdinApprover(in, out)
	}
}
