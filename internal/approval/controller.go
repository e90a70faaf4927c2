// Package approval gates tool invocations behind a per-worker rule table and
// a pluggable decision callback, memoizing session approvals for exactly one
// invocation.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"worker-cli/internal/logger"
)

var log = logger.Named("approval")

// PermissionError reports a tool invocation the controller refused.
type PermissionError struct {
	Tool string
	Note string
}

func (e PermissionError) Error() string {
	if e.Note != "" {
		return fmt.Sprintf("tool %q not permitted: %s", e.Tool, e.Note)
	}
	return fmt.Sprintf("tool %q not permitted", e.Tool)
}

// Request is what the decision callback sees for one approval.
type Request struct {
	Tool        string
	Payload     map[string]any
	Description string
}

// Approver resolves approval requests. Implementations range from stdin
// prompts to auto-approve-all and pattern-based policies.
type Approver interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, req Request) (Decision, error)

func (f ApproverFunc) Decide(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// AllowAll approves everything without session memoization.
func AllowAll() Approver {
	return ApproverFunc(func(context.Context, Request) (Decision, error) {
		return Decision{Approved: true}, nil
	})
}

// RejectAll denies everything.
func RejectAll() Approver {
	return ApproverFunc(func(_ context.Context, req Request) (Decision, error) {
		return Decision{Approved: false, Note: "auto-reject policy"}, nil
	})
}

// Controller enforces one worker invocation's tool rules. Its session cache
// belongs to exactly one invocation context and is discarded with it.
type Controller struct {
	rules    map[string]Rule
	approver Approver

	// mu serializes approval decisions: overlapping prompts to one
	// decision-maker are not meaningful, even when the gated operations
	// themselves run in parallel.
	mu      sync.Mutex
	session map[string]struct{}
}

func NewController(rules map[string]Rule, approver Approver) *Controller {
	return &Controller{
		rules:    rules,
		approver: approver,
		session:  make(map[string]struct{}),
	}
}

// MaybeRun runs op once the rule table and, where required, the decision
// callback permit it. Unknown tools default to allowed-with-approval, so
// nothing auto-runs just because a rule is missing.
func (c *Controller) MaybeRun(ctx context.Context, tool string, payload map[string]any, op func(context.Context) (string, error)) (string, error) {
	rule, ok := c.rules[tool]
	if !ok {
		rule = Rule{Allowed: true, ApprovalRequired: true}
	}
	if !rule.Allowed {
		return "", PermissionError{Tool: tool, Note: "disallowed by tool rules"}
	}
	if !rule.ApprovalRequired {
		return op(ctx)
	}

	if err := c.resolve(ctx, tool, payload, rule); err != nil {
		return "", err
	}
	return op(ctx)
}

func (c *Controller) resolve(ctx context.Context, tool string, payload map[string]any, rule Rule) error {
	key := sessionKey(tool, payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.session[key]; ok {
		log.WithField("tool", tool).Debug("session approval hit")
		return nil
	}
	if c.approver == nil {
		return PermissionError{Tool: tool, Note: "no approver configured"}
	}
	decision, err := c.approver.Decide(ctx, Request{Tool: tool, Payload: payload, Description: rule.Description})
	if err != nil {
		return fmt.Errorf("approval for %q: %w", tool, err)
	}
	if !decision.Approved {
		return PermissionError{Tool: tool, Note: decision.Note}
	}
	if decision.ApproveForSession {
		c.session[key] = struct{}{}
	}
	return nil
}

// sessionKey canonicalizes (tool, payload) treating the payload as an
// order-independent set of field/value pairs. Values that do not marshal
// fall back to their string form.
func sessionKey(tool string, payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(tool)
	for _, k := range keys {
		sb.WriteByte('\n')
		sb.WriteString(k)
		sb.WriteByte('=')
		if encoded, err := json.Marshal(payload[k]); err == nil {
			sb.Write(encoded)
		} else {
			fmt.Fprintf(&sb, "%v", payload[k])
		}
	}
	return sb.String()
}
