// Package engine runs worker invocations: it resolves definitions, builds the
// model conversation, and loops through tool calls under the approval layer
// until the worker produces its final output.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"worker-cli/internal/agent"
	"worker-cli/internal/approval"
	"worker-cli/internal/attachments"
	"worker-cli/internal/logger"
	"worker-cli/internal/registry"
	"worker-cli/internal/sandbox"
	"worker-cli/internal/schema"
	"worker-cli/internal/tools"

	"github.com/google/uuid"
)

var log = logger.Named("engine")

const (
	DefaultMaxCallDepth = 8
	DefaultMaxTurns     = 32
)

// Options are the engine's injectable dependencies.
type Options struct {
	Registry       *registry.Registry
	Client         agent.ModelClient
	Approver       approval.Approver
	DefaultModel   string
	MaxCallDepth   int
	MaxTurns       int
	Retries        int
	RequestTimeout time.Duration
}

// CustomTool extends the built-in tool table with a host-provided operation.
// Custom tools go through the same approval gate as built-ins.
type CustomTool struct {
	Spec agent.ToolSpec
	Run  func(ctx context.Context, args tools.Args) (string, error)
}

// Engine executes worker invocations. Safe for concurrent Run calls; each
// invocation gets its own sandbox handles and approval controller.
type Engine struct {
	registry       *registry.Registry
	client         agent.ModelClient
	approver       approval.Approver
	defaultModel   string
	maxDepth       int
	maxTurns       int
	retries        int
	requestTimeout time.Duration
	custom         map[string]CustomTool
}

func NewEngine(opts Options) *Engine {
	maxDepth := opts.MaxCallDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCallDepth
	}
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = 2 * time.Minute
	}
	approver := opts.Approver
	if approver == nil {
		approver = approval.RejectAll()
	}
	return &Engine{
		registry:       opts.Registry,
		client:         opts.Client,
		approver:       approver,
		defaultModel:   strings.TrimSpace(opts.DefaultModel),
		maxDepth:       maxDepth,
		maxTurns:       maxTurns,
		retries:        opts.Retries,
		requestTimeout: requestTimeout,
		custom:         map[string]CustomTool{},
	}
}

// RegisterTool adds a host-defined tool. Registration must finish before the
// first Run; the tool table is not synchronized.
func (e *Engine) RegisterTool(tool CustomTool) error {
	name := strings.TrimSpace(tool.Spec.Name)
	if name == "" || tool.Run == nil {
		return errors.New("custom tool needs a name and a run function")
	}
	switch name {
	case ToolSandboxList, ToolSandboxRead, ToolSandboxWrite, ToolRunCommand, ToolCallWorker, ToolCreateWorker:
		return fmt.Errorf("tool name %q is reserved", name)
	}
	e.custom[name] = tool
	return nil
}

// Request describes one top-level worker invocation. Model is the calling
// context's model; a worker's own declared model takes precedence over it.
type Request struct {
	Worker      string
	Task        string
	Params      map[string]string
	Attachments []attachments.Spec
	Model       string
}

// Result is the outcome of a completed invocation.
type Result struct {
	InvocationID string       `json:"invocation_id"`
	Worker       string       `json:"worker"`
	Output       string       `json:"output"`
	Trace        []TraceEvent `json:"trace"`
}

// invocation is the per-run state bundle. Never shared across invocations;
// nested calls build their own.
type invocation struct {
	id    string
	depth int
	def   *registry.Definition
	model string
	boxes *sandbox.Manager
	gate  *approval.Controller
	rec   *traceRecorder
}

// Run executes the requested worker to completion. The returned trace covers
// the whole delegation tree in event order, even when Run fails.
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	if e.client == nil {
		return Result{}, errors.New("model client not configured")
	}
	if e.registry == nil {
		return Result{}, errors.New("registry not configured")
	}
	rec := &traceRecorder{}
	outcome, err := e.run(ctx, req, 1, rec)
	result := Result{
		InvocationID: outcome.invocationID,
		Worker:       req.Worker,
		Output:       outcome.output,
		Trace:        rec.snapshot(),
	}
	return result, err
}

type runOutcome struct {
	invocationID string
	output       string
}

// resolveModel picks the worker's declared model, falling back to the model
// the caller ran under, then to the host default. Nested calls always carry
// their caller's effective model, so a child without a declared model runs on
// the same model as its parent.
func (e *Engine) resolveModel(def *registry.Definition, req Request) (string, error) {
	model := strings.TrimSpace(def.Model)
	if model == "" {
		model = strings.TrimSpace(req.Model)
	}
	if model == "" {
		model = e.defaultModel
	}
	if model == "" {
		return "", NoModelError{Worker: def.Name}
	}
	return model, nil
}

func (e *Engine) run(ctx context.Context, req Request, depth int, rec *traceRecorder) (runOutcome, error) {
	if depth > e.maxDepth {
		return runOutcome{}, RecursionLimitError{Worker: req.Worker, Depth: depth, Limit: e.maxDepth}
	}

	def, err := e.registry.Load(req.Worker)
	if err != nil {
		return runOutcome{}, err
	}
	boxes, err := sandbox.NewManager(def.Sandboxes)
	if err != nil {
		return runOutcome{}, fmt.Errorf("worker %q: %w", def.Name, err)
	}
	payloads, err := attachments.Validate(req.Attachments, def.Policy(), boxes)
	if err != nil {
		return runOutcome{}, fmt.Errorf("worker %q: %w", def.Name, err)
	}
	model, err := e.resolveModel(def, req)
	if err != nil {
		return runOutcome{}, err
	}

	inv := &invocation{
		id:    uuid.NewString(),
		depth: depth,
		def:   def,
		model: model,
		boxes: boxes,
		gate:  approval.NewController(def.ToolRules, e.approver),
		rec:   rec,
	}
	outcome := runOutcome{invocationID: inv.id}

	rec.add(TraceEvent{Kind: TraceWorkerStart, Invocation: inv.id, Worker: def.Name, Depth: depth})
	log.WithField("worker", def.Name).WithField("invocation", inv.id).WithField("depth", depth).Info("invocation start")

	output, err := e.runConversation(ctx, inv, req, payloads)
	if err != nil {
		rec.add(TraceEvent{Kind: TraceWorkerEnd, Invocation: inv.id, Worker: def.Name, Depth: depth, Err: err.Error()})
		return outcome, err
	}
	outcome.output = output
	rec.add(TraceEvent{Kind: TraceWorkerEnd, Invocation: inv.id, Worker: def.Name, Depth: depth})
	return outcome, nil
}

func (e *Engine) runConversation(ctx context.Context, inv *invocation, req Request, payloads []attachments.Payload) (string, error) {
	def := inv.def

	var outputSchema *schema.Schema
	var rawSchema string
	if def.OutputSchemaRef != "" {
		raw, err := e.registry.ReadSchema(def.OutputSchemaRef)
		if err != nil {
			return "", fmt.Errorf("worker %q: %w", def.Name, err)
		}
		compiled, err := schema.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("worker %q: %w", def.Name, err)
		}
		outputSchema = compiled
		rawSchema = string(raw)
	}

	userBody, err := buildUserMessage(req.Task, payloads, inv.boxes)
	if err != nil {
		return "", fmt.Errorf("worker %q: %w", def.Name, err)
	}
	messages := []agent.Message{
		{Role: agent.RoleSystem, Content: def.RenderInstructions(req.Params)},
		{Role: agent.RoleUser, Content: userBody},
	}

	specs := e.toolSpecs(def)

	for turn := 0; turn < e.maxTurns; turn++ {
		prompt := agent.Prompt{
			Model:        inv.model,
			Messages:     messages,
			Tools:        specs,
			OutputSchema: rawSchema,
		}
		text, calls, err := e.streamTurn(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("worker %q: model turn: %w", def.Name, err)
		}
		if text != "" {
			inv.rec.add(TraceEvent{Kind: TraceModelText, Invocation: inv.id, Worker: def.Name, Depth: inv.depth, Text: text})
		}

		if len(calls) == 0 {
			if outputSchema != nil {
				if err := outputSchema.ValidateJSON([]byte(text)); err != nil {
					return "", OutputError{Worker: def.Name, Err: err}
				}
			}
			return text, nil
		}

		if text != "" {
			messages = append(messages, agent.Message{Role: agent.RoleAssistant, Content: text})
		}
		for _, call := range calls {
			inv.rec.add(TraceEvent{Kind: TraceToolCall, Invocation: inv.id, Worker: def.Name, Depth: inv.depth, Tool: call.Name, CallID: call.CallID})
			output, err := e.dispatch(ctx, inv, call)
			evt := TraceEvent{Kind: TraceToolResult, Invocation: inv.id, Worker: def.Name, Depth: inv.depth, Tool: call.Name, CallID: call.CallID}
			if err != nil {
				evt.Err = err.Error()
				log.WithField("worker", def.Name).WithField("tool", call.Name).Warnf("tool failed: %v", err)
			}
			inv.rec.add(evt)
			messages = append(messages, formatToolResult(call, output, err))
		}
	}
	return "", fmt.Errorf("worker %q: tool loop exceeded %d turns", def.Name, e.maxTurns)
}

func (e *Engine) toolSpecs(def *registry.Definition) []agent.ToolSpec {
	specs := builtinTools(def)
	for _, tool := range e.custom {
		specs = append(specs, tool.Spec)
	}
	return specs
}

// streamTurn runs one model request, collecting text and tool-call items.
func (e *Engine) streamTurn(ctx context.Context, prompt agent.Prompt) (string, []agent.FunctionCallItem, error) {
	var lastErr error
	for attempt := 0; attempt <= e.retries; attempt++ {
		var sb strings.Builder
		var calls []agent.FunctionCallItem

		runCtx, cancel := context.WithTimeout(ctx, e.requestTimeout)
		err := e.client.Stream(runCtx, prompt, func(evt agent.StreamEvent) {
			switch evt.Type {
			case agent.StreamEventTextDelta:
				sb.WriteString(evt.Text)
			case agent.StreamEventItem:
				var item agent.FunctionCallItem
				if err := json.Unmarshal(evt.Item, &item); err != nil {
					log.Warnf("parse stream item: %v", err)
					return
				}
				if item.Type == "function_call" && item.Name != "" {
					calls = append(calls, item)
				}
			}
		})
		cancel()
		if err == nil {
			return strings.TrimSpace(sb.String()), calls, nil
		}
		lastErr = err
		log.Warnf("model request attempt %d failed: %v", attempt+1, err)
	}
	return "", nil, lastErr
}

// dispatch routes one tool call. Policy checks that do not depend on the
// decision callback run before the approval gate, so a disallowed delegation
// is refused without prompting anyone.
func (e *Engine) dispatch(ctx context.Context, inv *invocation, call agent.FunctionCallItem) (string, error) {
	args, err := tools.ParseArgs(call.Arguments)
	if err != nil {
		return "", err
	}
	payload := map[string]any(args)

	if custom, ok := e.custom[call.Name]; ok {
		return inv.gate.MaybeRun(ctx, call.Name, payload, func(ctx context.Context) (string, error) {
			return custom.Run(ctx, args)
		})
	}

	switch call.Name {
	case ToolSandboxList:
		return inv.gate.MaybeRun(ctx, call.Name, payload, func(context.Context) (string, error) {
			return e.toolSandboxList(inv, args)
		})
	case ToolSandboxRead:
		return inv.gate.MaybeRun(ctx, call.Name, payload, func(context.Context) (string, error) {
			return e.toolSandboxRead(inv, args)
		})
	case ToolSandboxWrite:
		return inv.gate.MaybeRun(ctx, call.Name, payload, func(context.Context) (string, error) {
			return e.toolSandboxWrite(inv, args)
		})
	case ToolRunCommand:
		return inv.gate.MaybeRun(ctx, call.Name, payload, func(ctx context.Context) (string, error) {
			return e.toolRunCommand(ctx, inv, args)
		})
	case ToolCreateWorker:
		return inv.gate.MaybeRun(ctx, call.Name, payload, func(context.Context) (string, error) {
			return e.toolCreateWorker(inv, args)
		})
	case ToolCallWorker:
		return e.toolCallWorker(ctx, inv, args, payload)
	default:
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
}

func (e *Engine) toolSandboxList(inv *invocation, args tools.Args) (string, error) {
	name, err := args.String("sandbox")
	if err != nil {
		return "", err
	}
	pattern, err := args.StringOr("pattern", "")
	if err != nil {
		return "", err
	}
	handle, err := inv.boxes.Handle(name)
	if err != nil {
		return "", err
	}
	paths, err := handle.List(pattern)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "(no matches)", nil
	}
	return strings.Join(paths, "\n"), nil
}

func (e *Engine) toolSandboxRead(inv *invocation, args tools.Args) (string, error) {
	name, err := args.String("sandbox")
	if err != nil {
		return "", err
	}
	relPath, err := args.String("path")
	if err != nil {
		return "", err
	}
	handle, err := inv.boxes.Handle(name)
	if err != nil {
		return "", err
	}
	return handle.ReadText(relPath)
}

func (e *Engine) toolSandboxWrite(inv *invocation, args tools.Args) (string, error) {
	name, err := args.String("sandbox")
	if err != nil {
		return "", err
	}
	relPath, err := args.String("path")
	if err != nil {
		return "", err
	}
	content, err := args.String("content")
	if err != nil {
		return "", err
	}
	handle, err := inv.boxes.Handle(name)
	if err != nil {
		return "", err
	}
	if err := handle.WriteText(relPath, content); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d bytes to %s:%s", len(content), name, relPath), nil
}

func (e *Engine) toolRunCommand(ctx context.Context, inv *invocation, args tools.Args) (string, error) {
	name, err := args.String("sandbox")
	if err != nil {
		return "", err
	}
	command, err := args.String("command")
	if err != nil {
		return "", err
	}
	handle, err := inv.boxes.Handle(name)
	if err != nil {
		return "", err
	}
	if handle.ReadOnly() {
		return "", fmt.Errorf("sandbox %q is read-only, commands need a read-write sandbox", name)
	}
	return tools.RunCommand(ctx, handle.Root(), command)
}

func (e *Engine) toolCreateWorker(inv *invocation, args tools.Args) (string, error) {
	name, err := args.String("name")
	if err != nil {
		return "", err
	}
	instructions, err := args.String("instructions")
	if err != nil {
		return "", err
	}
	description, err := args.StringOr("description", "")
	if err != nil {
		return "", err
	}
	model, err := args.StringOr("model", "")
	if err != nil {
		return "", err
	}
	allow, err := args.StringSlice("allow_workers")
	if err != nil {
		return "", err
	}
	def := registry.Definition{
		Name:         name,
		Description:  description,
		Instructions: instructions,
		Model:        model,
		AllowWorkers: allow,
	}
	if err := e.registry.Save(&def, false); err != nil {
		return "", err
	}
	return fmt.Sprintf("worker %q created", name), nil
}

func (e *Engine) toolCallWorker(ctx context.Context, inv *invocation, args tools.Args, payload map[string]any) (string, error) {
	target, err := args.String("worker")
	if err != nil {
		return "", err
	}
	task, err := args.String("task")
	if err != nil {
		return "", err
	}
	if !inv.def.MayCall(target) {
		return "", DelegationError{Parent: inv.def.Name, Target: target}
	}

	rawParams, err := args.Map("params")
	if err != nil {
		return "", err
	}
	params := make(map[string]string, len(rawParams))
	for k, v := range rawParams {
		if s, ok := v.(string); ok {
			params[k] = s
		} else {
			params[k] = fmt.Sprintf("%v", v)
		}
	}

	refs, err := args.StringSlice("attachments")
	if err != nil {
		return "", err
	}
	specs, err := parseAttachmentRefs(refs)
	if err != nil {
		return "", err
	}
	// Forwarded attachments must satisfy the forwarding worker's own policy
	// too; the target re-validates against its policy inside run.
	if len(specs) > 0 {
		if _, err := attachments.Validate(specs, inv.def.Policy(), inv.boxes); err != nil {
			return "", err
		}
	}

	return inv.gate.MaybeRun(ctx, ToolCallWorker, payload, func(ctx context.Context) (string, error) {
		outcome, err := e.run(ctx, Request{
			Worker:      target,
			Task:        task,
			Params:      params,
			Attachments: specs,
			Model:       inv.model,
		}, inv.depth+1, inv.rec)
		if err != nil {
			return "", err
		}
		return outcome.output, nil
	})
}

func parseAttachmentRefs(refs []string) ([]attachments.Spec, error) {
	specs := make([]attachments.Spec, 0, len(refs))
	for _, ref := range refs {
		box, rel, ok := strings.Cut(ref, ":")
		if !ok || strings.TrimSpace(box) == "" || strings.TrimSpace(rel) == "" {
			return nil, fmt.Errorf("attachment %q must have the form sandbox:path", ref)
		}
		specs = append(specs, attachments.Spec{Sandbox: box, Path: rel})
	}
	return specs, nil
}

// buildUserMessage inlines validated attachment contents under the task text.
func buildUserMessage(task string, payloads []attachments.Payload, boxes *sandbox.Manager) (string, error) {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(task))
	for _, p := range payloads {
		handle, err := boxes.Handle(p.Sandbox)
		if err != nil {
			return "", err
		}
		content, err := handle.ReadText(p.Path)
		if err != nil {
			return "", err
		}
		sb.WriteString(fmt.Sprintf("\n\n--- attachment %s:%s ---\n", p.Sandbox, p.Path))
		sb.WriteString(content)
	}
	return sb.String(), nil
}

func formatToolResult(call agent.FunctionCallItem, output string, err error) agent.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tool %s (%s)", call.Name, call.CallID)
	if err != nil {
		sb.WriteString("\nerror: " + err.Error())
	} else if output != "" {
		sb.WriteString("\noutput:\n" + output)
	} else {
		sb.WriteString("\nstatus: ok")
	}
	return agent.Message{Role: agent.RoleUser, Content: sb.String()}
}
