package tools

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/trinity-cloud/drost/internal/gwerr"
)

// EventKind names a tool lifecycle event.
type EventKind string

const (
	EventToolCallStarted   EventKind = "tool.call.started"
	EventToolCallCompleted EventKind = "tool.call.completed"
	EventToolPolicyDenied  EventKind = "tool.policy.denied"
)

// Event is emitted during RunTool. Consumers (the session manager, the
// control API's SSE broadcaster) may discard any event kind they don't
// care about.
type Event struct {
	Kind       EventKind
	SessionID  string
	ToolName   string
	OK         bool
	Code       string
	DurationMs int64
	Error      string
}

// TraceRecord is one redacted tool-call observability record, appended to
// the runtime's trace sink (spec.md §4.5 step 7: "append a tool-traces
// record").
type TraceRecord struct {
	SessionID  string
	ToolName   string
	Input      any
	OK         bool
	DurationMs int64
	Error      string
}

// Runtime executes tools against a Registry under a Policy, validating
// input, sandboxing filesystem access via pathpolicy, and emitting
// lifecycle events.
type Runtime struct {
	registry *Registry
	schemas  *schemaCache
	tracer   trace.Tracer

	// TraceSink receives a TraceRecord after every call, with input
	// values run through Redact first. Nil disables trace recording.
	TraceSink func(TraceRecord)

	// OnToolResult is the hook surface plugins attach to (spec.md §4.7:
	// "the plugin/skill loaders" themselves are out of scope, but the
	// hook surface they plug into is not). Each registered hook is
	// invoked, in order, after every tool execution.
	OnToolResult []func(ctx context.Context, sessionID, toolName string, result *Result)
}

// NewRuntime builds a Runtime over registry. tracer may be a no-op tracer
// (internal/tracing.NoopTracer()) when telemetry is unconfigured.
func NewRuntime(registry *Registry, tracer trace.Tracer) *Runtime {
	return &Runtime{registry: registry, schemas: newSchemaCache(), tracer: tracer}
}

// RunTool implements spec.md §4.5's RunTool algorithm.
func (rt *Runtime) RunTool(
	ctx context.Context,
	sessionID, toolName string,
	input map[string]any,
	policy Policy,
	execCtx ExecContext,
	onEvent func(Event),
) (*Result, error) {
	def := rt.registry.Lookup(toolName)
	if def == nil {
		return nil, gwerr.New(gwerr.KindToolNotFound, toolName)
	}

	if d := policy.evaluate(toolName); !d.allowed {
		emit(onEvent, Event{Kind: EventToolPolicyDenied, SessionID: sessionID, ToolName: toolName, Error: d.reason})
		return nil, gwerr.New(gwerr.KindPolicyDenied, fmt.Sprintf("%s: %s", toolName, d.reason))
	}

	ctx, span := rt.tracer.Start(ctx, "tool.call")
	span.SetAttributes(attribute.String("tool.name", toolName), attribute.String("session.id", sessionID))
	defer span.End()

	emit(onEvent, Event{Kind: EventToolCallStarted, SessionID: sessionID, ToolName: toolName})

	if err := rt.schemas.validateInput(toolName, def.Parameters(), input); err != nil {
		emit(onEvent, Event{Kind: EventToolCallCompleted, SessionID: sessionID, ToolName: toolName, OK: false, Error: err.Error()})
		return nil, err
	}

	execCtx.SessionID = sessionID
	runCtx := WithExecContext(ctx, execCtx)

	start := time.Now()
	result := def.Execute(runCtx, input)
	duration := time.Since(start).Milliseconds()

	emit(onEvent, Event{
		Kind: EventToolCallCompleted, SessionID: sessionID, ToolName: toolName,
		OK: result.Ok(), DurationMs: duration, Error: result.Err,
	})

	if rt.TraceSink != nil {
		rt.TraceSink(TraceRecord{
			SessionID: sessionID, ToolName: toolName, Input: Redact(toAny(input)),
			OK: result.Ok(), DurationMs: duration, Error: result.Err,
		})
	}
	for _, hook := range rt.OnToolResult {
		hook(ctx, sessionID, toolName, result)
	}

	return result, nil
}

// Registry exposes the underlying tool registry, e.g. for building the
// text-mode system prompt.
func (rt *Runtime) Registry() *Registry { return rt.registry }

func emit(onEvent func(Event), e Event) {
	if onEvent != nil {
		onEvent(e)
	}
}
