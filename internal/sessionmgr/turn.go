package sessionmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/trinity-cloud/drost/internal/gwerr"
	"github.com/trinity-cloud/drost/internal/providers"
	"github.com/trinity-cloud/drost/internal/store"
	"github.com/trinity-cloud/drost/internal/tools"
)

// EventKind names a turn stream event (spec.md §4.1: "Stream event kinds
// emitted").
type EventKind string

const (
	EventResponseDelta     EventKind = "response.delta"
	EventResponseCompleted EventKind = "response.completed"
	EventUsageUpdated      EventKind = "usage.updated"
	EventToolCallStarted   EventKind = "tool.call.started"
	EventToolCallCompleted EventKind = "tool.call.completed"
	EventToolPolicyDenied  EventKind = "tool.policy.denied"
	EventProviderError     EventKind = "provider.error"
)

// Event is one turn-stream event delivered to the submitter's handler.
// Consumers may discard any kind they don't care about.
type Event struct {
	Kind       EventKind
	SessionID  string
	Text       string
	ProviderID string
	ToolName   string
	Usage      providers.Usage
	Error      string
}

// RunRequest is the input to RunTurn.
type RunRequest struct {
	Ctx         context.Context
	SessionID   string
	Input       string
	InputImages []string
	Route       *Route // optional; PrimaryProviderID overrides the session's active provider for this turn
	ToolDefs    []providers.ToolSchema
	OnEvent     func(Event)
}

var autoWebPattern = regexp.MustCompile(`(?i)\b(search|news|today|latest|current events|what's happening)\b`)

const loopAbortValidationStreak = 3

// RunTurn executes one turn per spec.md §4.1's algorithm and blocks until
// the turn loop terminates.
func (m *Manager) RunTurn(req RunRequest) (*store.Record, error) {
	if err := m.beginTurn(req.SessionID); err != nil {
		return nil, err
	}
	defer m.endTurn(req.SessionID)

	rec, diag, err := m.Store.Load(req.SessionID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		if diag != nil {
			return nil, gwerr.New(gwerr.KindCorrupt, diag.Message)
		}
		return nil, gwerr.New(gwerr.KindUnknownSession, req.SessionID)
	}

	// Step 1: swap pendingProviderId, or apply an explicit route override.
	activeProviderID := rec.ActiveProviderID
	if pid, ok := m.takePending(req.SessionID); ok {
		activeProviderID = pid
	}
	if req.Route != nil && req.Route.PrimaryProviderID != "" {
		if _, ok := m.Adapters[req.Route.PrimaryProviderID]; !ok {
			return nil, gwerr.New(gwerr.KindUnknownProvider, req.Route.PrimaryProviderID)
		}
		activeProviderID = req.Route.PrimaryProviderID
	}
	if _, ok := m.Adapters[activeProviderID]; !ok {
		return nil, gwerr.New(gwerr.KindUnknownProvider, activeProviderID)
	}
	rec.ActiveProviderID = activeProviderID

	// Step 2: append user message, bump lastActivityAt.
	now := m.Now()
	rec.History = append(rec.History, store.Message{
		Role: store.RoleUser, Content: req.Input, CreatedAt: now, ImageRefs: req.InputImages,
	})
	rec.Metadata.LastActivityAt = now

	fallback := []string{}
	if req.Route != nil {
		fallback = req.Route.FallbackProviderIDs
	}

	toolBudget := m.Config.MaxToolCalls
	if toolBudget <= 0 {
		toolBudget = 20
	}
	toolCallCount := 0
	toolRanThisTurn := false
	autoWebTried := false

	var validationStreakSig string
	var validationStreakCount int

	emit := func(e Event) {
		e.SessionID = req.SessionID
		if line, err := json.Marshal(e); err == nil {
			_ = m.Store.AppendEvent(req.SessionID, string(line))
		}
		if req.OnEvent != nil {
			req.OnEvent(e)
		}
	}
	transcribe := func(role, content string) {
		line, err := json.Marshal(store.Message{Role: store.Role(role), Content: content, CreatedAt: m.Now()})
		if err != nil {
			return
		}
		_ = m.Store.AppendTranscript(req.SessionID, string(line))
	}

	transcribe(string(store.RoleUser), req.Input)

	maxIterations := m.Config.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = 20
	}

	for iteration := 0; iteration < maxIterations; iteration++ {
		profile := m.Profiles[rec.ActiveProviderID]
		caps := providers.ResolveCapabilities(profile.Family, profile.CapabilityHints, nil)
		useNative := caps.NativeToolCalls && len(req.ToolDefs) > 0

		turnReq := providers.TurnRequest{Messages: toProviderMessages(rec.History), Model: profile.Model}
		if useNative {
			turnReq.Tools = req.ToolDefs
		} else {
			turnReq.Messages = append([]providers.Message{{Role: providers.RoleSystem, Content: textModeSystemPrompt(m.Tools)}}, turnReq.Messages...)
		}

		var result *providers.TurnResult
		usedProvider, runErr := m.Failover.RunWithFailover(rec.ActiveProviderID, fallback, func(providerID string) error {
			adapter := m.Adapters[providerID]
			res, callErr := m.runOneAdapterCall(req.Ctx, adapter, m.Profiles[providerID], turnReq, emit)
			if callErr != nil {
				return callErr
			}
			result = res
			return nil
		})
		if runErr != nil {
			emit(Event{Kind: EventProviderError, Error: runErr.Error()})
			return m.finalizeAbort(rec, fmt.Sprintf("Provider error: %v", runErr))
		}
		if usedProvider != rec.ActiveProviderID {
			rec.ActiveProviderID = usedProvider
		}
		emit(Event{Kind: EventUsageUpdated, Usage: result.Usage})
		rec.Metadata.InputTokens += int64(result.Usage.PromptTokens)
		rec.Metadata.OutputTokens += int64(result.Usage.CompletionTokens)
		rec.Metadata.LastPromptTokens = result.Usage.PromptTokens
		rec.Metadata.LastMessageCount = len(rec.History)

		var parsedCalls []ParsedToolCall
		if useNative && len(result.NativeToolCalls) > 0 {
			for _, c := range result.NativeToolCalls {
				parsedCalls = append(parsedCalls, ParsedToolCall{ID: c.ID, Name: c.Name, Input: c.Input})
			}
			rec.History = append(rec.History, store.Message{Role: store.RoleTool, Content: encodeNativeCalls(parsedCalls), CreatedAt: m.Now()})
		} else if call, ok := parseToolCall(result.Text); ok {
			parsedCalls = []ParsedToolCall{*call}
		}

		if len(parsedCalls) == 0 && !toolRanThisTurn && !autoWebTried && m.Tools.Registry().Has("web") && autoWebPattern.MatchString(req.Input) {
			autoWebTried = true
			parsedCalls = []ParsedToolCall{{Name: "web", Input: map[string]any{"action": "search", "query": req.Input}}}
		}

		if len(parsedCalls) == 0 {
			// Step 8: finalize.
			finalText := result.Text
			rec.History = append(rec.History, store.Message{Role: store.RoleAssistant, Content: finalText, CreatedAt: m.Now()})
			emit(Event{Kind: EventResponseCompleted, Text: finalText})
			transcribe(string(store.RoleAssistant), finalText)
			return m.persist(rec)
		}

		for _, call := range parsedCalls {
			normalizeKnownToolShape(&call, req.Input)

			if toolCallCount >= toolBudget {
				msg := fmt.Sprintf("Tool call budget exceeded (%d)", toolBudget)
				emit(Event{Kind: EventProviderError, Error: msg})
				return m.finalizeAbort(rec, msg)
			}
			toolCallCount++
			toolRanThisTurn = true

			execCtx := tools.ExecContext{WorkspaceDir: m.Config.WorkspaceDir, Policy: m.workspacePolicy(), ProviderID: rec.ActiveProviderID}
			toolOnEvent := func(te tools.Event) {
				switch te.Kind {
				case tools.EventToolCallStarted:
					emit(Event{Kind: EventToolCallStarted, ToolName: te.ToolName})
				case tools.EventToolCallCompleted:
					emit(Event{Kind: EventToolCallCompleted, ToolName: te.ToolName, Error: te.Error})
				case tools.EventToolPolicyDenied:
					emit(Event{Kind: EventToolPolicyDenied, ToolName: te.ToolName, Error: te.Error})
				}
			}
			toolResult, err := m.Tools.RunTool(req.Ctx, req.SessionID, call.Name, call.Input, m.toolPolicy(), execCtx, toolOnEvent)

			if gwerr.Is(err, gwerr.KindValidationError) {
				sig := validationSignature(call)
				if sig == validationStreakSig {
					validationStreakCount++
				} else {
					validationStreakSig = sig
					validationStreakCount = 1
				}
				if validationStreakCount >= loopAbortValidationStreak {
					msg := "Tool call loop aborted after 3 consecutive validation errors"
					emit(Event{Kind: EventProviderError, Error: msg})
					return m.finalizeAbort(rec, msg)
				}
			} else {
				validationStreakSig = ""
				validationStreakCount = 0
			}

			envelope := toolResultEnvelope{Name: call.Name, CallID: call.ID}
			if err != nil {
				envelope.OK = false
				envelope.Error = err.Error()
			} else {
				envelope.OK = toolResult.Ok()
				if toolResult.Ok() {
					envelope.Output = toolResult.ForLLM
				} else {
					envelope.Error = toolResult.Err
				}
			}
			rec.History = append(rec.History, store.Message{Role: store.RoleTool, Content: encodeToolResult(envelope), CreatedAt: m.Now()})
		}
		// continue loop: next adapter call sees the updated history
	}

	return m.finalizeAbort(rec, "Turn aborted: exceeded maximum iterations")
}

// runOneAdapterCall invokes adapter.RunTurn (or RunTurnStream if the
// adapter implements it), converting streamed chunks into response.delta
// events and applying snapshotDedup to compute the final text.
func (m *Manager) runOneAdapterCall(ctx context.Context, adapter providers.Adapter, profile providers.Profile, req providers.TurnRequest, emit func(Event)) (*providers.TurnResult, error) {
	streaming, ok := adapter.(providers.StreamingAdapter)
	if !ok {
		return adapter.RunTurn(ctx, profile, req)
	}

	var fragments []string
	result, err := streaming.RunTurnStream(ctx, profile, req, func(chunk providers.StreamChunk) {
		if chunk.DeltaText != "" {
			fragments = append(fragments, chunk.DeltaText)
			emit(Event{Kind: EventResponseDelta, Text: chunk.DeltaText})
		}
	})
	if err != nil {
		return nil, err
	}
	if len(fragments) > 0 {
		result.Text = snapshotDedup(fragments)
	}
	return result, nil
}

func (m *Manager) finalizeAbort(rec *store.Record, message string) (*store.Record, error) {
	rec.History = append(rec.History, store.Message{Role: store.RoleAssistant, Content: message, CreatedAt: m.Now()})
	if line, err := json.Marshal(store.Message{Role: store.RoleAssistant, Content: message, CreatedAt: m.Now()}); err == nil {
		_ = m.Store.AppendTranscript(rec.SessionID, string(line))
	}
	return m.persist(rec)
}

func (m *Manager) persist(rec *store.Record) (*store.Record, error) {
	saved, _, err := m.Store.Save(rec)
	return saved, err
}

func toProviderMessages(history []store.Message) []providers.Message {
	out := make([]providers.Message, len(history))
	for i, h := range history {
		out[i] = providers.Message{Role: providers.Role(h.Role), Content: h.Content}
	}
	return out
}

func textModeSystemPrompt(rt *tools.Runtime) string {
	var b strings.Builder
	b.WriteString("You may call a tool by emitting a line of the form:\n")
	b.WriteString(`TOOL_CALL {"name":"<tool>","input":<json>}` + "\n")
	b.WriteString("This may appear bare or inside a fenced ```json block. Available tools:\n")
	b.WriteString(rt.Registry().Describe())
	return b.String()
}

// normalizeKnownToolShape synthesizes a search input for an empty-input
// web call, per spec.md §4.1 step 5.
func normalizeKnownToolShape(call *ParsedToolCall, lastUserText string) {
	if call.Name == "web" && len(call.Input) == 0 {
		call.Input = map[string]any{"action": "search", "query": lastUserText}
	}
}

func validationSignature(call ParsedToolCall) string {
	data, _ := json.Marshal(call.Input)
	return call.Name + ":" + string(data)
}
