package tools

import (
	"context"
	"fmt"
)

// GatewayStatus is the read-only snapshot the `agent` tool's status action
// reports. Populated by the gateway lifecycle package.
type GatewayStatus struct {
	State           string
	DegradedReasons []string
	Uptime          string
}

// RestartRequester is implemented by the gateway lifecycle package; the
// `agent` tool's restart action forwards into it rather than owning
// restart policy itself (spec.md §4.7 classifies the intent as
// "self_mod" when requested by a tool).
type RestartRequester interface {
	RequestRestart(ctx context.Context, reason string, dryRun bool) error
}

// AgentTool implements the required `agent` built-in: status and restart
// request. New package, no direct teacher file — the teacher's equivalent
// surface (internal/gateway/methods) addressed the deleted WS channel bus
// and has no adaptable handler for this (see DESIGN.md).
type AgentTool struct {
	StatusFunc func() GatewayStatus
	Restarter  RestartRequester
}

func NewAgentTool(statusFunc func() GatewayStatus, restarter RestartRequester) *AgentTool {
	return &AgentTool{StatusFunc: statusFunc, Restarter: restarter}
}

func (t *AgentTool) Name() string        { return "agent" }
func (t *AgentTool) Description() string { return "Query gateway status or request a self-modification restart" }

func (t *AgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":  map[string]any{"type": "string", "enum": []string{"status", "restart"}},
			"reason":  map[string]any{"type": "string"},
			"dry_run": map[string]any{"type": "boolean"},
		},
		"required": []string{"action"},
	}
}

func (t *AgentTool) Execute(ctx context.Context, args map[string]any) *Result {
	action, _ := args["action"].(string)
	switch action {
	case "status":
		if t.StatusFunc == nil {
			return ErrorResult("status not available")
		}
		s := t.StatusFunc()
		return NewResult(fmt.Sprintf("state=%s degradedReasons=%v uptime=%s", s.State, s.DegradedReasons, s.Uptime))

	case "restart":
		if t.Restarter == nil {
			return ErrorResult("restart not available")
		}
		reason, _ := args["reason"].(string)
		dryRun, _ := args["dry_run"].(bool)
		if err := t.Restarter.RequestRestart(ctx, reason, dryRun); err != nil {
			return ErrorResult(err.Error())
		}
		return NewResult("restart requested")

	default:
		return ErrorResult(fmt.Sprintf("unknown action %q", action))
	}
}
