package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeRestarter struct {
	calledReason string
	calledDryRun bool
	err          error
}

func (f *fakeRestarter) RequestRestart(ctx context.Context, reason string, dryRun bool) error {
	f.calledReason = reason
	f.calledDryRun = dryRun
	return f.err
}

func TestAgentTool_StatusReportsGatewayState(t *testing.T) {
	tool := NewAgentTool(func() GatewayStatus {
		return GatewayStatus{State: "degraded", DegradedReasons: []string{"provider anthropic unavailable"}, Uptime: "1h2m"}
	}, nil)

	res := tool.Execute(context.Background(), map[string]any{"action": "status"})
	if !res.Ok() || !strings.Contains(res.ForLLM, "degraded") || !strings.Contains(res.ForLLM, "1h2m") {
		t.Fatalf("unexpected status output: %+v", res)
	}
}

func TestAgentTool_StatusWithoutStatusFuncIsAnError(t *testing.T) {
	tool := NewAgentTool(nil, nil)
	res := tool.Execute(context.Background(), map[string]any{"action": "status"})
	if res.Ok() {
		t.Fatal("expected status with no StatusFunc configured to be an error")
	}
}

func TestAgentTool_RestartForwardsReasonAndDryRun(t *testing.T) {
	restarter := &fakeRestarter{}
	tool := NewAgentTool(nil, restarter)

	res := tool.Execute(context.Background(), map[string]any{"action": "restart", "reason": "rotate credentials", "dry_run": true})
	if !res.Ok() {
		t.Fatalf("restart failed: %s", res.Err)
	}
	if restarter.calledReason != "rotate credentials" || !restarter.calledDryRun {
		t.Fatalf("expected reason/dryRun forwarded, got reason=%q dryRun=%v", restarter.calledReason, restarter.calledDryRun)
	}
}

func TestAgentTool_RestartSurfacesRestarterError(t *testing.T) {
	restarter := &fakeRestarter{err: errors.New("restart already in progress")}
	tool := NewAgentTool(nil, restarter)

	res := tool.Execute(context.Background(), map[string]any{"action": "restart"})
	if res.Ok() {
		t.Fatal("expected the restarter's error to surface as a failed result")
	}
}

func TestAgentTool_RestartWithoutRestarterIsAnError(t *testing.T) {
	tool := NewAgentTool(nil, nil)
	res := tool.Execute(context.Background(), map[string]any{"action": "restart"})
	if res.Ok() {
		t.Fatal("expected restart with no Restarter configured to be an error")
	}
}

func TestAgentTool_UnknownActionIsAnError(t *testing.T) {
	tool := NewAgentTool(nil, nil)
	res := tool.Execute(context.Background(), map[string]any{"action": "bogus"})
	if res.Ok() {
		t.Fatal("expected an unknown action to be an error")
	}
}
