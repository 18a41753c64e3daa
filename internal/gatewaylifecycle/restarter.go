package gatewaylifecycle

import (
	"context"
	"fmt"
	"log/slog"
)

// Exiter performs the actual process exit once a restart is approved.
// Wired by cmd/ to os.Exit(gatewaylifecycle.RestartExitCode); kept as an
// interface so the decision logic here stays testable without exiting
// the test process.
type Exiter interface {
	Exit(code int)
}

// ToolRestarter adapts Gateway to tools.RestartRequester, so the `agent`
// tool's restart action and the control API's `POST /restart` route share
// one approval path.
type ToolRestarter struct {
	Gateway *Gateway
	Exit    Exiter
	Intent  RestartIntent // IntentSelfMod for tool-triggered requests, IntentManual for control API
}

// RequestRestart satisfies tools.RestartRequester. dryRun validates the
// budget and returns its decision without scheduling an exit.
func (r *ToolRestarter) RequestRestart(ctx context.Context, reason string, dryRun bool) error {
	approved, err := r.Gateway.RequestRestart(r.Intent, reason)
	if err != nil {
		return err
	}
	if !approved {
		return fmt.Errorf("restart request denied")
	}
	if dryRun {
		return nil
	}
	slog.Info("gateway.restart_requested", "intent", r.Intent, "reason", reason)
	if r.Exit != nil {
		// Exit asynchronously so the caller (tool result, HTTP response)
		// finishes flushing before the process terminates.
		go r.Exit.Exit(RestartExitCode)
	}
	return nil
}
