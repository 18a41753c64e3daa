// Package gatewaylifecycle implements the gateway's start/stop state
// machine, degradation tracking, and restart classification described in
// spec.md §4.7. Grounded in the teacher's cmd/root.go/cmd/doctor.go
// startup-sequencing idiom (a linear list of best-effort setup steps) and
// internal/upgrade/checker.go's self-restart trigger, generalized into an
// explicit state machine with a restart-history budget the teacher does
// not have.
package gatewaylifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// State is one of the gateway's lifecycle states.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateDegraded State = "degraded"
	StateStopping State = "stopping"
)

// RestartExitCode is the well-known exit code an external supervisor
// watches for to know a restart (rather than a crash) is requested.
const RestartExitCode = 42

// RestartIntent classifies the source of a restart request.
type RestartIntent string

const (
	IntentManual  RestartIntent = "manual"
	IntentSignal  RestartIntent = "signal"
	IntentSelfMod RestartIntent = "self_mod"
)

// RestartRecord is one entry in the rolling restart-history window.
type RestartRecord struct {
	At     time.Time
	Intent RestartIntent
	Reason string
}

// RestartBudget bounds how many restarts may occur within Window before
// further requests are refused as "restart storm" (spec.md invariant:
// "the restart budget over its rolling window is never exceeded").
type RestartBudget struct {
	MaxRestarts int
	Window      time.Duration
}

func DefaultRestartBudget() RestartBudget {
	return RestartBudget{MaxRestarts: 5, Window: 10 * time.Minute}
}

// StartStep is one named step of the start sequence. A step's error is
// recorded as a degradation reason rather than aborting startup, unless
// Fatal is true.
type StartStep struct {
	Name  string
	Fatal bool
	Run   func(ctx context.Context) error
}

// Gateway owns the lifecycle state machine, degradedReasons, and restart
// history for one process.
type Gateway struct {
	mu             sync.Mutex
	state          State
	degradedReasons []string
	restarts       []RestartRecord
	budget         RestartBudget

	startedAt time.Time

	watcher      *fsnotify.Watcher
	watchedPath  string
	onSelfMod    func(reason string)
}

// New builds a Gateway in the stopped state.
func New(budget RestartBudget) *Gateway {
	return &Gateway{state: StateStopped, budget: budget}
}

// State returns the current lifecycle state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// DegradedReasons returns a copy of the accumulated degradation reasons.
// Never cleared except by a fresh Start (spec.md §5 "Shared-resource
// policy").
func (g *Gateway) DegradedReasons() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.degradedReasons))
	copy(out, g.degradedReasons)
	return out
}

// Uptime returns time since the last successful Start, zero if stopped.
func (g *Gateway) Uptime() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateStopped {
		return 0
	}
	return time.Since(g.startedAt)
}

// Start runs steps in order. Each non-fatal failure is recorded into
// degradedReasons without aborting; a fatal failure aborts immediately
// and returns the error, leaving state stopped.
func (g *Gateway) Start(ctx context.Context, steps []StartStep) error {
	g.mu.Lock()
	g.state = StateStarting
	g.degradedReasons = nil
	g.startedAt = time.Now().UTC()
	g.mu.Unlock()

	degraded := false
	for _, step := range steps {
		if err := step.Run(ctx); err != nil {
			if step.Fatal {
				g.mu.Lock()
				g.state = StateStopped
				g.mu.Unlock()
				return fmt.Errorf("fatal startup step %q: %w", step.Name, err)
			}
			degraded = true
			g.addDegradedReason(fmt.Sprintf("%s: %v", step.Name, err))
			slog.Warn("gateway.start.step_degraded", "step", step.Name, "error", err)
		}
	}

	g.mu.Lock()
	if degraded {
		g.state = StateDegraded
	} else {
		g.state = StateRunning
	}
	g.mu.Unlock()
	slog.Info("gateway.started", "state", g.State())
	return nil
}

func (g *Gateway) addDegradedReason(reason string) {
	g.mu.Lock()
	g.degradedReasons = append(g.degradedReasons, reason)
	g.mu.Unlock()
}

// Stop transitions through stopping to stopped, closing the config
// watcher if one was started.
func (g *Gateway) Stop() {
	g.mu.Lock()
	g.state = StateStopping
	g.mu.Unlock()

	if g.watcher != nil {
		_ = g.watcher.Close()
	}

	g.mu.Lock()
	g.state = StateStopped
	g.mu.Unlock()
	slog.Info("gateway.stopped")
}

// WatchConfig starts an fsnotify watcher on configPath; a write, create or
// rename event is classified as a self_mod restart intent and handed to onEvent
// (wired by the caller to gatewaylifecycle.Gateway.RequestRestart).
func (g *Gateway) WatchConfig(configPath string, onEvent func(reason string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(configPath); err != nil {
		w.Close()
		return fmt.Errorf("config watcher add %s: %w", configPath, err)
	}
	g.watcher = w
	g.watchedPath = configPath
	g.onSelfMod = onEvent

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Create) != 0 {
					slog.Info("gateway.config_changed", "path", ev.Name, "op", ev.Op.String())
					if g.onSelfMod != nil {
						g.onSelfMod(fmt.Sprintf("config file changed: %s", ev.Name))
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("gateway.config_watch_error", "error", err)
			}
		}
	}()
	return nil
}

// RequestRestart classifies and records a restart request, enforcing the
// rolling-window budget. Returns (true, nil) if approved — the caller
// should then exit(RestartExitCode). self_mod requests are approved by
// default without additional policy (spec.md §4.7); manual/signal always
// pass through the same budget check.
func (g *Gateway) RequestRestart(intent RestartIntent, reason string) (approved bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	cutoff := now.Add(-g.budget.Window)
	var kept []RestartRecord
	for _, r := range g.restarts {
		if r.At.After(cutoff) {
			kept = append(kept, r)
		}
	}
	g.restarts = kept

	if len(g.restarts) >= g.budget.MaxRestarts {
		return false, fmt.Errorf("restart budget exceeded: %d restarts within %s", g.budget.MaxRestarts, g.budget.Window)
	}

	g.restarts = append(g.restarts, RestartRecord{At: now, Intent: intent, Reason: reason})
	return true, nil
}

// RestartHistory returns a copy of the current rolling-window restart
// records, for the control API's status route.
func (g *Gateway) RestartHistory() []RestartRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]RestartRecord, len(g.restarts))
	copy(out, g.restarts)
	return out
}
