// Package evolution implements the evolution transaction: a recorded,
// bounded-parallel sequence of tool invocations that mutates code within
// a session's mutable roots, optionally followed by a restart request.
// Grounded in the teacher's internal/agent/loop.go parallel-tool-call
// goroutine+channel fan-out (sequential ordering of results by index),
// generalized per spec.md §3/§4.5 into a transaction with step tracking
// and the single-active-transaction-per-process invariant; step
// concurrency here uses golang.org/x/sync/errgroup rather than a raw
// WaitGroup+channel, since the teacher's pack (SPEC_FULL.md Domain Stack)
// names errgroup specifically for this concern.
package evolution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/trinity-cloud/drost/internal/gwerr"
	"github.com/trinity-cloud/drost/internal/pathpolicy"
	"github.com/trinity-cloud/drost/internal/tools"
)

// Step is one planned tool invocation within a transaction.
type Step struct {
	ToolName string
	Input    map[string]any
}

// StepResult is one step's outcome, recorded in completion order.
type StepResult struct {
	Step     Step
	OK       bool
	Output   string
	Error    string
	Duration time.Duration
}

// Transaction is the on-disk-shaped record described in spec.md §3:
// `{transactionId, sessionId, totalSteps, completedSteps, summary?}`.
type Transaction struct {
	TransactionID  string
	SessionID      string
	TotalSteps     int
	CompletedSteps int
	Summary        string

	Results []StepResult
}

// Runner executes evolution transactions. At most one transaction may be
// active per process (spec.md invariant); a concurrent request is
// rejected with gwerr.KindConflict ("busy").
type Runner struct {
	mu     sync.Mutex
	active *Transaction

	tools        *tools.Runtime
	workspaceDir string
	extraRoots   []string
	concurrency  int
}

// NewRunner builds a Runner. extraRoots are appended to the workspace
// root as additional mutable roots for the duration of every transaction
// (spec.md §4.8: "evolution may extend them (e.g. ./agent, ./runtime)").
func NewRunner(rt *tools.Runtime, workspaceDir string, extraRoots []string, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Runner{tools: rt, workspaceDir: workspaceDir, extraRoots: extraRoots, concurrency: concurrency}
}

// Begin claims the single transaction slot or returns gwerr.KindConflict
// if one is already active.
func (r *Runner) Begin(sessionID string, steps []Step) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, gwerr.New(gwerr.KindConflict, "busy: an evolution transaction is already active")
	}
	tx := &Transaction{
		TransactionID: "evo_" + uuid.NewString(),
		SessionID:     sessionID,
		TotalSteps:    len(steps),
	}
	r.active = tx
	return tx, nil
}

func (r *Runner) end() {
	r.mu.Lock()
	r.active = nil
	r.mu.Unlock()
}

// Current returns the in-flight transaction, if any.
func (r *Runner) Current() *Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Run executes steps with bounded parallelism (r.concurrency) against
// sessionID's mutable-roots-extended workspace, recording results in
// step order regardless of completion order, and stops claiming the
// transaction slot when done (success or first failed step, whether the
// tool could not be run or its result is marked as an error).
func (r *Runner) Run(ctx context.Context, tx *Transaction, steps []Step) (*Transaction, error) {
	defer r.end()

	policy := &pathpolicy.Policy{MutableRoots: append([]string{r.workspaceDir}, r.extraRoots...)}
	execCtx := tools.ExecContext{WorkspaceDir: r.workspaceDir, Policy: policy, SessionID: tx.SessionID}

	results := make([]StepResult, len(steps))
	completed := 0
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, step := range steps {
		i, step := i, step
		g.Go(func() error {
			start := time.Now()
			result, err := r.tools.RunTool(gctx, tx.SessionID, step.ToolName, step.Input, tools.Policy{}, execCtx, nil)
			sr := StepResult{Step: step, Duration: time.Since(start)}
			if err != nil {
				sr.Error = err.Error()
			} else {
				sr.OK = result.Ok()
				sr.Output = result.ForLLM
				sr.Error = result.Err
			}
			results[i] = sr

			mu.Lock()
			completed++
			tx.CompletedSteps = completed
			mu.Unlock()

			if err != nil {
				return fmt.Errorf("evolution step %d (%s): %w", i, step.ToolName, err)
			}
			if !sr.OK {
				return fmt.Errorf("evolution step %d (%s): %s", i, step.ToolName, sr.Error)
			}
			return nil
		})
	}

	runErr := g.Wait()
	tx.Results = results
	tx.Summary = summarize(results)
	return tx, runErr
}

func summarize(results []StepResult) string {
	ok, failed := 0, 0
	for _, r := range results {
		if r.OK {
			ok++
		} else {
			failed++
		}
	}
	return fmt.Sprintf("%d step(s) completed: %d ok, %d failed", len(results), ok, failed)
}
