package evolution

import (
	"context"
	"testing"

	"github.com/trinity-cloud/drost/internal/tools"
	"github.com/trinity-cloud/drost/internal/tracing"
)

type fakeStepTool struct {
	name string
	fail bool
}

func (f *fakeStepTool) Name() string        { return f.name }
func (f *fakeStepTool) Description() string { return "test step tool" }
func (f *fakeStepTool) Parameters() map[string]any { return nil }
func (f *fakeStepTool) Execute(ctx context.Context, input map[string]any) *tools.Result {
	if f.fail {
		return tools.ErrorResult("step failed")
	}
	return tools.NewResult("step ok")
}

func newTestRunner(t *testing.T, fail bool) *Runner {
	t.Helper()
	registry := tools.NewRegistry([]tools.Definition{&fakeStepTool{name: "step", fail: fail}}, nil)
	rt := tools.NewRuntime(registry, tracing.NoopTracer())
	return NewRunner(rt, t.TempDir(), nil, 2)
}

func TestRunner_Begin_ClaimsTheSingleSlot(t *testing.T) {
	r := newTestRunner(t, false)
	tx, err := r.Begin("sess_1", []Step{{ToolName: "step"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.TotalSteps != 1 || tx.SessionID != "sess_1" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if _, err := r.Begin("sess_2", nil); err == nil {
		t.Fatal("expected a second Begin while one is active to be rejected")
	}
}

func TestRunner_Current_ReflectsActiveTransaction(t *testing.T) {
	r := newTestRunner(t, false)
	if r.Current() != nil {
		t.Fatal("expected no active transaction before Begin")
	}
	tx, _ := r.Begin("sess_1", []Step{{ToolName: "step"}})
	if r.Current() != tx {
		t.Fatal("expected Current to return the just-begun transaction")
	}
}

func TestRunner_Run_ExecutesStepsAndReleasesSlotOnSuccess(t *testing.T) {
	r := newTestRunner(t, false)
	steps := []Step{{ToolName: "step"}, {ToolName: "step"}, {ToolName: "step"}}
	tx, _ := r.Begin("sess_1", steps)

	finished, err := r.Run(context.Background(), tx, steps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if finished.CompletedSteps != 3 {
		t.Fatalf("expected 3 completed steps, got %d", finished.CompletedSteps)
	}
	for i, res := range finished.Results {
		if !res.OK {
			t.Fatalf("expected step %d to succeed, got %+v", i, res)
		}
	}
	if r.Current() != nil {
		t.Fatal("expected the transaction slot to be released after Run completes")
	}

	// The slot being free means a fresh Begin now succeeds.
	if _, err := r.Begin("sess_2", nil); err != nil {
		t.Fatalf("expected Begin to succeed once the prior transaction finished: %v", err)
	}
}

func TestRunner_Run_RecordsFailedStepsAndReturnsError(t *testing.T) {
	r := newTestRunner(t, true)
	steps := []Step{{ToolName: "step"}}
	tx, _ := r.Begin("sess_1", steps)

	finished, err := r.Run(context.Background(), tx, steps)
	if err == nil {
		t.Fatal("expected Run to surface the failing step's error")
	}
	if len(finished.Results) != 1 || finished.Results[0].OK {
		t.Fatalf("expected the recorded result to be marked failed, got %+v", finished.Results)
	}
	if r.Current() != nil {
		t.Fatal("expected the transaction slot to be released even on failure")
	}
}

func TestRunner_Run_PreservesStepOrderRegardlessOfCompletionOrder(t *testing.T) {
	r := newTestRunner(t, false)
	steps := []Step{{ToolName: "step"}, {ToolName: "step"}, {ToolName: "step"}, {ToolName: "step"}}
	tx, _ := r.Begin("sess_1", steps)

	finished, err := r.Run(context.Background(), tx, steps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(finished.Results) != len(steps) {
		t.Fatalf("expected %d results, got %d", len(steps), len(finished.Results))
	}
	for i, res := range finished.Results {
		if res.Step.ToolName != steps[i].ToolName {
			t.Fatalf("expected result %d to correspond to the step at the same index", i)
		}
	}
}

func TestSummarize_CountsOkAndFailed(t *testing.T) {
	results := []StepResult{{OK: true}, {OK: false}, {OK: true}}
	summary := summarize(results)
	if summary != "3 step(s) completed: 2 ok, 1 failed" {
		t.Fatalf("unexpected summary: %q", summary)
	}
}
