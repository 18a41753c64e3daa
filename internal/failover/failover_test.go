package failover

import (
	"errors"
	"testing"
	"time"

	"github.com/trinity-cloud/drost/internal/gwerr"
)

func fastConfig() Config {
	return Config{
		MaxRetries:      1,
		RetryDelay:      time.Millisecond,
		TripThreshold:   2,
		UntripThreshold: 1,
		CooldownPeriod:  20 * time.Millisecond,
	}
}

func TestManager_NewProviderStartsHealthyAndAvailable(t *testing.T) {
	m := NewManager(fastConfig())
	if !m.Available("p1") {
		t.Fatal("a provider never seen before should be available")
	}
}

func TestManager_TripsAfterThresholdConsecutiveFailures(t *testing.T) {
	m := NewManager(fastConfig())
	m.RecordFailure("p1")
	if !m.Available("p1") {
		t.Fatal("a single failure below TripThreshold should not trip availability")
	}
	m.RecordFailure("p1")
	if m.Available("p1") {
		t.Fatal("reaching TripThreshold consecutive failures should trip the provider unavailable")
	}
}

func TestManager_UntripsAfterCooldownAndSuccess(t *testing.T) {
	m := NewManager(fastConfig())
	m.RecordFailure("p1")
	m.RecordFailure("p1")
	if m.Available("p1") {
		t.Fatal("expected tripped provider to be unavailable immediately")
	}

	time.Sleep(30 * time.Millisecond) // past CooldownPeriod
	if !m.Available("p1") {
		t.Fatal("expected provider to become available again after its cooldown window")
	}
}

func TestManager_SuccessResetsConsecutiveFailureCount(t *testing.T) {
	m := NewManager(fastConfig())
	m.RecordFailure("p1")
	m.RecordSuccess("p1")
	m.RecordFailure("p1")
	if !m.Available("p1") {
		t.Fatal("a success between failures should reset the streak, so one more failure shouldn't trip")
	}
}

func TestManager_NextFallback_SkipsUnavailableProviders(t *testing.T) {
	m := NewManager(fastConfig())
	m.RecordFailure("p1")
	m.RecordFailure("p1") // trips p1

	got := m.NextFallback([]string{"p1", "p2"})
	if got != "p2" {
		t.Fatalf("expected NextFallback to skip tripped p1 and return p2, got %q", got)
	}
}

func TestManager_NextFallback_NoneAvailable(t *testing.T) {
	m := NewManager(fastConfig())
	m.RecordFailure("p1")
	m.RecordFailure("p1")
	if got := m.NextFallback([]string{"p1"}); got != "" {
		t.Fatalf("expected empty string when no fallback is available, got %q", got)
	}
}

func TestClassify_MatchesKindRetryable(t *testing.T) {
	if !Classify(gwerr.New(gwerr.KindProviderTransport, "reset")) {
		t.Fatal("KindProviderTransport should be classified retryable")
	}
	if Classify(gwerr.New(gwerr.KindValidationError, "bad input")) {
		t.Fatal("KindValidationError should not be classified retryable")
	}
}

func TestRunWithFailover_SucceedsOnPrimary(t *testing.T) {
	m := NewManager(fastConfig())
	used, err := m.RunWithFailover("p1", []string{"p2"}, func(providerID string) error {
		return nil
	})
	if err != nil || used != "p1" {
		t.Fatalf("expected primary success, got used=%q err=%v", used, err)
	}
}

func TestRunWithFailover_RetriesPrimaryBeforeFallingOver(t *testing.T) {
	m := NewManager(fastConfig())
	var calls int
	used, err := m.RunWithFailover("p1", []string{"p2"}, func(providerID string) error {
		calls++
		if providerID == "p1" {
			return gwerr.New(gwerr.KindProviderTransport, "flaky")
		}
		return nil
	})
	if err != nil || used != "p2" {
		t.Fatalf("expected eventual fallback success on p2, got used=%q err=%v", used, err)
	}
	// MaxRetries=1 means primary gets 2 attempts (1 retry) before falling over.
	if calls != 3 {
		t.Fatalf("expected 2 attempts on p1 plus 1 on p2 = 3 calls, got %d", calls)
	}
}

func TestRunWithFailover_TerminalErrorStopsImmediately(t *testing.T) {
	m := NewManager(fastConfig())
	var calls int
	used, err := m.RunWithFailover("p1", []string{"p2"}, func(providerID string) error {
		calls++
		return gwerr.New(gwerr.KindValidationError, "bad request")
	})
	if err == nil || used != "p1" {
		t.Fatalf("expected terminal error to stop on p1 without falling over, got used=%q err=%v", used, err)
	}
	if calls != 1 {
		t.Fatalf("a terminal (non-retryable) error should not be retried, got %d calls", calls)
	}
}

func TestRunWithFailover_SkipsUnavailableFallback(t *testing.T) {
	m := NewManager(fastConfig())
	m.RecordFailure("p2")
	m.RecordFailure("p2") // trips p2

	var attemptedProviders []string
	_, _ = m.RunWithFailover("p1", []string{"p2", "p3"}, func(providerID string) error {
		attemptedProviders = append(attemptedProviders, providerID)
		if providerID == "p3" {
			return nil
		}
		return gwerr.New(gwerr.KindProviderTransport, "down")
	})

	for _, id := range attemptedProviders {
		if id == "p2" {
			t.Fatal("a tripped, not-yet-cooled-down fallback should never be attempted")
		}
	}
}

func TestRunWithFailover_AllFailReturnsLastError(t *testing.T) {
	m := NewManager(fastConfig())
	sentinel := errors.New("boom")
	_, err := m.RunWithFailover("p1", nil, func(providerID string) error {
		return gwerr.Wrap(gwerr.KindProviderTransport, "call failed", sentinel)
	})
	if err == nil {
		t.Fatal("expected an error when every attempt fails")
	}
}
