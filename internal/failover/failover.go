// Package failover implements the per-provider health state machine and
// ordered fallback walk described in spec.md §4.3. New package: the
// teacher has no explicit failover state machine, only the implicit
// retry-or-fail shape inside agent/loop.go's provider-call error
// handling, which this generalizes into an explicit, independently
// testable type.
package failover

import (
	"sync"
	"time"

	"github.com/trinity-cloud/drost/internal/gwerr"
)

// Config tunes retry/trip behavior, shared across all providers tracked
// by one Manager.
type Config struct {
	MaxRetries      int
	RetryDelay      time.Duration
	TripThreshold   int // consecutive failures before tripping
	UntripThreshold int // consecutive successes before untripping
	CooldownPeriod  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      2,
		RetryDelay:      200 * time.Millisecond,
		TripThreshold:   5,
		UntripThreshold: 1,
		CooldownPeriod:  30 * time.Second,
	}
}

type providerState struct {
	healthy            bool
	tripped            bool
	consecutiveFailures int
	consecutiveSuccesses int
	lastFailureAt       time.Time
	trippedAt           time.Time
}

// Manager tracks per-provider health and resolves the next provider to try
// during a turn's failover walk.
type Manager struct {
	mu    sync.Mutex
	cfg   Config
	state map[string]*providerState
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, state: make(map[string]*providerState)}
}

func (m *Manager) stateFor(providerID string) *providerState {
	s, ok := m.state[providerID]
	if !ok {
		s = &providerState{healthy: true}
		m.state[providerID] = s
	}
	return s
}

// RecordSuccess marks providerID healthy and untrips it once
// UntripThreshold consecutive successes are observed.
func (m *Manager) RecordSuccess(providerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stateFor(providerID)
	s.consecutiveFailures = 0
	s.consecutiveSuccesses++
	if s.tripped && s.consecutiveSuccesses >= m.cfg.UntripThreshold {
		s.tripped = false
		s.healthy = true
	}
	if !s.tripped {
		s.healthy = true
	}
}

// RecordFailure marks a failure against providerID, tripping it once
// TripThreshold consecutive failures accumulate.
func (m *Manager) RecordFailure(providerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stateFor(providerID)
	s.consecutiveSuccesses = 0
	s.consecutiveFailures++
	s.lastFailureAt = time.Now()
	if s.consecutiveFailures >= m.cfg.TripThreshold {
		s.tripped = true
		s.trippedAt = s.lastFailureAt
		s.healthy = false
	}
}

// Available reports whether providerID may currently be selected: either
// never tripped, or tripped but past its cooldown window.
func (m *Manager) Available(providerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stateFor(providerID)
	if !s.tripped {
		return true
	}
	return time.Since(s.trippedAt) >= m.cfg.CooldownPeriod
}

// NextFallback walks route (fallback ids, in order) and returns the first
// one that is Available. Returns "" if none are available.
func (m *Manager) NextFallback(route []string) string {
	for _, id := range route {
		if m.Available(id) {
			return id
		}
	}
	return ""
}

// Classify maps a turn error to whether it should trigger the retry/
// failover path (retryable) or fail the turn immediately (terminal).
func Classify(err error) (retryable bool) {
	return gwerr.KindOf(err).Retryable()
}

// RunWithFailover invokes fn against primary, retrying up to cfg.MaxRetries
// times with backoff on a retryable failure, then walking fallbackRoute in
// order. It returns the id of the provider that ultimately succeeded (or
// was last attempted) alongside fn's result.
func (m *Manager) RunWithFailover(primary string, fallbackRoute []string, fn func(providerID string) error) (usedProviderID string, err error) {
	candidates := append([]string{primary}, fallbackRoute...)

	var lastErr error
	lastAttempted := primary
	for i, providerID := range candidates {
		if i > 0 && !m.Available(providerID) {
			continue
		}

		attempts := 1
		if i == 0 {
			attempts = m.cfg.MaxRetries + 1
		}

		for attempt := 0; attempt < attempts; attempt++ {
			if attempt > 0 {
				time.Sleep(m.cfg.RetryDelay)
			}
			lastAttempted = providerID
			callErr := fn(providerID)
			if callErr == nil {
				m.RecordSuccess(providerID)
				return providerID, nil
			}
			lastErr = callErr
			if !Classify(callErr) {
				return providerID, callErr
			}
			m.RecordFailure(providerID)
		}
	}
	return lastAttempted, lastErr
}
