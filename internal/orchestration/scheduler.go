package orchestration

import (
	"context"
	"sync"
)

// Scheduler owns one Lane per session. Sessions run fully in parallel;
// within a session, the Lane enforces at-most-one-active (spec.md §5
// "Scheduling model").
type Scheduler struct {
	mu    sync.Mutex
	lanes map[string]*Lane

	snapshot *SnapshotStore // nil disables persistence
}

// NewScheduler builds a Scheduler. snapshot may be nil to disable lane
// persistence (e.g. in tests).
func NewScheduler(snapshot *SnapshotStore) *Scheduler {
	return &Scheduler{lanes: make(map[string]*Lane), snapshot: snapshot}
}

// Lane returns the lane for sessionID, creating it with cfg if absent.
// Once created, a lane's Config is fixed for the process lifetime; a later
// call with a different cfg returns the existing lane unchanged.
func (s *Scheduler) Lane(sessionID string, cfg Config, run TurnFunc) *Lane {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.lanes[sessionID]; ok {
		return l
	}
	l := newLane(sessionID, cfg, run, context.Background(), s.persistAll)
	s.lanes[sessionID] = l
	return l
}

// Lanes returns a snapshot of every currently-known lane, for the control
// API's `GET /orchestration/lanes` route.
func (s *Scheduler) Lanes() []LaneSnapshot {
	s.mu.Lock()
	lanes := make([]*Lane, 0, len(s.lanes))
	for _, l := range s.lanes {
		lanes = append(lanes, l)
	}
	s.mu.Unlock()

	out := make([]LaneSnapshot, len(lanes))
	for i, l := range lanes {
		out[i] = l.Snapshot()
	}
	return out
}

// StopAll cancels every lane's active turn and drains its queue, for
// gateway shutdown (spec.md §5: "Gateway stop aborts all active lanes and
// rejects queued entries with 'Gateway is stopping'").
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	lanes := make([]*Lane, 0, len(s.lanes))
	for _, l := range s.lanes {
		lanes = append(lanes, l)
	}
	s.mu.Unlock()

	for _, l := range lanes {
		l.Stop("Gateway is stopping")
	}
}

func (s *Scheduler) persistAll() {
	if s.snapshot == nil {
		return
	}
	_ = s.snapshot.Write(s.Lanes())
}

// Restore reloads a persisted snapshot and recreates each lane, with any
// in-flight (activeInput) turn requeued as the queue head per spec.md
// §4.4. run resolves a TurnFunc for a restored session (callers typically
// close over their session manager).
func (s *Scheduler) Restore(run func(sessionID string) TurnFunc) error {
	if s.snapshot == nil {
		return nil
	}
	snap, err := s.snapshot.Read()
	if err != nil {
		return err
	}
	for _, ls := range snap.Lanes {
		cfg := Config{Mode: ls.Mode, Cap: ls.Cap, DropPolicy: ls.DropPolicy, CollectDebounceMs: ls.CollectDebounceMs}
		l := s.Lane(ls.SessionID, cfg, run(ls.SessionID))

		inputs := ls.QueuedInputs
		if ls.ActiveInput != nil {
			inputs = append([]string{*ls.ActiveInput}, inputs...)
		}
		for _, input := range inputs {
			// Submitting in order re-creates queue position: the first
			// call starts running immediately (becomes the new active
			// turn under a fresh cancellation token), subsequent calls
			// land behind it in the queue. Nothing is listening on the
			// returned channel across a process restart; outcomes are
			// only visible via session history afterward.
			_ = l.Submit(input, nil, nil)
		}
	}
	return nil
}
