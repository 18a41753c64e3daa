// Package orchestration implements the per-session lane scheduler:
// queue/interrupt/collect/steer/steer_backlog admission modes, bounded
// queues with drop policies, collect-mode debounce coalescing, and a
// restorable JSON snapshot of lane state. Grounded in the steering-queue
// idiom of other_examples' smallnest-goclaw agent-orchestrator.go (the
// fetchSteeringMessages/pendingMessages pattern) and the teacher's
// internal/agent/loop.go goroutine+channel tool-parallelism idiom,
// generalized per spec.md §4.4 — the teacher has no lane scheduler of its
// own, only a single linear per-call loop.
package orchestration

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Mode is one lane's admission policy.
type Mode string

const (
	ModeQueue        Mode = "queue"
	ModeInterrupt    Mode = "interrupt"
	ModeCollect      Mode = "collect"
	ModeSteer        Mode = "steer"
	ModeSteerBacklog Mode = "steer_backlog"
)

// DropPolicy governs admission once a queue-mode lane's queue is full.
type DropPolicy string

const (
	DropOld       DropPolicy = "old"
	DropNew       DropPolicy = "new"
	DropSummarize DropPolicy = "summarize" // reserved; treated as DropOld
)

// TurnOutcome is delivered to a turn's submitter(s) once it completes,
// is rejected at admission, or is cancelled by a later interrupting
// submission.
type TurnOutcome struct {
	Text string
	Err  error
}

// Event is one turn-stream event relayed to every submitter that
// contributed input to the turn producing it. A collect-mode turn folds
// several submissions together, so a single Event here may be fanned out
// to more than one caller's onEvent (spec.md §4.4 event fan-out).
type Event struct {
	Kind             string
	Text             string
	ProviderID       string
	ToolName         string
	PromptTokens     int
	CompletionTokens int
	Error            string
}

// TurnFunc executes one turn's work (typically sessionmgr.Manager.RunTurn)
// under ctx, returning the finalized assistant text. onEvent, if non-nil,
// is invoked for every stream event the turn produces.
type TurnFunc func(ctx context.Context, sessionID, input string, images []string, onEvent func(Event)) (string, error)

// resultSink delivers exactly one TurnOutcome to ch, regardless of how
// many code paths attempt to send (natural completion racing an
// interrupt's forced rejection).
type resultSink struct {
	once sync.Once
	ch   chan TurnOutcome
}

func newResultSink() *resultSink {
	return &resultSink{ch: make(chan TurnOutcome, 1)}
}

func (r *resultSink) send(o TurnOutcome) {
	r.once.Do(func() {
		r.ch <- o
		close(r.ch)
	})
}

// submitter pairs one Submit caller's result sink with its own event
// listener, so a coalesced collect-mode turn can fan one stream of events
// out to every contributing caller.
type submitter struct {
	sink    *resultSink
	onEvent func(Event)
}

func (s *submitter) notify(e Event) {
	if s.onEvent != nil {
		s.onEvent(e)
	}
}

// pendingTurn is one admitted-but-not-yet-running submission. A collect
// lane may fold several submissions' submitters into one pendingTurn
// before it runs.
type pendingTurn struct {
	input      string
	images     []string
	submitters []*submitter
	enqueuedAt time.Time
}

func (p *pendingTurn) rejectAll(reason string) {
	for _, s := range p.submitters {
		s.sink.send(TurnOutcome{Err: errors.New(reason)})
	}
}

// activeTurn is the lane's single in-flight turn.
type activeTurn struct {
	input      string
	cancel     context.CancelFunc
	submitters []*submitter
	startedAt  time.Time
}

// Config sets one lane's fixed behavior, normally sourced from the
// session's provider route or a gateway-wide default.
type Config struct {
	Mode              Mode
	Cap               int
	DropPolicy        DropPolicy
	CollectDebounceMs int
}

func DefaultConfig() Config {
	return Config{Mode: ModeQueue, Cap: 8, DropPolicy: DropOld, CollectDebounceMs: 750}
}

// Lane is the per-session scheduling cell described in spec.md §3/§4.4:
// at most one active turn, a bounded admission queue, and a mode-specific
// admission policy.
type Lane struct {
	mu        sync.Mutex
	sessionID string
	cfg       Config
	queue     []*pendingTurn
	active    *activeTurn
	timer     *time.Timer

	run       TurnFunc
	onMutate  func() // called (without the lock held) after Submit, a turn's completion and a collect flush, to persist a snapshot; Stop does not call it
	baseCtx   context.Context
}

func newLane(sessionID string, cfg Config, run TurnFunc, baseCtx context.Context, onMutate func()) *Lane {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Lane{sessionID: sessionID, cfg: cfg, run: run, baseCtx: baseCtx, onMutate: onMutate}
}

// Submit admits input under the lane's mode, returning a channel that
// receives exactly one TurnOutcome. The channel may be read immediately
// (rejection) or after the turn completes. onEvent, if non-nil, receives
// every stream event produced by the turn this submission ends up part
// of — including turns later coalesced with other submitters in
// collect mode.
func (l *Lane) Submit(input string, images []string, onEvent func(Event)) <-chan TurnOutcome {
	sub := &submitter{sink: newResultSink(), onEvent: onEvent}
	l.mu.Lock()
	switch l.cfg.Mode {
	case ModeInterrupt, ModeSteer:
		l.cancelActiveLocked("dropped by interrupt: a newer turn superseded this one")
		for _, qt := range l.queue {
			qt.rejectAll("dropped by interrupt: superseded before starting")
		}
		l.queue = nil
		l.startLocked(&pendingTurn{input: input, images: images, submitters: []*submitter{sub}, enqueuedAt: l.now()})

	case ModeCollect:
		l.queue = append(l.queue, &pendingTurn{input: input, images: images, submitters: []*submitter{sub}, enqueuedAt: l.now()})
		if l.active == nil {
			l.resetCollectTimerLocked()
		}
		// if a turn is active, the new arrival just queues; the debounce
		// window is not extended mid-turn (resolved Open Question).

	default: // queue, steer_backlog
		if l.active == nil && len(l.queue) == 0 {
			l.startLocked(&pendingTurn{input: input, images: images, submitters: []*submitter{sub}, enqueuedAt: l.now()})
		} else if l.admitToQueueLocked() {
			l.queue = append(l.queue, &pendingTurn{input: input, images: images, submitters: []*submitter{sub}, enqueuedAt: l.now()})
		} else {
			sub.sink.send(TurnOutcome{Err: errors.New("dropped by capacity: queue is full")})
		}
	}
	l.mu.Unlock()
	l.persist()
	return sub.sink.ch
}

// admitToQueueLocked applies DropPolicy when the queue is at capacity,
// returning whether the new entry may be appended.
func (l *Lane) admitToQueueLocked() bool {
	if l.cfg.Cap <= 0 || len(l.queue) < l.cfg.Cap {
		return true
	}
	switch l.cfg.DropPolicy {
	case DropNew:
		return false
	default: // old, summarize (reserved; treated as old)
		oldest := l.queue[0]
		oldest.rejectAll("dropped by capacity: oldest queued turn evicted")
		l.queue = l.queue[1:]
		return true
	}
}

// cancelActiveLocked cooperatively cancels the in-flight turn (if any)
// and immediately rejects its submitters with reason, without waiting for
// the turn's goroutine to observe cancellation.
func (l *Lane) cancelActiveLocked(reason string) {
	if l.active == nil {
		return
	}
	l.active.cancel()
	for _, s := range l.active.submitters {
		s.sink.send(TurnOutcome{Err: errors.New(reason)})
	}
	l.active = nil
}

// startLocked begins pt running in a new goroutine under a fresh
// cancellation token.
func (l *Lane) startLocked(pt *pendingTurn) {
	ctx, cancel := context.WithCancel(l.baseCtx)
	at := &activeTurn{input: pt.input, cancel: cancel, submitters: pt.submitters, startedAt: l.now()}
	l.active = at

	fanout := func(e Event) {
		for _, s := range pt.submitters {
			s.notify(e)
		}
	}

	go func() {
		text, err := l.run(ctx, l.sessionID, pt.input, pt.images, fanout)
		for _, s := range pt.submitters {
			s.sink.send(TurnOutcome{Text: text, Err: err})
		}

		l.mu.Lock()
		if l.active == at {
			l.active = nil
		}
		l.takeNextLocked()
		l.mu.Unlock()
		l.persist()
	}()
}

// takeNextLocked advances the lane once its active slot frees up.
func (l *Lane) takeNextLocked() {
	if l.active != nil {
		return
	}
	if l.cfg.Mode == ModeCollect {
		if len(l.queue) > 0 {
			l.resetCollectTimerLocked()
		}
		return
	}
	if len(l.queue) == 0 {
		return
	}
	pt := l.queue[0]
	l.queue = l.queue[1:]
	l.startLocked(pt)
}

// resetCollectTimerLocked (re)arms the collect debounce timer. Each call
// replaces any existing timer, extending the quiet window.
func (l *Lane) resetCollectTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
	}
	d := time.Duration(l.cfg.CollectDebounceMs) * time.Millisecond
	if d <= 0 {
		d = 750 * time.Millisecond
	}
	l.timer = time.AfterFunc(d, l.flushCollect)
}

// flushCollect coalesces every queued entry into one synthetic turn whose
// input is the entries' inputs joined by blank lines, per spec.md §4.4.
func (l *Lane) flushCollect() {
	l.mu.Lock()
	if l.active != nil || len(l.queue) == 0 {
		l.mu.Unlock()
		return
	}
	merged := l.queue
	l.queue = nil

	var inputs []string
	var images []string
	var submitters []*submitter
	for _, pt := range merged {
		inputs = append(inputs, pt.input)
		images = append(images, pt.images...)
		submitters = append(submitters, pt.submitters...)
	}
	l.startLocked(&pendingTurn{input: joinBlankLines(inputs), images: images, submitters: submitters, enqueuedAt: l.now()})
	l.mu.Unlock()
	l.persist()
}

func (l *Lane) now() time.Time { return time.Now().UTC() }

func (l *Lane) persist() {
	if l.onMutate != nil {
		l.onMutate()
	}
}

func joinBlankLines(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n\n"
		}
		out += p
	}
	return out
}

// Stop cancels the active turn (if any) and rejects every queued entry
// with msg. Used on gateway shutdown.
func (l *Lane) Stop(msg string) {
	l.mu.Lock()
	l.cancelActiveLocked(msg)
	for _, qt := range l.queue {
		qt.rejectAll(msg)
	}
	l.queue = nil
	if l.timer != nil {
		l.timer.Stop()
	}
	l.mu.Unlock()
}

// Snapshot captures the lane's current queued/active inputs for
// persistence (spec.md §6 lane snapshot file shape).
func (l *Lane) Snapshot() LaneSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := LaneSnapshot{
		SessionID:         l.sessionID,
		Mode:              l.cfg.Mode,
		Cap:               l.cfg.Cap,
		DropPolicy:        l.cfg.DropPolicy,
		CollectDebounceMs: l.cfg.CollectDebounceMs,
	}
	for _, pt := range l.queue {
		s.QueuedInputs = append(s.QueuedInputs, pt.input)
	}
	if l.active != nil {
		s.ActiveInput = &l.active.input
	}
	return s
}
