// Package sessionmgr implements the session+provider manager: per-session
// conversation state, provider selection, the streaming turn loop with
// tool-call parsing, and cross-provider failover. Grounded heavily in the
// teacher's internal/agent/loop.go (Run/runLoop iteration structure; the
// tool calls of one iteration run here one after another in call order)
// and internal/sessions/manager.go (session state shape), generalized per
// spec.md §4.1 with text-mode tool-call parsing, failover-aware adapter
// invocation, budget/loop-abort, the auto-web heuristic, and
// snapshot-delta dedup — none of which the teacher's loop implements.
package sessionmgr

import (
	"sync"
	"time"

	"github.com/trinity-cloud/drost/internal/failover"
	"github.com/trinity-cloud/drost/internal/gwerr"
	"github.com/trinity-cloud/drost/internal/pathpolicy"
	"github.com/trinity-cloud/drost/internal/providers"
	"github.com/trinity-cloud/drost/internal/store"
	"github.com/trinity-cloud/drost/internal/tools"
)

// Route is an ordered list of providers used when failover is enabled.
type Route struct {
	PrimaryProviderID  string
	FallbackProviderIDs []string
}

// Config bounds one turn's behavior.
type Config struct {
	MaxToolIterations int
	MaxToolCalls      int
	WorkspaceDir      string

	// ToolProfile/DeniedTools/AllowedTools mirror config.ToolsConfig and
	// are compiled into a tools.Policy for every tool call a turn makes.
	ToolProfile  tools.Profile
	DeniedTools  []string
	AllowedTools []string
}

func DefaultConfig() Config {
	return Config{MaxToolIterations: 20, MaxToolCalls: 20}
}

// Manager owns every session's transient turnInProgress flag and routes
// turns through providers/tools/store. Sessions themselves are not kept
// resident in memory beyond the in-flight turn — each RunTurn loads from
// the store and saves back, matching the store's exclusive-ownership
// model (spec.md §3).
type Manager struct {
	mu      sync.Mutex
	active  map[string]bool // sessionId -> turn in progress
	pending map[string]string // sessionId -> pendingProviderId

	Store       *store.FileStore
	Adapters    map[string]providers.Adapter
	Profiles    map[string]providers.Profile
	Failover    *failover.Manager
	Tools       *tools.Runtime
	Config      Config
	DefaultProvider string

	Now func() time.Time
}

// New builds a Manager. adapters/profiles must be keyed by ProviderID.
func New(st *store.FileStore, adapters map[string]providers.Adapter, profiles map[string]providers.Profile, fo *failover.Manager, tr *tools.Runtime, cfg Config, defaultProvider string) *Manager {
	return &Manager{
		active:          make(map[string]bool),
		pending:         make(map[string]string),
		Store:           st,
		Adapters:        adapters,
		Profiles:        profiles,
		Failover:        fo,
		Tools:           tr,
		Config:          cfg,
		DefaultProvider: defaultProvider,
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSession loads sessionID from the store, or creates a fresh record
// bound to providerID (or Manager.DefaultProvider) if absent. Idempotent.
func (m *Manager) EnsureSession(sessionID, providerID string) (*store.Record, error) {
	rec, diag, err := m.Store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}
	_ = diag // a quarantined record is treated the same as absent: start fresh

	if providerID == "" {
		providerID = m.DefaultProvider
	}
	if _, ok := m.Adapters[providerID]; providerID != "" && !ok {
		return nil, gwerr.New(gwerr.KindUnknownProvider, providerID)
	}

	now := m.Now()
	fresh := &store.Record{
		Version:          store.CurrentVersion,
		SessionID:        sessionID,
		ActiveProviderID: providerID,
		Metadata: store.Metadata{
			CreatedAt:      now,
			LastActivityAt: now,
		},
	}
	saved, _, err := m.Store.Save(fresh)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// QueueProviderSwitch records providerID to be swapped in at the next turn
// boundary (never mid-turn, per spec.md §4.1 step 1 / §5 ordering
// guarantees).
func (m *Manager) QueueProviderSwitch(sessionID, providerID string) error {
	if _, ok := m.Adapters[providerID]; !ok {
		return gwerr.New(gwerr.KindUnknownProvider, providerID)
	}
	m.mu.Lock()
	m.pending[sessionID] = providerID
	m.mu.Unlock()
	return nil
}

func (m *Manager) takePending(sessionID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.pending[sessionID]
	if ok {
		delete(m.pending, sessionID)
	}
	return id, ok
}

// beginTurn enforces "exactly one turn in progress per session".
func (m *Manager) beginTurn(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[sessionID] {
		return gwerr.New(gwerr.KindTurnInProgress, sessionID)
	}
	m.active[sessionID] = true
	return nil
}

func (m *Manager) endTurn(sessionID string) {
	m.mu.Lock()
	delete(m.active, sessionID)
	m.mu.Unlock()
}

// GetHistory returns the current persisted history for sessionID.
func (m *Manager) GetHistory(sessionID string) ([]store.Message, error) {
	rec, diag, err := m.Store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		if diag != nil {
			return nil, gwerr.New(gwerr.KindCorrupt, diag.Message)
		}
		return nil, gwerr.New(gwerr.KindUnknownSession, sessionID)
	}
	return rec.History, nil
}

// ListSessions returns the index snapshot (see store.FileStore.ListIndex).
func (m *Manager) ListSessions() ([]store.IndexEntry, error) {
	return m.Store.ListIndex()
}

// DeleteSession removes a session's record (transcripts survive).
func (m *Manager) DeleteSession(sessionID string) error {
	return m.Store.Delete(sessionID)
}

// RenameSession moves a session's record to a new id.
func (m *Manager) RenameSession(sessionID, toSessionID string) (*store.Record, error) {
	return m.Store.Rename(sessionID, toSessionID)
}

// HydrateSession loads and returns the record without mutating anything,
// failing UnknownSession if absent.
func (m *Manager) HydrateSession(sessionID string) (*store.Record, error) {
	rec, diag, err := m.Store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		if diag != nil {
			return nil, gwerr.New(gwerr.KindCorrupt, diag.Message)
		}
		return nil, gwerr.New(gwerr.KindUnknownSession, sessionID)
	}
	return rec, nil
}

// UpdateSessionMetadata merges mutate into the session's metadata and
// persists it immediately (outside the turn loop).
func (m *Manager) UpdateSessionMetadata(sessionID string, mutate func(*store.Metadata)) (*store.Record, error) {
	rec, err := m.HydrateSession(sessionID)
	if err != nil {
		return nil, err
	}
	mutate(&rec.Metadata)
	saved, _, err := m.Store.Save(rec)
	return saved, err
}

// workspacePolicy returns the path policy applied to tool execution for
// a turn. Evolution transactions may extend mutable roots beyond this.
func (m *Manager) workspacePolicy() *pathpolicy.Policy {
	return pathpolicy.New(m.Config.WorkspaceDir)
}

// toolPolicy builds the tools.Policy enforced for every tool call made
// during a turn, from the deny/allow/profile configuration loaded at
// startup (config.ToolsConfig).
func (m *Manager) toolPolicy() tools.Policy {
	return tools.Policy{
		Profile:      m.Config.ToolProfile,
		DeniedTools:  m.Config.DeniedTools,
		AllowedTools: m.Config.AllowedTools,
	}
}

// ToolPolicy exposes toolPolicy for callers outside the package (the
// Control API's direct tool-run route applies the same policy a turn
// would).
func (m *Manager) ToolPolicy() tools.Policy {
	return m.toolPolicy()
}

// ToolExecContext exposes workspacePolicy wrapped into a tools.ExecContext
// for callers outside the package, tagged with the given providerID.
func (m *Manager) ToolExecContext(providerID string) tools.ExecContext {
	return tools.ExecContext{
		WorkspaceDir: m.Config.WorkspaceDir,
		Policy:       m.workspacePolicy(),
		ProviderID:   providerID,
	}
}
