// Package store implements the crash-safe per-session record store:
// atomic writes via per-session lock files, an index mirror, quarantine of
// corrupt records, and an archive directory for retired sessions.
package store

import "time"

// CurrentVersion is the on-disk schema version written by Save. Version 1
// records are accepted read-only on Load and upgraded on next Save.
const CurrentVersion = 2

// Role enumerates message roles in a session's history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a session's history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	ImageRefs []string  `json:"imageRefs,omitempty"`
}

// Origin records where a channel-originated session came from.
type Origin struct {
	Channel     string `json:"channel,omitempty"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	AccountID   string `json:"accountId,omitempty"`
	ChatID      string `json:"chatId,omitempty"`
	UserID      string `json:"userId,omitempty"`
	ThreadID    string `json:"threadId,omitempty"`
}

// SkillInjectionMode controls how much skill context is injected per turn.
type SkillInjectionMode string

const (
	SkillInjectionOff       SkillInjectionMode = "off"
	SkillInjectionAll       SkillInjectionMode = "all"
	SkillInjectionRelevant  SkillInjectionMode = "relevant"
)

// Metadata holds a session's descriptive, non-history fields.
type Metadata struct {
	CreatedAt          time.Time          `json:"createdAt"`
	LastActivityAt     time.Time          `json:"lastActivityAt"`
	Title              string             `json:"title,omitempty"`
	Origin             *Origin            `json:"origin,omitempty"`
	ProviderRouteID    string             `json:"providerRouteId,omitempty"`
	SkillInjectionMode SkillInjectionMode `json:"skillInjectionMode,omitempty"`
	Label              string             `json:"label,omitempty"`
	SpawnedBy          string             `json:"spawnedBy,omitempty"`
	SpawnDepth         int                `json:"spawnDepth,omitempty"`
	InputTokens        int64              `json:"inputTokens,omitempty"`
	OutputTokens       int64              `json:"outputTokens,omitempty"`
	LastPromptTokens   int                `json:"lastPromptTokens,omitempty"`
	LastMessageCount   int                `json:"lastMessageCount,omitempty"`
}

// Record is the canonical on-disk session record (v2).
type Record struct {
	Version           int       `json:"version"`
	SessionID         string    `json:"sessionId"`
	ActiveProviderID  string    `json:"activeProviderId,omitempty"`
	PendingProviderID string    `json:"pendingProviderId,omitempty"`
	History           []Message `json:"history"`
	Metadata          Metadata  `json:"metadata"`
	Revision          int64     `json:"revision"`
	UpdatedAt         time.Time `json:"updatedAt"`

	// TurnInProgress is transient: never persisted (Save omits the field).
	// The session manager tracks in-progress turns in its own map and does
	// not set this field on the Records it returns.
	TurnInProgress bool `json:"-"`
}

// Clone returns a deep-enough copy of r suitable for mutation without
// aliasing slices with the original.
func (r *Record) Clone() *Record {
	cp := *r
	cp.History = make([]Message, len(r.History))
	copy(cp.History, r.History)
	if r.Metadata.Origin != nil {
		o := *r.Metadata.Origin
		cp.Metadata.Origin = &o
	}
	return &cp
}

// IndexEntry is the lightweight per-session mirror kept in the index file.
type IndexEntry struct {
	SessionID        string    `json:"sessionId"`
	ActiveProviderID string    `json:"activeProviderId,omitempty"`
	HistoryCount     int       `json:"historyCount"`
	Revision         int64     `json:"revision"`
	CreatedAt        time.Time `json:"createdAt"`
	LastActivityAt   time.Time `json:"lastActivityAt"`
	Title            string    `json:"title,omitempty"`
	Origin           *Origin   `json:"origin,omitempty"`
}

func entryFromRecord(r *Record) IndexEntry {
	return IndexEntry{
		SessionID:        r.SessionID,
		ActiveProviderID: r.ActiveProviderID,
		HistoryCount:     len(r.History),
		Revision:         r.Revision,
		CreatedAt:        r.Metadata.CreatedAt,
		LastActivityAt:   r.Metadata.LastActivityAt,
		Title:            r.Metadata.Title,
		Origin:           r.Metadata.Origin,
	}
}
