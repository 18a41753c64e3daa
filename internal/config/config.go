// Package config loads the gateway's root configuration: a JSON5 file on
// disk overlaid with environment variables for anything secret. Grounded
// in the teacher's internal/config/config.go (mutex-guarded root Config,
// FlexibleStringSlice JSON quirk, env-only secret fields) generalized to
// this gateway's module set instead of the teacher's channel/agent shape.
package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON5, matching
// the teacher's tolerance for loosely-typed hand-edited config files.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the gateway's root configuration.
type Config struct {
	Providers     ProvidersConfig     `json:"providers"`
	Routes        map[string]Route    `json:"routes,omitempty"`
	Gateway       GatewayConfig       `json:"gateway"`
	Tools         ToolsConfig         `json:"tools"`
	Sessions      SessionsConfig      `json:"sessions"`
	Orchestration OrchestrationConfig `json:"orchestration"`
	Control       ControlConfig       `json:"control"`
	Tracing       TracingConfig       `json:"tracing,omitempty"`

	mu sync.RWMutex
}

// ProviderConfig configures one named provider endpoint. APIKey is never
// read from the config file — only from env (mirrors the teacher's
// DatabaseConfig.PostgresDSN "env only" pattern).
type ProviderConfig struct {
	AdapterID     string            `json:"adapterId"`
	Kind          string            `json:"kind,omitempty"`
	Family        string            `json:"family"`
	BaseURL       string            `json:"baseUrl,omitempty"`
	Model         string            `json:"model"`
	APIKey        string            `json:"-"`
	AuthProfileID string            `json:"authProfileId,omitempty"`
	WireQuirks    map[string]string `json:"wireQuirks,omitempty"`
}

// ProvidersConfig holds every configured provider profile, keyed by
// provider ID, plus which one is used when a session names none.
type ProvidersConfig struct {
	Default string                    `json:"default"`
	List    map[string]ProviderConfig `json:"list"`
}

// Route names a primary provider and its failover chain, matching
// sessionmgr.Route.
type Route struct {
	PrimaryProviderID   string   `json:"primaryProviderId"`
	FallbackProviderIDs []string `json:"fallbackProviderIds,omitempty"`
}

// GatewayConfig holds the workspace directory, the turn bounds shared
// across every session and the restart budget. Host and Port are loaded
// (and env-overridable) but the gateway does not listen on them; the
// Control API listens on ControlConfig.Addr.
type GatewayConfig struct {
	Host              string `json:"host"`
	Port              int    `json:"port"`
	WorkspaceDir      string `json:"workspaceDir"`
	MaxToolIterations int    `json:"maxToolIterations,omitempty"`
	MaxToolCalls      int    `json:"maxToolCalls,omitempty"`
	RestartMaxRetries int    `json:"restartMaxRetries,omitempty"`
	RestartWindowMin  int    `json:"restartWindowMin,omitempty"`
}

// ShellToolConfig configures the exec/shell builtin tool's prefix policy.
type ShellToolConfig struct {
	AllowCommandPrefixes FlexibleStringSlice `json:"allowCommandPrefixes,omitempty"`
	DenyCommandPrefixes  FlexibleStringSlice `json:"denyCommandPrefixes,omitempty"`
}

// WebToolConfig configures the web.fetch/web.search builtin tool. The
// gateway applies HeadlessRender; Enabled, MaxResults and UserAgent are
// loaded but not read.
type WebToolConfig struct {
	Enabled        bool   `json:"enabled"`
	HeadlessRender bool   `json:"headlessRender,omitempty"` // use go-rod for JS-heavy pages
	MaxResults     int    `json:"maxResults,omitempty"`
	UserAgent      string `json:"userAgent,omitempty"`
}

// ToolsConfig configures the tool runtime's builtin tools and default
// policy.
type ToolsConfig struct {
	DefaultProfile string          `json:"defaultProfile,omitempty"` // "" or "strict"
	DeniedTools    []string        `json:"deniedTools,omitempty"`
	AllowedTools   []string        `json:"allowedTools,omitempty"`
	Shell          ShellToolConfig `json:"shell,omitempty"`
	Web            WebToolConfig   `json:"web,omitempty"`
}

// SessionsConfig configures the session store's on-disk layout.
type SessionsConfig struct {
	Storage          string `json:"storage"`
	ImageThumbnailPx int    `json:"imageThumbnailPx,omitempty"` // not read: the store bounds imageRefs at a fixed 1024px edge
}

// OrchestrationConfig describes lane behavior. The gateway reads only
// SnapshotPath; Mode, Cap, DropPolicy and CollectDebounceMs are loaded but
// not applied, and lanes are created with orchestration.DefaultConfig().
type OrchestrationConfig struct {
	Mode              string `json:"mode"` // queue|interrupt|collect|steer|steer_backlog
	Cap               int    `json:"cap,omitempty"`
	DropPolicy        string `json:"dropPolicy,omitempty"` // old|new|summarize
	CollectDebounceMs int    `json:"collectDebounceMs,omitempty"`
	SnapshotPath      string `json:"snapshotPath,omitempty"`
}

// ControlConfig configures the Control API listener.
type ControlConfig struct {
	Addr               string              `json:"addr"`
	AdminTokens        FlexibleStringSlice `json:"-"` // env only
	ReadOnlyTokens     FlexibleStringSlice `json:"-"` // env only
	AllowLoopback      bool                `json:"allowLoopback,omitempty"`
	MutationsPerMinute int                 `json:"mutationsPerMinute,omitempty"`
	AuditPostgresDSN   string              `json:"-"` // env only
	AuditFallbackPath  string              `json:"auditFallbackPath,omitempty"`
	CORSAllowedOrigins []string            `json:"corsAllowedOrigins,omitempty"`
	Tailscale          TailscaleConfig     `json:"tailscale,omitempty"`
}

// TailscaleConfig configures the optional tsnet second listener that
// exposes the Control API over a private tailnet. Only honored in
// binaries built with `-tags tsnet`; AuthKey is env-only, never
// persisted.
type TailscaleConfig struct {
	Hostname  string `json:"hostname,omitempty"`
	StateDir  string `json:"stateDir,omitempty"`
	AuthKey   string `json:"-"` // from env DROST_TSNET_AUTH_KEY only
	Ephemeral bool   `json:"ephemeral,omitempty"`
}

// TracingConfig configures OpenTelemetry trace export.
type TracingConfig struct {
	Enabled      bool   `json:"enabled,omitempty"`
	OTLPEndpoint string `json:"otlpEndpoint,omitempty"`
	ServiceName  string `json:"serviceName,omitempty"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Providers = src.Providers
	c.Routes = src.Routes
	c.Gateway = src.Gateway
	c.Tools = src.Tools
	c.Sessions = src.Sessions
	c.Orchestration = src.Orchestration
	c.Control = src.Control
	c.Tracing = src.Tracing
}

// Snapshot returns a copy of the config safe to read without holding c's
// lock afterward.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	cp.mu = sync.RWMutex{}
	return cp
}
