package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults for standalone use.
func Default() *Config {
	return &Config{
		Providers: ProvidersConfig{
			Default: "anthropic",
			List: map[string]ProviderConfig{
				"anthropic": {AdapterID: "anthropic", Family: "anthropic", Model: "claude-sonnet-4-5-20250929"},
			},
		},
		Gateway: GatewayConfig{
			Host:              "0.0.0.0",
			Port:              18790,
			WorkspaceDir:      "~/.drost/workspace",
			MaxToolIterations: 20,
			MaxToolCalls:      20,
			RestartMaxRetries: 5,
			RestartWindowMin:  10,
		},
		Tools: ToolsConfig{
			Web: WebToolConfig{Enabled: true, MaxResults: 5},
		},
		Sessions: SessionsConfig{
			Storage: "~/.drost/sessions",
		},
		Orchestration: OrchestrationConfig{
			Mode:              "queue",
			Cap:               8,
			DropPolicy:        "old",
			CollectDebounceMs: 750,
			SnapshotPath:      "~/.drost/lanes.json",
		},
		Control: ControlConfig{
			Addr:               "127.0.0.1:18791",
			AllowLoopback:      true,
			MutationsPerMinute: 60,
			AuditFallbackPath:  "~/.drost/audit.jsonl",
		},
	}
}

// Load reads config from a JSON5 file (the teacher's config_load.go does
// the same), then overlays secrets and operator overrides from env. A
// missing file is not an error: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays secrets and operator knobs from env. Env
// always wins over the file, matching the teacher's precedence.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	for id, p := range c.Providers.List {
		envKey := "DROST_" + strings.ToUpper(id) + "_API_KEY"
		if v := os.Getenv(envKey); v != "" {
			p.APIKey = v
			c.Providers.List[id] = p
		}
	}

	envStr("DROST_HOST", &c.Gateway.Host)
	if v := os.Getenv("DROST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	envStr("DROST_WORKSPACE", &c.Gateway.WorkspaceDir)
	envStr("DROST_SESSIONS_STORAGE", &c.Sessions.Storage)

	envStr("DROST_CONTROL_ADDR", &c.Control.Addr)
	if v := os.Getenv("DROST_CONTROL_ADMIN_TOKENS"); v != "" {
		c.Control.AdminTokens = strings.Split(v, ",")
	}
	if v := os.Getenv("DROST_CONTROL_READONLY_TOKENS"); v != "" {
		c.Control.ReadOnlyTokens = strings.Split(v, ",")
	}
	envStr("DROST_AUDIT_POSTGRES_DSN", &c.Control.AuditPostgresDSN)
	envStr("DROST_TSNET_AUTH_KEY", &c.Control.Tailscale.AuthKey)

	if v := os.Getenv("DROST_TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = v == "true" || v == "1"
	}
	envStr("DROST_TRACING_OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint)
	envStr("DROST_TRACING_SERVICE_NAME", &c.Tracing.ServiceName)
}

// Save writes the config to a JSON file (secrets, being "-" tagged,
// are never written back to disk).
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a short SHA-256 hash of the config's JSON encoding. The
// gateway lifecycle's config watcher does not compare hashes: any write,
// create or rename of the config file requests a self_mod restart.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
