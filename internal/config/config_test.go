package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_HasUsableGatewaySettings(t *testing.T) {
	cfg := Default()
	if cfg.Gateway.Port == 0 {
		t.Fatal("Default() should set a non-zero gateway port")
	}
	if cfg.Providers.Default == "" {
		t.Fatal("Default() should name a default provider")
	}
	if _, ok := cfg.Providers.List[cfg.Providers.Default]; !ok {
		t.Fatal("Default() provider list should contain the named default provider")
	}
	if cfg.Control.AuditFallbackPath == "" {
		t.Fatal("Default() must set a non-empty audit fallback path, or auditlog.New's file sink fails to open")
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json5"))
	if err != nil {
		t.Fatalf("missing config file should not be an error: %v", err)
	}
	if cfg.Gateway.Port != Default().Gateway.Port {
		t.Fatal("missing config file should fall back to Default()")
	}
}

func TestLoad_ParsesJSON5WithCommentsAndTrailingCommas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	doc := `{
  // inline comment
  providers: {
    default: "anthropic",
    list: {
      anthropic: { adapterId: "anthropic", family: "anthropic", model: "claude-sonnet-4-5-20250929" },
    },
  },
  gateway: { host: "127.0.0.1", port: 9090, workspaceDir: "/tmp/ws" },
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 9090 || cfg.Gateway.Host != "127.0.0.1" {
		t.Fatalf("unexpected gateway config: %+v", cfg.Gateway)
	}
	if cfg.Providers.List["anthropic"].Model != "claude-sonnet-4-5-20250929" {
		t.Fatalf("unexpected provider config: %+v", cfg.Providers.List["anthropic"])
	}
}

func TestLoad_EnvOverridesWinOverFileAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	doc := `{
  providers: { default: "anthropic", list: { anthropic: { adapterId: "anthropic", family: "anthropic", model: "m" } } },
  gateway: { host: "0.0.0.0", port: 1000, workspaceDir: "/tmp/ws" },
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	t.Setenv("DROST_ANTHROPIC_API_KEY", "sk-test-123")
	t.Setenv("DROST_PORT", "2000")
	t.Setenv("DROST_CONTROL_ADMIN_TOKENS", "tok-a,tok-b")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.List["anthropic"].APIKey != "sk-test-123" {
		t.Fatalf("expected env API key override, got %q", cfg.Providers.List["anthropic"].APIKey)
	}
	if cfg.Gateway.Port != 2000 {
		t.Fatalf("expected env port override to win over file, got %d", cfg.Gateway.Port)
	}
	if len(cfg.Control.AdminTokens) != 2 || cfg.Control.AdminTokens[0] != "tok-a" {
		t.Fatalf("expected admin tokens from env, got %v", cfg.Control.AdminTokens)
	}
}

func TestLoad_InvalidPortIsIgnored(t *testing.T) {
	t.Setenv("DROST_PORT", "not-a-number")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != Default().Gateway.Port {
		t.Fatalf("an invalid DROST_PORT should leave the default port untouched, got %d", cfg.Gateway.Port)
	}
}

func TestSave_NeverWritesSecretFields(t *testing.T) {
	cfg := Default()
	cfg.Providers.List["anthropic"] = ProviderConfig{AdapterID: "anthropic", Family: "anthropic", Model: "m", APIKey: "sk-should-not-persist"}
	cfg.Control.AuditPostgresDSN = "postgres://should-not-persist"

	path := filepath.Join(t.TempDir(), "sub", "config.json")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) == "" {
		t.Fatal("expected non-empty saved config")
	}
	for _, secret := range []string{"sk-should-not-persist", "should-not-persist"} {
		if strings.Contains(string(data), secret) {
			t.Fatalf("saved config leaked a secret field: contains %q", secret)
		}
	}
}

func TestHash_ChangesWithContentAndIsStable(t *testing.T) {
	a := Default()
	b := Default()
	if a.Hash() != b.Hash() {
		t.Fatal("two default configs should hash identically")
	}
	b.Gateway.Port = 99999
	if a.Hash() == b.Hash() {
		t.Fatal("changing config content should change the hash")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir available: %v", err)
	}
	if got := ExpandHome("~/foo/bar"); got != home+"/foo/bar" {
		t.Fatalf("got %q, want %q", got, home+"/foo/bar")
	}
	if got := ExpandHome("~"); got != home {
		t.Fatalf("bare ~ should expand to home dir, got %q", got)
	}
	if got := ExpandHome("/already/absolute"); got != "/already/absolute" {
		t.Fatalf("absolute path should pass through unchanged, got %q", got)
	}
}

func TestReplaceFromAndSnapshot(t *testing.T) {
	c := Default()
	snap := c.Snapshot()
	if snap.Gateway.Port != c.Gateway.Port {
		t.Fatal("Snapshot should copy current field values")
	}

	replacement := Default()
	replacement.Gateway.Port = 7777
	c.ReplaceFrom(replacement)
	if c.Gateway.Port != 7777 {
		t.Fatalf("ReplaceFrom should overwrite fields, got port %d", c.Gateway.Port)
	}
}

func TestFlexibleStringSlice_AcceptsStringsAndNumbers(t *testing.T) {
	var f FlexibleStringSlice
	if err := json.Unmarshal([]byte(`["a", "b"]`), &f); err != nil {
		t.Fatalf("unmarshal string array: %v", err)
	}
	if len(f) != 2 || f[0] != "a" || f[1] != "b" {
		t.Fatalf("unexpected result: %v", f)
	}

	var g FlexibleStringSlice
	if err := json.Unmarshal([]byte(`[1, 2, 3]`), &g); err != nil {
		t.Fatalf("unmarshal number array: %v", err)
	}
	if len(g) != 3 || g[0] != "1" || g[2] != "3" {
		t.Fatalf("unexpected coerced result: %v", g)
	}
}
