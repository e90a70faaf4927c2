package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile_UsesDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_BASE_URL", "")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source != path {
		t.Fatalf("cfg.Source = %q, want %q", cfg.Source, path)
	}
	if cfg.MaxCallDepth != DefaultMaxCallDepth {
		t.Fatalf("cfg.MaxCallDepth = %d, want %d", cfg.MaxCallDepth, DefaultMaxCallDepth)
	}
	if cfg.ApprovalMode != ApprovalPrompt {
		t.Fatalf("cfg.ApprovalMode = %q, want %q", cfg.ApprovalMode, ApprovalPrompt)
	}
}

func TestLoad_FromTOML(t *testing.T) {
	t.Setenv("ANTHROPIC_BASE_URL", "")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`
provider = "openai"
url = "https://example.test"
token = "test-token"
model = "gpt-test"
registry_root = "/srv/workers"
max_call_depth = 3
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "gpt-test" {
		t.Fatalf("cfg.Model = %q, want %q", cfg.Model, "gpt-test")
	}
	if cfg.RegistryRoot != "/srv/workers" {
		t.Fatalf("cfg.RegistryRoot = %q", cfg.RegistryRoot)
	}
	if cfg.MaxCallDepth != 3 {
		t.Fatalf("cfg.MaxCallDepth = %d, want 3", cfg.MaxCallDepth)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"unknown provider", func(c *Config) { c.Provider = "mystery" }, "provider"},
		{"zero depth", func(c *Config) { c.MaxCallDepth = 0 }, "max_call_depth"},
		{"bad approval mode", func(c *Config) { c.ApprovalMode = "sometimes" }, "approval_mode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mut(&cfg)
			err := cfg.Validate()
			var cfgErr ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tc.field {
				t.Fatalf("ConfigError.Field = %q, want %q", cfgErr.Field, tc.field)
			}
		})
	}
}

func TestApplyKVOverrides(t *testing.T) {
	cfg := Default()
	got := ApplyKVOverrides(cfg, []string{"model=override-model", "max_call_depth=5", "log_path=/tmp/alt.log"})
	if got.Model != "override-model" {
		t.Fatalf("ApplyKVOverrides(...).Model = %q", got.Model)
	}
	if got.MaxCallDepth != 5 {
		t.Fatalf("ApplyKVOverrides(...).MaxCallDepth = %d", got.MaxCallDepth)
	}
	if got.LogPath != "/tmp/alt.log" {
		t.Fatalf("ApplyKVOverrides(...).LogPath = %q", got.LogPath)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("ANTHROPIC_BASE_URL", "")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	cfg := Default()
	cfg.Model = "roundtrip"
	cfg.LogPath = "logs/alt.log"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Model != "roundtrip" {
		t.Fatalf("loaded.Model = %q", loaded.Model)
	}
	if loaded.LogPath != "logs/alt.log" {
		t.Fatalf("loaded.LogPath = %q", loaded.LogPath)
	}
}

func TestSaveFallsBackToSource(t *testing.T) {
	t.Setenv("ANTHROPIC_BASE_URL", "")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.RegistryRoot = "/srv/altered"
	if err := Save(cfg, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if loaded.RegistryRoot != "/srv/altered" {
		t.Fatalf("loaded.RegistryRoot = %q", loaded.RegistryRoot)
	}
}
