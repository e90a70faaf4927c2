package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Approval modes understood by the CLI.
const (
	ApprovalPrompt = "prompt"
	ApprovalAllow  = "auto-approve"
	ApprovalReject = "auto-reject"
)

// DefaultMaxCallDepth bounds recursive worker delegation.
const DefaultMaxCallDepth = 8

// Config is the only persisted config file schema. Environment variables are
// folded in once at load time; nothing reads the environment afterwards.
type Config struct {
	Provider     string `toml:"provider"`
	URL          string `toml:"url"`
	Token        string `toml:"token"`
	Model        string `toml:"model"`
	RegistryRoot string `toml:"registry_root"`
	MaxCallDepth int    `toml:"max_call_depth"`
	ApprovalMode string `toml:"approval_mode"`
	LogPath      string `toml:"log_path"`
	Source       string `toml:"-"`
}

// ConfigError reports an invalid startup configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("config: invalid %s: %s", e.Field, e.Reason)
}

func Default() Config {
	return Config{
		Provider:     "anthropic",
		RegistryRoot: "workers",
		MaxCallDepth: DefaultMaxCallDepth,
		ApprovalMode: ApprovalPrompt,
	}
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".worker-cli", "config.toml")
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, errors.New("config path is empty and $HOME is not set")
	}
	cfg.Source = path

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return applyEnv(cfg), nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return cfg, err
	}
	return applyEnv(cfg), nil
}

// Validate rejects values the engine cannot start with.
func (c Config) Validate() error {
	switch c.Provider {
	case "anthropic", "openai", "echo":
	default:
		return ConfigError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", c.Provider)}
	}
	if c.MaxCallDepth <= 0 {
		return ConfigError{Field: "max_call_depth", Reason: "must be positive"}
	}
	switch c.ApprovalMode {
	case ApprovalPrompt, ApprovalAllow, ApprovalReject:
	default:
		return ConfigError{Field: "approval_mode", Reason: fmt.Sprintf("unknown mode %q", c.ApprovalMode)}
	}
	return nil
}

func applyEnv(cfg Config) Config {
	if env := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")); env != "" && cfg.Provider == "anthropic" {
		cfg.URL = env
	}
	if env := strings.TrimSpace(os.Getenv("ANTHROPIC_AUTH_TOKEN")); env != "" && cfg.Provider == "anthropic" {
		cfg.Token = env
	}
	if env := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); env != "" && cfg.Provider == "openai" {
		cfg.URL = env
	}
	if env := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); env != "" && cfg.Provider == "openai" {
		cfg.Token = env
	}
	return cfg
}
