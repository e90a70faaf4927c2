package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Save persists cfg as TOML. An empty path falls back to the path cfg was
// loaded from, then to the default location. Parent directories are created
// as needed; the file is written 0600 since it may hold a token.
func Save(cfg Config, path string) error {
	if path == "" {
		path = cfg.Source
	}
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return errors.New("config path is empty and $HOME is not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
