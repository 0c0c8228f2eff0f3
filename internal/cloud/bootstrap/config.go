package bootstrap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ConfigFileName is the sidecar file stored next to the database file.
// Its presence, with both fields populated, is the sole switch that
// enables cloud mode.
const ConfigFileName = "sync_config.json"

// SyncConfig holds the cloud endpoint credentials.
type SyncConfig struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// Enabled reports whether the config carries usable credentials.
func (c *SyncConfig) Enabled() bool {
	return c != nil && strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.Token) != ""
}

// ConfigPath returns the sidecar path for a database file path.
func ConfigPath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), ConfigFileName)
}

// LoadConfig reads the sidecar config next to dbPath. A missing file
// returns (nil, nil); an unreadable or malformed file returns an error.
func LoadConfig(dbPath string) (*SyncConfig, error) {
	raw, err := os.ReadFile(ConfigPath(dbPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sync config: %w", err)
	}
	cfg := &SyncConfig{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse sync config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the sidecar config next to dbPath.
func SaveConfig(dbPath string, cfg SyncConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sync config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(ConfigPath(dbPath), raw, 0o600); err != nil {
		return fmt.Errorf("write sync config: %w", err)
	}
	return nil
}
