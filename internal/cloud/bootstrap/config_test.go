package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigPath(t *testing.T) {
	got := ConfigPath(filepath.Join("data", "skiff.db"))
	want := filepath.Join("data", ConfigFileName)
	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skiff.db")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed on missing sidecar: %v", err)
	}
	if cfg != nil {
		t.Error("missing sidecar must yield a nil config")
	}
	if cfg.Enabled() {
		t.Error("nil config reports Enabled")
	}
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skiff.db")
	if err := os.WriteFile(ConfigPath(path), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() accepted malformed JSON")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skiff.db")
	in := SyncConfig{URL: "libsql://notes.turso.io", Token: "secret"}
	if err := SaveConfig(path, in); err != nil {
		t.Fatalf("SaveConfig() failed: %v", err)
	}

	info, err := os.Stat(ConfigPath(path))
	if err != nil {
		t.Fatalf("stat sidecar: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("sidecar permissions = %o, want 600", perm)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg == nil || *cfg != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", cfg, in)
	}
}

func TestSyncConfigEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  *SyncConfig
		want bool
	}{
		{"nil", nil, false},
		{"both set", &SyncConfig{URL: "libsql://a", Token: "t"}, true},
		{"missing token", &SyncConfig{URL: "libsql://a"}, false},
		{"missing url", &SyncConfig{Token: "t"}, false},
		{"whitespace only", &SyncConfig{URL: "  ", Token: "\t"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}
