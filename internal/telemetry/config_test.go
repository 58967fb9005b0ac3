package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/josephgoksu/ShiftWing/internal/config"
)

func useConfigDir(t *testing.T, dir string) {
	t.Helper()
	SetConfigDir(dir)
	t.Cleanup(func() { SetConfigDir("") })
}

func TestLoad_NewConfig(t *testing.T) {
	useConfigDir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Enabled || cfg.ConsentAsked {
		t.Errorf("new config should be disabled and unasked, got %+v", cfg)
	}
	if len(cfg.AnonymousID) != 36 {
		t.Errorf("AnonymousID should be a UUID, got %q", cfg.AnonymousID)
	}
}

func TestSave_RoundTripAndPermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	useConfigDir(t, dir)

	original := &Config{AnonymousID: "roundtrip-uuid"}
	original.Enable()
	if err := original.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, ConfigFileName))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file permissions = %o, want 0600", info.Mode().Perm())
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *loaded != *original {
		t.Errorf("Load() = %+v, want %+v", loaded, original)
	}
}

func TestLoad_GeneratesUUID_WhenMissing(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)

	data, _ := json.Marshal(Config{Enabled: true, ConsentAsked: true})
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), data, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Enabled || len(cfg.AnonymousID) != 36 {
		t.Errorf("expected enabled config with generated UUID, got %+v", cfg)
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("{not json"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Load(); err == nil {
		t.Error("Load() should fail on a corrupt consent file")
	}
}

func TestConfig_Consent(t *testing.T) {
	cfg := &Config{}
	if !cfg.NeedsConsent() {
		t.Error("unanswered config should need consent")
	}
	cfg.Enable()
	if !cfg.IsEnabled() || cfg.NeedsConsent() {
		t.Errorf("Enable() should record a yes, got %+v", cfg)
	}
	cfg.Disable()
	if cfg.IsEnabled() || cfg.NeedsConsent() {
		t.Errorf("Disable() should record a no, got %+v", cfg)
	}
}

func TestNew_RequiresEveryOptIn(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)

	tests := []struct {
		name    string
		tc      config.TelemetryConfig
		consent bool
	}{
		{"disabled in config", config.TelemetryConfig{Enabled: false, APIKey: "k"}, true},
		{"no api key", config.TelemetryConfig{Enabled: true}, true},
		{"no consent", config.TelemetryConfig{Enabled: true, APIKey: "k"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{AnonymousID: "id"}
			if tt.consent {
				c.Enable()
			} else {
				c.Disable()
			}
			if err := c.Save(); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			client, err := New(tt.tc, "1.0.0")
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if _, ok := client.(*NoopClient); !ok {
				t.Errorf("New() = %T, want *NoopClient", client)
			}
		})
	}
}
