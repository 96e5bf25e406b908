package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig_CollectorDefaults verifies the documented collection limits
func TestDefaultConfig_CollectorDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Collector.MaxImages != 20 {
		t.Errorf("expected default MaxImages 20, got %d", cfg.Collector.MaxImages)
	}
	if cfg.Collector.GenerateCooldownMS != 5000 {
		t.Errorf("expected default cooldown 5000ms, got %d", cfg.Collector.GenerateCooldownMS)
	}
}

// TestDefaultConfig_HandshakeDefaults verifies the readiness polling defaults
func TestDefaultConfig_HandshakeDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Handshake.PollIntervalMS != 500 {
		t.Errorf("expected poll interval 500ms, got %d", cfg.Handshake.PollIntervalMS)
	}
	if cfg.Handshake.TimeoutMS != 10000 {
		t.Errorf("expected ready timeout 10000ms, got %d", cfg.Handshake.TimeoutMS)
	}
}

// TestDefaultConfig_OutputCap verifies the output size ceiling default
func TestDefaultConfig_OutputCap(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Output.MaxOutputSizeMB != 25 {
		t.Errorf("expected 25MB output cap, got %d", cfg.Output.MaxOutputSizeMB)
	}
	if cfg.MaxOutputBytes() != 25*1024*1024 {
		t.Errorf("MaxOutputBytes mismatch: %d", cfg.MaxOutputBytes())
	}
}

// TestDefaultConfig_ChannelsDisabled verifies no transport starts without opt-in
func TestDefaultConfig_ChannelsDisabled(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Channels.WhatsApp.Enabled {
		t.Error("WhatsApp should be disabled by default")
	}
	if cfg.Channels.Telegram.Enabled {
		t.Error("Telegram should be disabled by default")
	}
	if cfg.Channels.Discord.Enabled {
		t.Error("Discord should be disabled by default")
	}
	if cfg.Channels.Console.Enabled {
		t.Error("Console should be disabled by default")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadConfig with missing file: %v", err)
	}
	if cfg.Collector.MaxImages != 20 {
		t.Fatalf("expected defaults, got MaxImages=%d", cfg.Collector.MaxImages)
	}
}

func TestLoadConfig_FileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapdoc.json")
	body := `{"collector": {"max_images": 8}, "channels": {"telegram": {"enabled": true, "token": "tg-token"}}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Collector.MaxImages != 8 {
		t.Errorf("file overlay lost: MaxImages=%d", cfg.Collector.MaxImages)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "tg-token" {
		t.Errorf("telegram overlay lost: %+v", cfg.Channels.Telegram)
	}
	// untouched sections keep defaults
	if cfg.Handshake.TimeoutMS != 10000 {
		t.Errorf("unrelated default changed: %d", cfg.Handshake.TimeoutMS)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapdoc.json")
	if err := os.WriteFile(path, []byte(`{"collector": {"max_images": 8}}`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAX_IMAGES", "3")
	t.Setenv("READY_TIMEOUT_MS", "20000")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Collector.MaxImages != 3 {
		t.Errorf("env should win over file: MaxImages=%d", cfg.Collector.MaxImages)
	}
	if cfg.Handshake.TimeoutMS != 20000 {
		t.Errorf("env override lost: TimeoutMS=%d", cfg.Handshake.TimeoutMS)
	}
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	t.Setenv("MAX_IMAGES", "0")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected validation error for MAX_IMAGES=0")
	}
}

func TestValidate_TimeoutBelowInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Handshake.TimeoutMS = 100
	cfg.Handshake.PollIntervalMS = 500
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when timeout is below the poll interval")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.GenerateCooldown() != 5*time.Second {
		t.Errorf("GenerateCooldown: %v", cfg.GenerateCooldown())
	}
	if cfg.ReadyPollInterval() != 500*time.Millisecond {
		t.Errorf("ReadyPollInterval: %v", cfg.ReadyPollInterval())
	}
	if cfg.ReadyTimeout() != 10*time.Second {
		t.Errorf("ReadyTimeout: %v", cfg.ReadyTimeout())
	}
	if cfg.OutputRetention() != 15*time.Minute {
		t.Errorf("OutputRetention: %v", cfg.OutputRetention())
	}
}

// TestFlexibleStringSlice_MixedTypes verifies numeric allowlist entries parse
func TestFlexibleStringSlice_MixedTypes(t *testing.T) {
	var f FlexibleStringSlice
	if err := json.Unmarshal([]byte(`["123", 456, true]`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"123", "456", "true"}
	if len(f) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(f))
	}
	for i := range want {
		if f[i] != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], f[i])
		}
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snapdoc.json")
	cfg := DefaultConfig()
	cfg.Collector.MaxImages = 12

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Collector.MaxImages != 12 {
		t.Errorf("round trip lost MaxImages: %d", loaded.Collector.MaxImages)
	}
}
