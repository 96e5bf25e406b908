package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
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

type Config struct {
	Collector  CollectorConfig  `json:"collector"`
	Handshake  HandshakeConfig  `json:"handshake"`
	Processing ProcessingConfig `json:"processing"`
	Output     OutputConfig     `json:"output"`
	Worker     WorkerConfig     `json:"worker"`
	Storage    StorageConfig    `json:"storage"`
	Cleanup    CleanupConfig    `json:"cleanup"`
	Channels   ChannelsConfig   `json:"channels"`
	Logging    LoggingConfig    `json:"logging"`
}

type CollectorConfig struct {
	MaxImages          int `json:"max_images" env:"MAX_IMAGES"`
	GenerateCooldownMS int `json:"generate_cooldown_ms" env:"GENERATE_COOLDOWN_MS"`
	TriggerTimeoutMS   int `json:"trigger_timeout_ms" env:"TRIGGER_TIMEOUT_MS"`
}

type HandshakeConfig struct {
	PollIntervalMS int `json:"poll_interval_ms" env:"READY_POLL_INTERVAL_MS"`
	TimeoutMS      int `json:"timeout_ms" env:"READY_TIMEOUT_MS"`
}

type ProcessingConfig struct {
	TargetLongEdge int    `json:"target_long_edge" env:"TARGET_LONG_EDGE"`
	JPEGQuality    int    `json:"jpeg_quality" env:"JPEG_QUALITY"`
	SegmenterURL   string `json:"segmenter_url" env:"SEGMENTER_URL"`
}

type OutputConfig struct {
	MaxOutputSizeMB int    `json:"max_output_size_mb" env:"MAX_OUTPUT_SIZE_MB"`
	PreviewEnabled  bool   `json:"preview_enabled" env:"PREVIEW_ENABLED"`
	DocumentAuthor  string `json:"document_author" env:"PDF_AUTHOR"`
}

type WorkerConfig struct {
	// URL of a remote worker service; empty runs the worker in-process.
	URL    string `json:"url" env:"WORKER_URL"`
	Listen string `json:"listen" env:"WORKER_LISTEN"`
	// FallbackLocal runs batches in-process while a remote worker is
	// unreachable instead of failing them.
	FallbackLocal bool `json:"fallback_local" env:"WORKER_FALLBACK_LOCAL"`
}

type StorageConfig struct {
	DataDir                string `json:"data_dir" env:"DATA_DIR"`
	UploadDir              string `json:"upload_dir" env:"UPLOAD_DIR"`
	SessionFlushDebounceMS int    `json:"session_flush_debounce_ms" env:"SESSION_FLUSH_DEBOUNCE_MS"`
}

type CleanupConfig struct {
	OutputRetentionMin int    `json:"output_retention_min" env:"OUTPUT_RETENTION_MIN"`
	SweepCron          string `json:"sweep_cron" env:"CLEANUP_SWEEP_CRON"`
}

type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	Console  ConsoleConfig  `json:"console"`
}

type WhatsAppConfig struct {
	Enabled   bool                `json:"enabled" env:"WHATSAPP_ENABLED"`
	BridgeURL string              `json:"bridge_url" env:"WHATSAPP_BRIDGE_URL"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"WHATSAPP_ALLOW_FROM"`
}

type TelegramConfig struct {
	Enabled   bool                `json:"enabled" env:"TELEGRAM_ENABLED"`
	Token     string              `json:"token" env:"TELEGRAM_TOKEN"`
	Proxy     string              `json:"proxy" env:"TELEGRAM_PROXY"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"TELEGRAM_ALLOW_FROM"`
}

type DiscordConfig struct {
	Enabled   bool                `json:"enabled" env:"DISCORD_ENABLED"`
	Token     string              `json:"token" env:"DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"DISCORD_ALLOW_FROM"`
}

type ConsoleConfig struct {
	Enabled bool `json:"enabled" env:"CONSOLE_ENABLED"`
}

type LoggingConfig struct {
	Level       string `json:"level" env:"LOG_LEVEL"`
	FileEnabled bool   `json:"file_enabled" env:"LOG_FILE_ENABLED"`
	FilePath    string `json:"file_path" env:"LOG_FILE"`
	MaxSizeMB   int    `json:"max_size_mb" env:"LOG_MAX_SIZE_MB"`
	MaxAgeDays  int    `json:"max_age_days" env:"LOG_MAX_AGE_DAYS"`
}

func DefaultConfig() *Config {
	return &Config{
		Collector: CollectorConfig{
			MaxImages:          20,
			GenerateCooldownMS: 5000,
			TriggerTimeoutMS:   30000,
		},
		Handshake: HandshakeConfig{
			PollIntervalMS: 500,
			TimeoutMS:      10000,
		},
		Processing: ProcessingConfig{
			TargetLongEdge: 2339,
			JPEGQuality:    92,
			SegmenterURL:   "",
		},
		Output: OutputConfig{
			MaxOutputSizeMB: 25,
			PreviewEnabled:  false,
			DocumentAuthor:  "snapdoc",
		},
		Worker: WorkerConfig{
			URL:    "",
			Listen: ":8090",
		},
		Storage: StorageConfig{
			DataDir:                "./data",
			UploadDir:              "./uploads",
			SessionFlushDebounceMS: 250,
		},
		Cleanup: CleanupConfig{
			OutputRetentionMin: 15,
			SweepCron:          "*/10 * * * *",
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				Enabled:   false,
				BridgeURL: "ws://localhost:3001",
				AllowFrom: FlexibleStringSlice{},
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
			Discord: DiscordConfig{
				Enabled:   false,
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
			Console: ConsoleConfig{
				Enabled: false,
			},
		},
		Logging: LoggingConfig{
			Level:       "info",
			FileEnabled: false,
			FilePath:    "./data/snapdoc.log",
			MaxSizeMB:   50,
			MaxAgeDays:  7,
		},
	}
}

// LoadConfig builds the effective configuration: defaults, overlaid by the
// JSON file at path when present, overlaid by environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Collector.MaxImages < 1 {
		return fmt.Errorf("MAX_IMAGES must be at least 1, got %d", c.Collector.MaxImages)
	}
	if c.Handshake.PollIntervalMS < 1 {
		return fmt.Errorf("READY_POLL_INTERVAL_MS must be positive, got %d", c.Handshake.PollIntervalMS)
	}
	if c.Handshake.TimeoutMS < c.Handshake.PollIntervalMS {
		return fmt.Errorf("READY_TIMEOUT_MS (%d) must not be below READY_POLL_INTERVAL_MS (%d)",
			c.Handshake.TimeoutMS, c.Handshake.PollIntervalMS)
	}
	if c.Output.MaxOutputSizeMB < 1 {
		return fmt.Errorf("MAX_OUTPUT_SIZE_MB must be at least 1, got %d", c.Output.MaxOutputSizeMB)
	}
	if q := c.Processing.JPEGQuality; q < 1 || q > 100 {
		return fmt.Errorf("JPEG_QUALITY must be in 1..100, got %d", q)
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) GenerateCooldown() time.Duration {
	return time.Duration(c.Collector.GenerateCooldownMS) * time.Millisecond
}

func (c *Config) TriggerTimeout() time.Duration {
	return time.Duration(c.Collector.TriggerTimeoutMS) * time.Millisecond
}

func (c *Config) ReadyPollInterval() time.Duration {
	return time.Duration(c.Handshake.PollIntervalMS) * time.Millisecond
}

func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Handshake.TimeoutMS) * time.Millisecond
}

func (c *Config) SessionFlushDebounce() time.Duration {
	return time.Duration(c.Storage.SessionFlushDebounceMS) * time.Millisecond
}

func (c *Config) OutputRetention() time.Duration {
	return time.Duration(c.Cleanup.OutputRetentionMin) * time.Minute
}

func (c *Config) MaxOutputBytes() int64 {
	return int64(c.Output.MaxOutputSizeMB) * 1024 * 1024
}

func (c *Config) UploadPath() string {
	return expandHome(c.Storage.UploadDir)
}

func (c *Config) DataPath() string {
	return expandHome(c.Storage.DataDir)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
