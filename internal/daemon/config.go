// Package daemon manages the Vibe engine lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/vibe-dev/academy/internal/app/engagement"
)

// Config holds all daemon configuration.
type Config struct {
	API           APIConfig       `toml:"api"`
	Store         StoreConfig     `toml:"store"`
	Local         LocalConfig     `toml:"local"`
	Ledger        LedgerConfig    `toml:"ledger"`
	Batch         BatchConfig     `toml:"batch"`
	Reconcile     ReconcileConfig `toml:"reconcile"`
	Notifications NotifyConfig    `toml:"notifications"`
	Streak        StreakConfig    `toml:"streak"`
	Catalog       CatalogConfig   `toml:"catalog"`
	Logging       LoggingConfig   `toml:"logging"`
	Telemetry     TelemetryConfig `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// StoreConfig locates the remote profile store.
type StoreConfig struct {
	Dir string `toml:"dir"`
}

// LocalConfig locates the device-local mirror.
type LocalConfig struct {
	Dir string `toml:"dir"`
}

// LedgerConfig controls XP grant retries and limits.
type LedgerConfig struct {
	MaxRetries   int    `toml:"max_retries"`
	BaseDelay    string `toml:"base_delay"`
	OpTimeout    string `toml:"op_timeout"`
	MaxGrant     int64  `toml:"max_grant"`
	ReasonMaxLen int    `toml:"reason_max_len"`
}

// BatchConfig controls XP debounce batching.
type BatchConfig struct {
	Debounce   string `toml:"debounce"`
	MaxPending int    `toml:"max_pending"`
}

// ReconcileConfig controls the offline sync job.
type ReconcileConfig struct {
	Interval string `toml:"interval"`
	Timeout  string `toml:"timeout"`
}

// NotifyConfig controls notification pacing.
type NotifyConfig struct {
	MinSpacing string `toml:"min_spacing"`
	QueueSize  int    `toml:"queue_size"`
}

// StreakConfig controls the login streak bonus.
type StreakConfig struct {
	PerDayBonus int64 `toml:"per_day_bonus"`
	BonusCap    int64 `toml:"bonus_cap"`
}

// CatalogConfig points at an optional YAML catalog override.
type CatalogConfig struct {
	File string `toml:"file"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// TelemetryConfig controls metrics export.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := vibeHome()
	return Config{
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        8787,
			CORSOrigins: []string{"*"},
		},
		Store: StoreConfig{Dir: homeDir},
		Local: LocalConfig{Dir: filepath.Join(homeDir, "local")},
		Ledger: LedgerConfig{
			MaxRetries:   3,
			BaseDelay:    "500ms",
			OpTimeout:    "5s",
			MaxGrant:     10000,
			ReasonMaxLen: 200,
		},
		Batch: BatchConfig{
			Debounce:   "1s",
			MaxPending: 25,
		},
		Reconcile: ReconcileConfig{
			Interval: "30s",
			Timeout:  "10s",
		},
		Notifications: NotifyConfig{
			MinSpacing: "1500ms",
			QueueSize:  64,
		},
		Streak: StreakConfig{
			PerDayBonus: 5,
			BonusCap:    50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{Prometheus: true},
	}
}

// LoadConfig reads .env, then ~/.vibe/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	path := filepath.Join(vibeHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.vibe/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(vibeHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// EngineConfig converts the file settings into engine tunables. Unparseable
// or non-positive values keep the engine defaults.
func (c Config) EngineConfig() engagement.Config {
	ec := engagement.DefaultConfig()

	if c.Ledger.MaxRetries > 0 {
		ec.Ledger.MaxRetries = c.Ledger.MaxRetries
	}
	ec.Ledger.BaseDelay = parseDuration(c.Ledger.BaseDelay, ec.Ledger.BaseDelay)
	ec.Ledger.OpTimeout = parseDuration(c.Ledger.OpTimeout, ec.Ledger.OpTimeout)
	if c.Ledger.MaxGrant > 0 {
		ec.Ledger.Limits.MaxGrant = c.Ledger.MaxGrant
	}
	if c.Ledger.ReasonMaxLen > 0 {
		ec.Ledger.Limits.ReasonMaxLen = c.Ledger.ReasonMaxLen
	}

	ec.Batch.Debounce = parseDuration(c.Batch.Debounce, ec.Batch.Debounce)
	if c.Batch.MaxPending >= 0 {
		ec.Batch.MaxPending = c.Batch.MaxPending
	}

	ec.Reconcile.Interval = parseDuration(c.Reconcile.Interval, ec.Reconcile.Interval)
	ec.Reconcile.Timeout = parseDuration(c.Reconcile.Timeout, ec.Reconcile.Timeout)

	ec.Notify.MinSpacing = parseDuration(c.Notifications.MinSpacing, ec.Notify.MinSpacing)
	if c.Notifications.QueueSize > 0 {
		ec.Notify.QueueSize = c.Notifications.QueueSize
	}

	if c.Streak.PerDayBonus > 0 {
		ec.Streak.PerDayBonus = c.Streak.PerDayBonus
	}
	if c.Streak.BonusCap > 0 {
		ec.Streak.BonusCap = c.Streak.BonusCap
	}
	return ec
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// vibeHome returns the Vibe data directory.
func vibeHome() string {
	if env := os.Getenv("VIBE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vibe")
}

// VibeHome is exported for use by other packages.
func VibeHome() string {
	return vibeHome()
}
