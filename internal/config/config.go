// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Progress ProgressConfig `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ScraperConfig governs the task runner and page pipeline.
type ScraperConfig struct {
	BaseURL         string      `mapstructure:"base_url"`
	UserAgent       string      `mapstructure:"user_agent"`
	MaxPagesDefault int         `mapstructure:"max_pages_default"`
	Delays          DelayConfig `mapstructure:"delays"`
}

// DelayConfig holds the randomized wait windows, in seconds. FirstLoad and
// PageLoad cover the anti-bot settle waits after navigation; PageGap and
// ListingGap are the jitter delays between pages and listing types.
type DelayConfig struct {
	FirstLoadMinSec  int `mapstructure:"first_load_min_seconds"`
	FirstLoadMaxSec  int `mapstructure:"first_load_max_seconds"`
	PageLoadMinSec   int `mapstructure:"page_load_min_seconds"`
	PageLoadMaxSec   int `mapstructure:"page_load_max_seconds"`
	PageGapMinSec    int `mapstructure:"page_gap_min_seconds"`
	PageGapMaxSec    int `mapstructure:"page_gap_max_seconds"`
	ListingGapMinSec int `mapstructure:"listing_gap_min_seconds"`
	ListingGapMaxSec int `mapstructure:"listing_gap_max_seconds"`
}

// HeadlessConfig configures the browsing session subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	Screenshots   bool `mapstructure:"screenshots"`
}

// StorageConfig selects the artifact blob store backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	BaseDir string `mapstructure:"base_dir"`
}

// DatabaseConfig controls the Postgres archive of completed tasks.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	ArchiveTable    string        `mapstructure:"archive_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for completion-event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig controls the progress hub and its sinks.
type ProgressConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	LogEnabled bool `mapstructure:"log_enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TGPARSER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("scraper.base_url", "https://tgstat.ru")
	v.SetDefault("scraper.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("scraper.max_pages_default", 3)
	v.SetDefault("scraper.delays.first_load_min_seconds", 8)
	v.SetDefault("scraper.delays.first_load_max_seconds", 15)
	v.SetDefault("scraper.delays.page_load_min_seconds", 5)
	v.SetDefault("scraper.delays.page_load_max_seconds", 10)
	v.SetDefault("scraper.delays.page_gap_min_seconds", 3)
	v.SetDefault("scraper.delays.page_gap_max_seconds", 8)
	v.SetDefault("scraper.delays.listing_gap_min_seconds", 5)
	v.SetDefault("scraper.delays.listing_gap_max_seconds", 10)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.nav_timeout_seconds", 60)
	v.SetDefault("headless.screenshots", true)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("database.archive_table", "parsing_results")
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("scraper.base_url must be set")
	}
	if c.Scraper.MaxPagesDefault < 1 {
		return fmt.Errorf("scraper.max_pages_default must be >= 1")
	}
	if c.Headless.Enabled && c.Headless.NavTimeoutSec <= 0 {
		return fmt.Errorf("headless.nav_timeout_seconds must be > 0 when headless is enabled")
	}
	d := c.Scraper.Delays
	for _, pair := range [][2]int{
		{d.FirstLoadMinSec, d.FirstLoadMaxSec},
		{d.PageLoadMinSec, d.PageLoadMaxSec},
		{d.PageGapMinSec, d.PageGapMaxSec},
		{d.ListingGapMinSec, d.ListingGapMaxSec},
	} {
		if pair[0] < 0 || pair[1] < pair[0] {
			return fmt.Errorf("scraper.delays ranges must satisfy 0 <= min <= max")
		}
	}
	switch c.Storage.Backend {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "gcs" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket must be set for the gcs backend")
	}
	if c.Storage.Backend == "local" && c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir must be set for the local backend")
	}
	return nil
}

// NavTimeout converts the headless timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
