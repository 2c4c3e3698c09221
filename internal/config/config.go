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
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Captcha   CaptchaConfig   `mapstructure:"captcha"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
}

// ServerConfig controls the HTTP trigger surface and cron scheduling.
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	CronEnabled  bool   `mapstructure:"cron_enabled"`
	CronSchedule string `mapstructure:"cron_schedule"`
}

// LoggingConfig selects the log encoder and minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScraperConfig governs the source-site pagination loop.
type ScraperConfig struct {
	ProductName   string  `mapstructure:"product_name"`
	VendorCode    string  `mapstructure:"vendor_code"`
	DelaySeconds  float64 `mapstructure:"delay_seconds"`
	DetailPages   bool    `mapstructure:"detail_pages"`
	SearchURL     string  `mapstructure:"search_url"`
	PaginationURL string  `mapstructure:"pagination_url"`
	UserAgent     string  `mapstructure:"user_agent"`
	LookbackYears int     `mapstructure:"lookback_years"`
}

// SyncConfig selects the reconciliation policy and its side effects.
type SyncConfig struct {
	Strategy       string `mapstructure:"strategy"`
	ConfirmReplace bool   `mapstructure:"confirm_replace"`
	FetchDocuments bool   `mapstructure:"fetch_documents"`
}

// StorageConfig selects and configures the destination store.
type StorageConfig struct {
	Provider string         `mapstructure:"provider"`
	Airtable AirtableConfig `mapstructure:"airtable"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// AirtableConfig holds the spreadsheet backend credentials.
type AirtableConfig struct {
	APIKey string `mapstructure:"api_key"`
	BaseID string `mapstructure:"base_id"`
	Table  string `mapstructure:"table"`
}

// PostgresConfig controls access to the relational backend.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// CaptchaConfig holds the solving-service credentials and polling budget.
type CaptchaConfig struct {
	APIKey          string `mapstructure:"api_key"`
	BaseURL         string `mapstructure:"base_url"`
	PollSeconds     int    `mapstructure:"poll_seconds"`
	MaxPollAttempts int    `mapstructure:"max_poll_attempts"`
}

// BrowserConfig configures the remote browser session used for document fetches.
type BrowserConfig struct {
	WSSEndpoint        string  `mapstructure:"wss_endpoint"`
	MaxConnectAttempts int     `mapstructure:"max_connect_attempts"`
	InitialTimeoutSec  int     `mapstructure:"initial_timeout_seconds"`
	FetchDelaySeconds  float64 `mapstructure:"fetch_delay_seconds"`
	CaptchaRetries     int     `mapstructure:"captcha_retries"`
	SettleSeconds      int     `mapstructure:"settle_seconds"`
}

// ArchiveConfig sets where fetched PDFs and JSON dumps are written.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// PublisherConfig holds metadata for sync-completion notifications.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COLASYNC")
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
	v.SetDefault("server.cron_enabled", false)
	v.SetDefault("server.cron_schedule", "0 0 * * *")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("scraper.product_name", "Shottys")
	v.SetDefault("scraper.vendor_code", "23153")
	v.SetDefault("scraper.delay_seconds", 1.0)
	v.SetDefault("scraper.detail_pages", false)
	v.SetDefault("scraper.search_url", "https://ttbonline.gov/colasonline/publicSearchColasAdvancedProcess.do")
	v.SetDefault("scraper.pagination_url", "https://ttbonline.gov/colasonline/publicPageAdvancedCola.do")
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36")
	v.SetDefault("scraper.lookback_years", 15)
	v.SetDefault("sync.strategy", "incremental")
	v.SetDefault("sync.confirm_replace", false)
	v.SetDefault("sync.fetch_documents", false)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.airtable.table", "TTB COLAs")
	v.SetDefault("storage.postgres.table", "cola_items")
	v.SetDefault("storage.postgres.max_conns", 4)
	v.SetDefault("captcha.base_url", "http://2captcha.com")
	v.SetDefault("captcha.poll_seconds", 2)
	v.SetDefault("captcha.max_poll_attempts", 60)
	v.SetDefault("browser.max_connect_attempts", 5)
	v.SetDefault("browser.initial_timeout_seconds", 60)
	v.SetDefault("browser.fetch_delay_seconds", 1.0)
	v.SetDefault("browser.captcha_retries", 3)
	v.SetDefault("browser.settle_seconds", 2)
	v.SetDefault("archive.provider", "local")
	v.SetDefault("archive.base_dir", "./archive")
	v.SetDefault("publisher.provider", "noop")
}

// Validate enforces required values before any network activity happens.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.ProductName == "" {
		return fmt.Errorf("scraper.product_name is required")
	}
	if c.Scraper.DelaySeconds < 0 {
		return fmt.Errorf("scraper.delay_seconds must be >= 0")
	}
	switch c.Sync.Strategy {
	case "incremental", "full", "replace":
	default:
		return fmt.Errorf("sync.strategy must be incremental, full, or replace, got %q", c.Sync.Strategy)
	}
	switch c.Storage.Provider {
	case "airtable":
		if c.Storage.Airtable.APIKey == "" {
			return fmt.Errorf("storage.airtable.api_key is required when provider is airtable")
		}
		if c.Storage.Airtable.BaseID == "" {
			return fmt.Errorf("storage.airtable.base_id is required when provider is airtable")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required when provider is postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.Provider)
	}
	if c.Sync.FetchDocuments {
		if c.Captcha.APIKey == "" {
			return fmt.Errorf("captcha.api_key is required when sync.fetch_documents is enabled")
		}
		if c.Browser.WSSEndpoint == "" {
			return fmt.Errorf("browser.wss_endpoint is required when sync.fetch_documents is enabled")
		}
	}
	switch c.Archive.Provider {
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required when provider is local")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required when provider is gcs")
		}
	case "noop":
	default:
		return fmt.Errorf("unknown archive provider: %s", c.Archive.Provider)
	}
	switch c.Publisher.Provider {
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.TopicID == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic_id are required when provider is pubsub")
		}
	case "noop", "memory":
	default:
		return fmt.Errorf("unknown publisher provider: %s", c.Publisher.Provider)
	}
	return nil
}

// ScrapeDelay converts the configured per-request delay into a duration.
func (c Config) ScrapeDelay() time.Duration {
	return time.Duration(c.Scraper.DelaySeconds * float64(time.Second))
}

// FetchDelay converts the configured per-fetch delay into a duration.
func (c Config) FetchDelay() time.Duration {
	return time.Duration(c.Browser.FetchDelaySeconds * float64(time.Second))
}
