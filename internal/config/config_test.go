package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "incremental", cfg.Sync.Strategy)
	require.Equal(t, "memory", cfg.Storage.Provider)
	require.Equal(t, "Shottys", cfg.Scraper.ProductName)
	require.Equal(t, 60, cfg.Captcha.MaxPollAttempts)
	require.Equal(t, "info", cfg.Logging.Level)
	require.InDelta(t, 1.0, cfg.Scraper.DelaySeconds, 0.001)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{
			name:   "unknown strategy",
			mutate: func(c *Config) { c.Sync.Strategy = "partial" },
			errSub: "sync.strategy",
		},
		{
			name:   "airtable without key",
			mutate: func(c *Config) { c.Storage.Provider = "airtable" },
			errSub: "storage.airtable.api_key",
		},
		{
			name:   "postgres without dsn",
			mutate: func(c *Config) { c.Storage.Provider = "postgres" },
			errSub: "storage.postgres.dsn",
		},
		{
			name:   "fetch documents without captcha key",
			mutate: func(c *Config) { c.Sync.FetchDocuments = true },
			errSub: "captcha.api_key",
		},
		{
			name: "fetch documents without browser endpoint",
			mutate: func(c *Config) {
				c.Sync.FetchDocuments = true
				c.Captcha.APIKey = "key"
			},
			errSub: "browser.wss_endpoint",
		},
		{
			name:   "unknown storage provider",
			mutate: func(c *Config) { c.Storage.Provider = "dynamo" },
			errSub: "unknown storage provider",
		},
		{
			name:   "negative delay",
			mutate: func(c *Config) { c.Scraper.DelaySeconds = -1 },
			errSub: "delay_seconds",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errSub)
		})
	}
}

func TestDelayHelpers(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Scraper.DelaySeconds = 1.5
	cfg.Browser.FetchDelaySeconds = 0.5
	require.Equal(t, int64(1500), cfg.ScrapeDelay().Milliseconds())
	require.Equal(t, int64(500), cfg.FetchDelay().Milliseconds())
}
