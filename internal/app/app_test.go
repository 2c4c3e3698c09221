package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/cola"
	"github.com/labelwatch/cola-sync/internal/config"
	"github.com/labelwatch/cola-sync/internal/publisher"
	"github.com/labelwatch/cola-sync/internal/storage/memory"
)

// stubSource feeds a fixed snapshot to a run.
type stubSource struct {
	items []cola.Item
	err   error
}

func (s *stubSource) Scrape(context.Context) ([]cola.Item, error) {
	return s.items, s.err
}

func testConfig() config.Config {
	cfg := config.Config{}
	cfg.Storage.Provider = "memory"
	cfg.Archive.Provider = "noop"
	cfg.Publisher.Provider = "memory"
	cfg.Sync.Strategy = "incremental"
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, src cola.DataSource) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	if src != nil {
		a.newSource = func() (cola.DataSource, error) { return src, nil }
	}
	return a
}

func TestNewWithMemoryProviders(t *testing.T) {
	a := newTestApp(t, testConfig(), nil)

	assert.IsType(t, &memory.Store{}, a.Storage())
	assert.IsType(t, &publisher.Memory{}, a.Publisher())
	assert.Nil(t, a.Fetcher())
	assert.NotNil(t, a.Archiver())
}

func TestNewProviderErrors(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "unknown storage provider",
			mutate:  func(c *config.Config) { c.Storage.Provider = "dynamo" },
			wantErr: "unknown storage provider",
		},
		{
			name:    "unknown archive provider",
			mutate:  func(c *config.Config) { c.Archive.Provider = "s3" },
			wantErr: "unknown archive provider",
		},
		{
			name:    "unknown publisher provider",
			mutate:  func(c *config.Config) { c.Publisher.Provider = "kafka" },
			wantErr: "unknown publisher provider",
		},
		{
			name:    "airtable without credentials",
			mutate:  func(c *config.Config) { c.Storage.Provider = "airtable" },
			wantErr: "airtable api key and base id are required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)

			_, err := New(context.Background(), cfg, zap.NewNop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRunIncremental(t *testing.T) {
	src := &stubSource{items: []cola.Item{
		{TTBID: "23001001000001", BrandName: "SHOTTYS", URL: "https://example.gov/a"},
		{TTBID: "23001001000002", BrandName: "SHOTTYS PARTY PACK", URL: "https://example.gov/b"},
	}}
	a := newTestApp(t, testConfig(), src)

	event, err := a.Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 2, event.Stats.Total)
	assert.Equal(t, 2, event.Stats.Created)

	store, ok := a.Storage().(*memory.Store)
	require.True(t, ok)
	assert.Equal(t, 2, store.Len())

	mem, ok := a.Publisher().(*publisher.Memory)
	require.True(t, ok)
	events := mem.Events()
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].RunID)
	assert.Equal(t, "incremental", events[0].Strategy)
	assert.Equal(t, 2, events[0].Stats.Created)
	assert.Empty(t, events[0].Error)
}

func TestRunReplaceRequiresConfirmation(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.Strategy = "replace"
	a := newTestApp(t, cfg, &stubSource{})

	_, err := a.Run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync.confirm_replace")

	store, ok := a.Storage().(*memory.Store)
	require.True(t, ok)
	assert.Empty(t, store.Operations(), "a refused run must not touch storage")
}

func TestRunReplaceConfirmed(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.Strategy = "replace"
	cfg.Sync.ConfirmReplace = true
	src := &stubSource{items: []cola.Item{{TTBID: "23001001000001", URL: "https://example.gov/a"}}}
	a := newTestApp(t, cfg, src)

	event, err := a.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, event.Stats.Created)
}

func TestRunPublishesFailure(t *testing.T) {
	src := &stubSource{err: errors.New("search endpoint returned 503")}
	a := newTestApp(t, testConfig(), src)

	_, err := a.Run(context.Background(), "incremental")
	require.Error(t, err)

	mem, ok := a.Publisher().(*publisher.Memory)
	require.True(t, ok)
	events := mem.Events()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Error, "503")
}
