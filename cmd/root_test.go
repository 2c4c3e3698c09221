package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/archive"
	"github.com/labelwatch/cola-sync/internal/cola"
	"github.com/labelwatch/cola-sync/internal/config"
	"github.com/labelwatch/cola-sync/internal/publisher"
	"github.com/labelwatch/cola-sync/internal/scraper"
)

// fakeApp satisfies the App interface without any real services.
type fakeApp struct {
	closed      bool
	runStrategy string
	runEvent    publisher.Event
	runErr      error
	fetcher     cola.DocumentFetcher
	scrapeErr   error
}

func (f *fakeApp) Close()                         { f.closed = true }
func (f *fakeApp) Config() config.Config          { return config.Config{} }
func (f *fakeApp) Logger() *zap.Logger            { return zap.NewNop() }
func (f *fakeApp) Storage() cola.StorageTarget    { return nil }
func (f *fakeApp) Fetcher() cola.DocumentFetcher  { return f.fetcher }
func (f *fakeApp) Archiver() *archive.Archiver    { return nil }
func (f *fakeApp) Publisher() publisher.Publisher { return publisher.Noop{} }
func (f *fakeApp) NewScraper() (*scraper.Scraper, error) {
	return nil, f.scrapeErr
}

func (f *fakeApp) Run(_ context.Context, strategy string) (publisher.Event, error) {
	f.runStrategy = strategy
	return f.runEvent, f.runErr
}

// withFakeApp swaps the application factory for the duration of one test.
func withFakeApp(t *testing.T, fake *fakeApp) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		return fake, nil
	}
	t.Cleanup(func() { newApp = orig })
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSyncCommand_PassesStrategy(t *testing.T) {
	fake := &fakeApp{runEvent: publisher.Event{
		RunID:    "run-42",
		Strategy: "full",
		Stats:    cola.SyncStats{Total: 5, Created: 2, Updated: 1, Skipped: 2},
	}}
	withFakeApp(t, fake)

	out, err := executeCommand(t, "sync", "--strategy", "full")
	require.NoError(t, err)

	assert.Equal(t, "full", fake.runStrategy)
	assert.Contains(t, out, "run-42")
	assert.Contains(t, out, `"created": 2`)
	assert.True(t, fake.closed, "container must be closed after the command")
}

func TestSyncCommand_DefaultStrategyIsEmpty(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	_, err := executeCommand(t, "sync")
	require.NoError(t, err)

	// An empty strategy defers to the configured default inside Run.
	assert.Equal(t, "", fake.runStrategy)
}

func TestFetchCommand_RequiresFetcher(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	_, err := executeCommand(t, "fetch", "23001001000001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document fetching is disabled")
}

func TestFetchCommand_RequiresTTBID(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	_, err := executeCommand(t, "fetch")
	require.Error(t, err)
}
