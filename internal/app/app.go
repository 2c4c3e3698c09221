// Package app initializes and holds long-lived application services, acting
// as a dependency injection container. It is built once at startup and
// shared by the CLI commands and the HTTP server.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/archive"
	"github.com/labelwatch/cola-sync/internal/captcha"
	"github.com/labelwatch/cola-sync/internal/cola"
	"github.com/labelwatch/cola-sync/internal/config"
	"github.com/labelwatch/cola-sync/internal/docfetch"
	"github.com/labelwatch/cola-sync/internal/metrics"
	"github.com/labelwatch/cola-sync/internal/publisher"
	"github.com/labelwatch/cola-sync/internal/scraper"
	"github.com/labelwatch/cola-sync/internal/storage/airtable"
	"github.com/labelwatch/cola-sync/internal/storage/memory"
	"github.com/labelwatch/cola-sync/internal/storage/postgres"
	"github.com/labelwatch/cola-sync/internal/syncer"
)

// App holds the shared, long-lived services: the logger, the storage target,
// the optional document fetcher and its browser session, the archiver, and
// the event publisher. Scrapers and sync strategies are cheap and are built
// per run.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	target    cola.StorageTarget
	fetcher   cola.DocumentFetcher
	archiver  *archive.Archiver
	publisher publisher.Publisher

	session *docfetch.Session
	pg      *postgres.Store

	// newSource builds the data source for a run. Tests swap it out.
	newSource func() (cola.DataSource, error)
}

// New builds the service container from configuration. It fails fast: any
// provider that cannot be initialized aborts startup.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	a.newSource = func() (cola.DataSource, error) { return a.NewScraper() }

	arch, err := buildArchiver(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}
	a.archiver = arch

	if cfg.Sync.FetchDocuments {
		if err := a.initFetcher(ctx); err != nil {
			return nil, fmt.Errorf("init document fetcher: %w", err)
		}
	}

	if err := a.initStorage(ctx); err != nil {
		a.closePartial()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	pub, err := buildPublisher(ctx, cfg)
	if err != nil {
		a.closePartial()
		return nil, fmt.Errorf("init publisher: %w", err)
	}
	a.publisher = pub

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("publisher", cfg.Publisher.Provider),
		zap.Bool("fetch_documents", cfg.Sync.FetchDocuments))
	return a, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Storage returns the configured destination store.
func (a *App) Storage() cola.StorageTarget { return a.target }

// Fetcher returns the document fetcher, or nil when document fetching is
// disabled.
func (a *App) Fetcher() cola.DocumentFetcher { return a.fetcher }

// Archiver returns the snapshot and document archiver.
func (a *App) Archiver() *archive.Archiver { return a.archiver }

// Publisher returns the sync-event publisher.
func (a *App) Publisher() publisher.Publisher { return a.publisher }

// NewScraper builds a scraper from the loaded configuration.
func (a *App) NewScraper() (*scraper.Scraper, error) {
	return scraper.New(scraper.Config{
		ProductName:   a.cfg.Scraper.ProductName,
		VendorCode:    a.cfg.Scraper.VendorCode,
		SearchURL:     a.cfg.Scraper.SearchURL,
		PaginationURL: a.cfg.Scraper.PaginationURL,
		UserAgent:     a.cfg.Scraper.UserAgent,
		Delay:         a.cfg.ScrapeDelay(),
		DetailPages:   a.cfg.Scraper.DetailPages,
		LookbackYears: a.cfg.Scraper.LookbackYears,
	}, a.logger)
}

// Run executes one sync pass with the named strategy: scrape, reconcile
// against the storage target, archive the scraped snapshot, publish a
// completion event, and record metrics. The replace strategy is refused
// unless sync.confirm_replace is set; the strategies themselves never ask.
// The returned event is the one handed to the publisher.
func (a *App) Run(ctx context.Context, strategyName string) (publisher.Event, error) {
	if strategyName == "" {
		strategyName = a.cfg.Sync.Strategy
	}
	if strategyName == syncer.StrategyReplace && !a.cfg.Sync.ConfirmReplace {
		return publisher.Event{}, fmt.Errorf("replace strategy deletes every stored record; set sync.confirm_replace to proceed")
	}

	src, err := a.newSource()
	if err != nil {
		return publisher.Event{}, fmt.Errorf("init scraper: %w", err)
	}
	capture := &capturingSource{src: src}

	strategy, err := syncer.New(strategyName, capture, a.target, a.logger)
	if err != nil {
		return publisher.Event{}, err
	}

	metrics.SetSyncRunning(true)
	defer metrics.SetSyncRunning(false)

	runID := uuid.NewString()
	started := time.Now().UTC()
	a.logger.Info("sync run starting", zap.String("run_id", runID), zap.String("strategy", strategyName))

	stats, runErr := strategy.Sync(ctx)
	finished := time.Now().UTC()

	outcome := "success"
	if runErr != nil {
		outcome = "error"
	}
	metrics.ObserveSyncRun(strategyName, outcome, finished.Sub(started))
	metrics.ObserveSyncItems(stats.Created, stats.Updated, stats.Skipped, stats.Deprecated, stats.Deleted)

	if len(capture.items) > 0 {
		if uri, err := a.archiver.SaveSnapshot(ctx, capture.items); err != nil {
			a.logger.Warn("snapshot archive failed", zap.Error(err))
		} else {
			a.logger.Info("snapshot archived", zap.String("uri", uri))
		}
	}

	event := publisher.Event{
		RunID:      runID,
		Strategy:   strategyName,
		Stats:      stats,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}
	if _, err := a.publisher.Publish(ctx, event); err != nil {
		a.logger.Warn("publish sync event failed", zap.Error(err))
	}

	if runErr != nil {
		a.logger.Error("sync run failed", zap.String("run_id", runID), zap.Error(runErr))
		return event, runErr
	}
	a.logger.Info("sync run finished",
		zap.String("run_id", runID),
		zap.Int("total", stats.Total),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("deprecated", stats.Deprecated),
		zap.Int("deleted", stats.Deleted))
	return event, nil
}

// Close shuts the container down. It is safe to call after a partial
// initialization failure.
func (a *App) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("close publisher", zap.Error(err))
		}
	}
	a.closePartial()
	// Best-effort flush; stderr sync errors are expected on some platforms.
	_ = a.logger.Sync()
}

func (a *App) closePartial() {
	if a.pg != nil {
		a.pg.Close()
		a.pg = nil
	}
	if a.session != nil {
		a.session.Close()
		a.session = nil
	}
}

func (a *App) initFetcher(ctx context.Context) error {
	solver, err := captcha.NewTwoCaptcha(captcha.Config{
		APIKey:          a.cfg.Captcha.APIKey,
		BaseURL:         a.cfg.Captcha.BaseURL,
		PollInterval:    time.Duration(a.cfg.Captcha.PollSeconds) * time.Second,
		MaxPollAttempts: a.cfg.Captcha.MaxPollAttempts,
	}, a.logger)
	if err != nil {
		return err
	}

	session, err := docfetch.Connect(ctx, docfetch.SessionConfig{
		WSSEndpoint:        a.cfg.Browser.WSSEndpoint,
		MaxConnectAttempts: a.cfg.Browser.MaxConnectAttempts,
		InitialTimeout:     time.Duration(a.cfg.Browser.InitialTimeoutSec) * time.Second,
	}, a.logger)
	if err != nil {
		return err
	}
	a.session = session

	fetcher, err := docfetch.New(session, solver, docfetch.Config{
		CaptchaRetries: a.cfg.Browser.CaptchaRetries,
		SettleDelay:    time.Duration(a.cfg.Browser.SettleSeconds) * time.Second,
	}, a.logger)
	if err != nil {
		session.Close()
		a.session = nil
		return err
	}
	a.fetcher = &archivingFetcher{
		next:     fetcher,
		archiver: a.archiver,
		logger:   a.logger,
		delay:    a.cfg.FetchDelay(),
	}
	return nil
}

func (a *App) initStorage(ctx context.Context) error {
	switch a.cfg.Storage.Provider {
	case "airtable":
		opts := []airtable.Option{}
		if a.fetcher != nil {
			opts = append(opts, airtable.WithDocumentFetcher(a.fetcher))
		}
		target, err := airtable.New(airtable.Config{
			APIKey: a.cfg.Storage.Airtable.APIKey,
			BaseID: a.cfg.Storage.Airtable.BaseID,
			Table:  a.cfg.Storage.Airtable.Table,
		}, a.logger, opts...)
		if err != nil {
			return err
		}
		a.target = target
	case "postgres":
		opts := []postgres.Option{postgres.WithLogger(a.logger)}
		if a.fetcher != nil {
			opts = append(opts, postgres.WithDocumentFetcher(a.fetcher))
		}
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      a.cfg.Storage.Postgres.DSN,
			Table:    a.cfg.Storage.Postgres.Table,
			MaxConns: a.cfg.Storage.Postgres.MaxConns,
		}, opts...)
		if err != nil {
			return err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return err
		}
		a.pg = store
		a.target = store
	case "memory":
		a.target = memory.New()
	default:
		return fmt.Errorf("unknown storage provider: %s", a.cfg.Storage.Provider)
	}
	return nil
}

func buildArchiver(ctx context.Context, cfg config.Config, logger *zap.Logger) (*archive.Archiver, error) {
	var store archive.BlobStore
	switch cfg.Archive.Provider {
	case "local":
		local, err := archive.NewLocalStore(cfg.Archive.BaseDir)
		if err != nil {
			return nil, err
		}
		store = local
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		gcs, err := archive.NewGCSStore(client, cfg.Archive.GCSBucket, cfg.Archive.GCSPrefix)
		if err != nil {
			return nil, err
		}
		store = gcs
	case "noop":
		store = discardStore{}
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Archive.Provider)
	}
	return archive.New(store, logger)
}

func buildPublisher(ctx context.Context, cfg config.Config) (publisher.Publisher, error) {
	switch cfg.Publisher.Provider {
	case "pubsub":
		return publisher.NewPubSub(ctx, cfg.Publisher.ProjectID, cfg.Publisher.TopicID)
	case "memory":
		return publisher.NewMemory(), nil
	case "noop":
		return publisher.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown publisher provider: %s", cfg.Publisher.Provider)
	}
}

// capturingSource records the scraped snapshot so a run can archive it after
// the strategy consumes it.
type capturingSource struct {
	src   cola.DataSource
	items []cola.Item
}

func (c *capturingSource) Scrape(ctx context.Context) ([]cola.Item, error) {
	items, err := c.src.Scrape(ctx)
	c.items = items
	return items, err
}

// archivingFetcher paces document fetches and keeps a copy of every fetched
// document in the archive on its way to the storage target. Archive failures
// never fail the fetch.
type archivingFetcher struct {
	next     cola.DocumentFetcher
	archiver *archive.Archiver
	logger   *zap.Logger
	delay    time.Duration
}

func (f *archivingFetcher) FetchDocument(ctx context.Context, ttbID string) ([]byte, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	pdf, err := f.next.FetchDocument(ctx, ttbID)
	if err != nil {
		return nil, err
	}
	if uri, aerr := f.archiver.SaveDocument(ctx, ttbID, pdf); aerr != nil {
		f.logger.Warn("document archive failed", zap.String("ttb_id", ttbID), zap.Error(aerr))
	} else {
		f.logger.Debug("document archived", zap.String("ttb_id", ttbID), zap.String("uri", uri))
	}
	return pdf, nil
}

// discardStore backs the noop archive provider.
type discardStore struct{}

func (discardStore) PutObject(_ context.Context, path string, _ string, _ io.Reader) (string, error) {
	return "discard://" + path, nil
}
