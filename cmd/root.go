// Package cmd defines and implements the CLI commands for the cola-sync
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/app"
	"github.com/labelwatch/cola-sync/internal/archive"
	"github.com/labelwatch/cola-sync/internal/cola"
	"github.com/labelwatch/cola-sync/internal/config"
	"github.com/labelwatch/cola-sync/internal/logging"
	"github.com/labelwatch/cola-sync/internal/publisher"
	"github.com/labelwatch/cola-sync/internal/scraper"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is the slice of the service container the commands use. It is an
// interface so tests can inject a mock container.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Storage() cola.StorageTarget
	Fetcher() cola.DocumentFetcher
	Archiver() *archive.Archiver
	Publisher() publisher.Publisher
	NewScraper() (*scraper.Scraper, error)
	Run(ctx context.Context, strategy string) (publisher.Event, error)
}

// newApp is the application factory. It is a variable so tests can replace
// it with a mock factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cola-sync",
		Short: "Syncs TTB COLA label approvals into a record store.",
		Long: `cola-sync scrapes the TTB COLA public registry for a product's label
approvals and reconciles them into the configured record store. It can also
pull each approval's printable application form as a PDF, working through the
registry's captcha gate with a remote browser.`,

		SilenceUsage: true,

		// Runs after flag parsing and before the subcommand's RunE: load
		// config, build the logger, then build and inject the container.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is not an error; config can come from the
			// environment or the config file.
			_ = godotenv.Load()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		// Ensures services shut down gracefully after the subcommand runs.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is environment only)")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
