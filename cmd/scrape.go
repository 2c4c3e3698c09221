package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newScrapeCmd creates the 'scrape' subcommand. It runs the registry scrape
// and prints the snapshot without touching the record store.
func newScrapeCmd() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrapes the registry and prints the results as JSON",
		Long: `Runs the configured search against the TTB COLA public registry, walks
every result page, and prints the scraped records as JSON. The record store
is not touched; use 'sync' to reconcile.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			src, err := appInstance.NewScraper()
			if err != nil {
				return fmt.Errorf("init scraper: %w", err)
			}

			items, err := src.Scrape(cmd.Context())
			if err != nil {
				return fmt.Errorf("scrape: %w", err)
			}
			appInstance.Logger().Info("scrape finished", zap.Int("items", len(items)))

			if arch := appInstance.Archiver(); arch != nil && len(items) > 0 {
				if uri, err := arch.SaveSnapshot(cmd.Context(), items); err != nil {
					appInstance.Logger().Warn("snapshot archive failed", zap.Error(err))
				} else {
					appInstance.Logger().Info("snapshot archived", zap.String("uri", uri))
				}
			}

			out, err := json.MarshalIndent(items, "", "  ")
			if err != nil {
				return fmt.Errorf("encode results: %w", err)
			}
			out = append(out, '\n')

			if outFile != "" {
				if err := os.WriteFile(outFile, out, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", outFile, err)
				}
				return nil
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&outFile, "output", "o", "", "write results to a file instead of stdout")
	return cmd
}
