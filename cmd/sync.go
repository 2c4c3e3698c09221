package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// newSyncCmd creates the 'sync' subcommand: one full scrape-and-reconcile
// pass against the configured record store.
func newSyncCmd() *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Scrapes the registry and reconciles the record store",
		Long: `Runs one sync pass: scrape the registry, then reconcile the results into
the configured record store with the selected strategy.

  incremental  create new records, deprecate vanished ones (default)
  full         also rewrite records whose fields changed
  replace      delete everything and rebuild; requires sync.confirm_replace`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			event, err := appInstance.Run(cmd.Context(), strategy)
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}

			out, err := json.MarshalIndent(event, "", "  ")
			if err != nil {
				return fmt.Errorf("encode run report: %w", err)
			}
			out = append(out, '\n')
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "sync strategy: incremental, full, or replace (default from config)")
	return cmd
}
