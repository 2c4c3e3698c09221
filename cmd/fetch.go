package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newFetchCmd creates the 'fetch' subcommand: pull one approval's printable
// application form as a PDF.
func newFetchCmd() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "fetch TTB_ID",
		Short: "Fetches one approval's application form as a PDF",
		Long: `Navigates to the printable application form for the given TTB ID, works
through the registry's captcha gate, and writes the rendered PDF to disk.
Requires sync.fetch_documents plus the browser and captcha credentials.`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			fetcher := appInstance.Fetcher()
			if fetcher == nil {
				return fmt.Errorf("document fetching is disabled; set sync.fetch_documents and the browser and captcha credentials")
			}

			ttbID := args[0]
			pdf, err := fetcher.FetchDocument(cmd.Context(), ttbID)
			if err != nil {
				return fmt.Errorf("fetch document %s: %w", ttbID, err)
			}

			if outFile == "" {
				outFile = ttbID + ".pdf"
			}
			if err := os.WriteFile(outFile, pdf, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outFile, err)
			}
			appInstance.Logger().Info("document written",
				zap.String("ttb_id", ttbID),
				zap.String("file", outFile),
				zap.Int("bytes", len(pdf)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default <TTB_ID>.pdf)")
	return cmd
}
