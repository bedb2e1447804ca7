package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/timmy/pricebook/internal/app"
	"github.com/timmy/pricebook/internal/source/staging"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import catalog items from a staging manifest",
	Long:  "Reads <staging-dir>/<source>/manifest.jsonl and upserts its items and cost codes. Existing price overrides are left untouched.",
	RunE:  runImport,
}

var (
	importStagingDir string
	importSource     string
	importLimit      int
)

func init() {
	importCmd.Flags().StringVar(&importStagingDir, "staging-dir", "./data/staging", "Base directory of staged catalog exports")
	importCmd.Flags().StringVarP(&importSource, "source", "s", "", "Staged export to import (required)")
	importCmd.Flags().IntVar(&importLimit, "limit", 0, "Maximum number of items to import (0 = all)")

	if err := importCmd.MarkFlagRequired("source"); err != nil {
		panic(fmt.Sprintf("failed to mark source flag as required: %v", err))
	}

	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		src := staging.NewAdapter(importStagingDir, importSource)
		stats, err := a.Importer.Import(ctx, src, importLimit)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	})
}
