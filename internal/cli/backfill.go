package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var backfillLimit int

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed memories and chunks that have no embedding yet",
	Long: `Embed stored memories and chunks that were saved while the embedding
provider was unavailable, oldest first.

Examples:
  groundwork backfill
  groundwork backfill --limit 500`,
	Args: cobra.NoArgs,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().IntVarP(&backfillLimit, "limit", "n", 0, "max items (default from BACKFILL_LIMIT)")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	if backfillLimit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	b, err := getBackend(cmd.Context())
	if err != nil {
		return err
	}

	return RunWithProgress(cmd.Context(), cmd.OutOrStdout(), "backfill", "items",
		func(ctx context.Context, onProgress ProgressFunc) (string, error) {
			res, err := b.Backfill(ctx, backfillLimit, onProgress)
			if err != nil {
				return "", fmt.Errorf("backfill: %w", err)
			}
			return fmt.Sprintf("  Embedded: %d\n  Failed:   %d\n", res.Succeeded, res.Failed), nil
		})
}
