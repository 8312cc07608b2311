package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <source-id>",
	Short: "Fetch, chunk and embed a registered source",
	Long: `Ingest a registered knowledge source. The document is fetched, split into
chunks and each chunk is embedded. Re-ingesting replaces the previous chunks
and bumps the source version.

Examples:
  groundwork ingest 01HZX3...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := getBackend(cmd.Context())
		if err != nil {
			return err
		}
		return ingestSource(cmd, b, args[0])
	},
}

func ingestSource(cmd *cobra.Command, b Backend, sourceID string) error {
	return RunWithProgress(cmd.Context(), cmd.OutOrStdout(), "ingest", "chunks",
		func(ctx context.Context, onProgress ProgressFunc) (string, error) {
			res, err := b.Ingest(ctx, sourceID, onProgress)
			if err != nil {
				return "", fmt.Errorf("ingest %s: %w", sourceID, err)
			}
			summary := fmt.Sprintf("  Chunks created:    %d\n", res.ChunksCreated)
			if res.ChunksUnembedded > 0 {
				summary += fmt.Sprintf("  Unembedded:        %d (run 'groundwork backfill')\n", res.ChunksUnembedded)
			}
			if res.ChunksFailed > 0 {
				summary += fmt.Sprintf("  Failed:            %d\n", res.ChunksFailed)
			}
			return summary, nil
		})
}
