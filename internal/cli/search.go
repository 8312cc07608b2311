package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the grounding context for a query without asking the model",
	Long: `Retrieve memories and document chunks for a query and print the context
an answer would be grounded in, with the retrieval tier each store used.

Examples:
  groundwork search "deploy window"
  groundwork search "rollback procedure" --project apollo`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := getBackend(ctx)
	if err != nil {
		return err
	}

	res, err := b.Search(ctx, args[0])
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(res.Memories) == 0 && len(res.Chunks) == 0 {
		fmt.Fprintln(out, "No relevant context found.")
	} else {
		fmt.Fprintln(out, res.Context)
	}
	if verbose {
		for _, m := range res.Memories {
			fmt.Fprintf(out, "- memory %s [%s] %s\n", m.Memory.ID, m.Memory.Type, formatScore(m.Score))
		}
		for _, c := range res.Chunks {
			fmt.Fprintf(out, "- chunk %s (%s) %s\n", c.Chunk.ID, c.SourceName, formatScore(c.Score))
		}
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "tiers: memory=%s knowledge=%s\n", res.Tiers["memory"], res.Tiers["knowledge"])
	return nil
}

// formatScore renders a similarity score; keyword hits have none.
func formatScore(score *float64) string {
	if score == nil {
		return "keyword"
	}
	return fmt.Sprintf("%.3f", *score)
}
