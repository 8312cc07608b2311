package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show operation statistics",
	Long: `Show timing and token statistics for embeddings, generation, searches and
turns, plus how often each retrieval tier served each store.

Statistics are in-memory: against a server they cover the time since it
started, in process they cover only this command.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := getBackend(ctx)
	if err != nil {
		return err
	}

	snap, err := b.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	printStats(cmd.OutOrStdout(), snap)
	return nil
}

// printStats displays runtime statistics.
func printStats(out io.Writer, snap *metrics.Snapshot) {
	fmt.Fprintf(out, "Statistics (in-memory, since start)\n")
	fmt.Fprintf(out, "═══════════════════════════════════════\n")
	fmt.Fprintf(out, "Uptime: %.1f seconds\n", snap.UptimeSeconds)

	ops := []struct {
		name string
		op   *metrics.OperationSnapshot
	}{
		{"Embeddings", snap.Embedding},
		{"LLM Generate", snap.LLMGenerate},
		{"LLM Stream", snap.LLMStream},
		{"Vector Search", snap.VectorSearch},
		{"Keyword Search", snap.KeywordSearch},
		{"Turns", snap.Turn},
	}
	for _, o := range ops {
		if o.op == nil {
			continue
		}
		fmt.Fprintf(out, "\n%s:\n", o.name)
		printOpStats(out, o.op)
		printTokenStats(out, o.op)
	}

	if len(snap.Tiers) > 0 {
		fmt.Fprintf(out, "\nRetrieval tiers:\n")
		keys := make([]string, 0, len(snap.Tiers))
		for k := range snap.Tiers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %-20s %d\n", k, snap.Tiers[k])
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(out io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(out, "  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Fprintf(out, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(out io.Writer, op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(out, "  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(out, ", avg %.0f", *op.AvgInputTokens)
	}
	if op.MinInputTokens != nil && op.MaxInputTokens != nil {
		fmt.Fprintf(out, ", min %d, max %d", *op.MinInputTokens, *op.MaxInputTokens)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(out, ", avg %.0f", *op.AvgOutputTokens)
	}
	if op.MinOutputTokens != nil && op.MaxOutputTokens != nil {
		fmt.Fprintf(out, ", min %d, max %d", *op.MinOutputTokens, *op.MaxOutputTokens)
	}
	fmt.Fprintln(out)
}
