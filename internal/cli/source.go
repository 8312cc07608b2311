package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/spf13/cobra"
)

var (
	sourceType   string
	sourceName   string
	sourceIngest bool
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Register and inspect knowledge sources",
}

var sourceAddCmd = &cobra.Command{
	Use:   "add <locator>",
	Short: "Register a knowledge source",
	Long: `Register a document as a knowledge source. Supported types are pdf,
doc-export, wiki-page and cloud-file.

Examples:
  groundwork source add ./handbook.pdf --type pdf --name Handbook
  groundwork source add https://wiki.example.com/runbook --type wiki-page --ingest`,
	Args: cobra.ExactArgs(1),
	RunE: runSourceAdd,
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge sources",
	Args:  cobra.NoArgs,
	RunE:  runSourceList,
}

var sourceShowCmd = &cobra.Command{
	Use:   "show <source-id>",
	Short: "Show a knowledge source and its sync state",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceShow,
}

func init() {
	sourceAddCmd.Flags().StringVarP(&sourceType, "type", "t", "", "source type (required)")
	sourceAddCmd.Flags().StringVar(&sourceName, "name", "", "display name (default: the locator)")
	sourceAddCmd.Flags().BoolVar(&sourceIngest, "ingest", false, "ingest right after registering")
	_ = sourceAddCmd.MarkFlagRequired("type")

	sourceCmd.AddCommand(sourceAddCmd)
	sourceCmd.AddCommand(sourceListCmd)
	sourceCmd.AddCommand(sourceShowCmd)
}

func runSourceAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := getBackend(ctx)
	if err != nil {
		return err
	}

	st, err := models.ParseSourceType(sourceType)
	if err != nil {
		return err
	}
	name := sourceName
	if name == "" {
		name = args[0]
	}

	src, err := b.RegisterSource(ctx, models.SourceInput{Type: st, Name: name, Locator: sourceLocator(st, args[0])})
	if err != nil {
		return fmt.Errorf("register source: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s [%s] %s\n", src.ID, src.Type, src.Name)

	if !sourceIngest {
		return nil
	}
	return ingestSource(cmd, b, src.ID)
}

// sourceLocator makes local PDF paths absolute so they resolve outside the working directory.
func sourceLocator(st models.SourceType, locator string) string {
	if st != models.SourceTypePDF || strings.Contains(locator, "://") {
		return locator
	}
	if abs, err := filepath.Abs(locator); err == nil {
		return abs
	}
	return locator
}

func runSourceList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := getBackend(ctx)
	if err != nil {
		return err
	}

	srcs, err := b.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(srcs) == 0 {
		fmt.Fprintln(out, "No sources found.")
		return nil
	}

	fmt.Fprintf(out, "%-26s %-11s %-8s %-4s %s\n", "ID", "TYPE", "STATUS", "VER", "NAME")
	for _, s := range srcs {
		fmt.Fprintf(out, "%-26s %-11s %-8s %-4d %s\n", s.ID, s.Type, s.Status, s.Version, s.Name)
	}
	return nil
}

func runSourceShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := getBackend(ctx)
	if err != nil {
		return err
	}

	src, err := b.GetSource(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get source: %w", err)
	}
	printSource(cmd.OutOrStdout(), src)
	return nil
}

func printSource(out io.Writer, src *models.KnowledgeSource) {
	fmt.Fprintf(out, "Source: %s\n", src.ID)
	fmt.Fprintf(out, "  Name: %s\n", src.Name)
	fmt.Fprintf(out, "  Type: %s\n", src.Type)
	fmt.Fprintf(out, "  Locator: %s\n", src.Locator)
	fmt.Fprintf(out, "  Status: %s (version %d)\n", src.Status, src.Version)
	if src.LastSyncedAt != nil {
		fmt.Fprintf(out, "  Last synced: %s\n", src.LastSyncedAt.Format(time.RFC3339))
	}
	if lastErr, ok := src.Metadata[models.MetaLastError]; ok && lastErr != "" {
		fmt.Fprintf(out, "  Last error: %v\n", lastErr)
	}
}
