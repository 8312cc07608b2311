package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/spf13/cobra"
)

var (
	memoryType       string
	memoryTitle      string
	memoryConfidence float64
	memoryPinned     bool
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Add and review memories",
}

var memoryAddCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Store a memory",
	Long: `Store a memory as a review candidate. It is embedded in the background and
retrievable until it is rejected or deactivated.

Types: fact, preference, procedure, goal, context.

Examples:
  groundwork memory add "Production deploys run on Tuesdays" --title "Deploy window"
  groundwork memory add "Prefers vim" --type preference --pinned`,
	Args: cobra.ExactArgs(1),
	RunE: runMemoryAdd,
}

var memoryShowCmd = &cobra.Command{
	Use:   "show <memory-id>",
	Short: "Show a memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryShow,
}

var memoryApproveCmd = &cobra.Command{
	Use:   "approve <memory-id>",
	Short: "Approve a candidate memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewMemory(cmd, args[0], true)
	},
}

var memoryRejectCmd = &cobra.Command{
	Use:   "reject <memory-id>",
	Short: "Reject a memory so it is never retrieved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewMemory(cmd, args[0], false)
	},
}

var memoryActivateCmd = &cobra.Command{
	Use:   "activate <memory-id>",
	Short: "Make a memory retrievable again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setMemoryActive(cmd, args[0], true)
	},
}

var memoryDeactivateCmd = &cobra.Command{
	Use:   "deactivate <memory-id>",
	Short: "Hide a memory from retrieval without rejecting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setMemoryActive(cmd, args[0], false)
	},
}

func init() {
	memoryAddCmd.Flags().StringVarP(&memoryType, "type", "t", "fact", "memory type")
	memoryAddCmd.Flags().StringVar(&memoryTitle, "title", "", "short title")
	memoryAddCmd.Flags().Float64Var(&memoryConfidence, "confidence", 0.8, "confidence between 0 and 1")
	memoryAddCmd.Flags().BoolVar(&memoryPinned, "pinned", false, "always prefer this memory")

	memoryCmd.AddCommand(memoryAddCmd)
	memoryCmd.AddCommand(memoryShowCmd)
	memoryCmd.AddCommand(memoryApproveCmd)
	memoryCmd.AddCommand(memoryRejectCmd)
	memoryCmd.AddCommand(memoryActivateCmd)
	memoryCmd.AddCommand(memoryDeactivateCmd)
}

func runMemoryAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := getBackend(ctx)
	if err != nil {
		return err
	}

	mt, err := models.ParseMemoryType(memoryType)
	if err != nil {
		return err
	}

	mem, err := b.CreateMemory(ctx, models.MemoryInput{
		Type:       mt,
		Title:      memoryTitle,
		Content:    args[0],
		Confidence: models.ClampConfidence(memoryConfidence),
		Pinned:     memoryPinned,
	})
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %s [%s] as %s\n", mem.ID, mem.Type, mem.Status)
	return nil
}

func runMemoryShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := getBackend(ctx)
	if err != nil {
		return err
	}

	mem, err := b.GetMemory(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get memory: %w", err)
	}

	out := cmd.OutOrStdout()
	flags := []string{string(mem.Status)}
	if mem.Pinned {
		flags = append(flags, "pinned")
	}
	if !mem.Active {
		flags = append(flags, "inactive")
	}
	if len(mem.Embedding) == 0 {
		flags = append(flags, "unembedded")
	}

	fmt.Fprintf(out, "Memory: %s [%s] (%s)\n", mem.ID, mem.Type, strings.Join(flags, ", "))
	if mem.Title != "" {
		fmt.Fprintf(out, "  Title: %s\n", mem.Title)
	}
	fmt.Fprintf(out, "  Confidence: %.2f\n", mem.Confidence)
	fmt.Fprintf(out, "  Updated: %s\n", mem.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "\n%s\n", mem.Content)
	return nil
}

func reviewMemory(cmd *cobra.Command, id string, approve bool) error {
	ctx := cmd.Context()
	b, err := getBackend(ctx)
	if err != nil {
		return err
	}
	if err := b.ReviewMemory(ctx, id, approve); err != nil {
		return fmt.Errorf("review memory: %w", err)
	}
	verdict := "Rejected"
	if approve {
		verdict = "Approved"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verdict, id)
	return nil
}

func setMemoryActive(cmd *cobra.Command, id string, active bool) error {
	ctx := cmd.Context()
	b, err := getBackend(ctx)
	if err != nil {
		return err
	}
	if err := b.SetMemoryActive(ctx, id, active); err != nil {
		return fmt.Errorf("set memory active: %w", err)
	}
	state := "Deactivated"
	if active {
		state = "Activated"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, id)
	return nil
}
