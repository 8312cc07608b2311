package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyLimit int

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Manage conversations",
}

var chatNewCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Start a conversation and print its ID",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := getBackend(ctx)
		if err != nil {
			return err
		}
		title := ""
		if len(args) == 1 {
			title = args[0]
		}
		conv, err := b.CreateConversation(ctx, title)
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), conv.ID)
		return nil
	},
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history <conversation-id>",
	Short: "Show the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := getBackend(ctx)
		if err != nil {
			return err
		}
		msgs, err := b.History(ctx, args[0], historyLimit)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(msgs) == 0 {
			fmt.Fprintln(out, "No messages yet.")
			return nil
		}
		for _, m := range msgs {
			fmt.Fprintf(out, "[%s] %s\n%s\n\n", m.CreatedAt.Format("15:04:05"), m.Role, m.Content)
		}
		return nil
	},
}

func init() {
	chatHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "max messages")
	chatCmd.AddCommand(chatNewCmd)
	chatCmd.AddCommand(chatHistoryCmd)
}
