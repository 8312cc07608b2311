// Package cli provides the command-line interface for groundwork.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/groundwork/internal/app"
	"github.com/raphaelgruber/groundwork/internal/client"
	"github.com/raphaelgruber/groundwork/internal/config"
	"github.com/raphaelgruber/groundwork/internal/tools"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config, logger and lazily opened backend
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
	backend  Backend

	// openBackend is replaced in tests.
	openBackend = defaultOpenBackend
)

// flagKeys maps persistent flags to their configuration keys.
var flagKeys = map[string]string{
	"owner":   "groundwork_owner",
	"project": "groundwork_project",
	"server":  "groundwork_server_url",
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "groundwork",
	Short: "Grounded answers from your memories and documents",
	Long: `Groundwork answers questions grounded in two stores: durable memories
(facts, preferences, procedures) and chunks of ingested documents.

Every answer records which memories and chunks it was grounded in.

Commands run in process against the configured store unless --server or
GROUNDWORK_SERVER_URL points at a running groundwork-server.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := config.LoadViper()
		for name, key := range flagKeys {
			if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(name)); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
		cfg = config.FromViper(v)

		// Keep stderr quiet unless asked; the log file still gets warnings.
		cfg.LogLevel = slog.LevelWarn
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cfg)
		return nil
	},
}

// getBackend opens the backend on first use.
func getBackend(ctx context.Context) (Backend, error) {
	if backend != nil {
		return backend, nil
	}
	b, err := openBackend(ctx)
	if err != nil {
		return nil, err
	}
	backend = b
	return backend, nil
}

func defaultOpenBackend(ctx context.Context) (Backend, error) {
	scope := tools.ResolveScope(cfg, tools.ScopeInput{})
	if cfg.ServerURL != "" {
		return remoteBackend{client.New(cfg.ServerURL, scope)}, nil
	}
	// In process, PDF sources are the caller's own files.
	local := cfg
	if local.LocalFileRoot == "" {
		local.LocalFileRoot = string(filepath.Separator)
	}
	a, err := app.New(ctx, local, logger)
	if err != nil {
		return nil, err
	}
	return newLocalBackend(a, scope), nil
}

// remoteClient returns a client for commands that only make sense against a server.
func remoteClient() (*client.Client, error) {
	if cfg.ServerURL == "" {
		return nil, errServerOnly
	}
	return client.New(cfg.ServerURL, tools.ResolveScope(cfg, tools.ScopeInput{})), nil
}

// cleanup closes the backend and the log file.
func cleanup() {
	if backend != nil {
		if err := backend.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close backend: %v\n", err)
		}
		backend = nil
	}
	if closeLog != nil {
		_ = closeLog()
		closeLog = nil
	}
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	defer cleanup()
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("owner", "", "owner principal (default from GROUNDWORK_OWNER)")
	rootCmd.PersistentFlags().String("project", "", "project scope (default from GROUNDWORK_PROJECT)")
	rootCmd.PersistentFlags().String("server", "", "server URL; empty runs in process")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statsCmd)
}
