// Package cli defines the docpipe command tree. Every command bootstraps the
// pipeline from environment configuration, runs one operation and flushes the
// cache snapshot on the way out.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docpipe/internal/app"
	"docpipe/internal/config"
	"docpipe/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "docpipe",
	Short:         "Incremental documentation ingestion into a vector store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		handler := logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))
		slog.SetDefault(slog.New(handler))
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// withDeps loads config, bootstraps the pipeline and hands a context that is
// cancelled on SIGINT/SIGTERM to fn. Dependencies are closed afterwards so
// the cache snapshot always lands on disk.
func withDeps(fn func(ctx context.Context, deps *app.Dependencies) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	return fn(ctx, deps)
}
