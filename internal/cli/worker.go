package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"docpipe/internal/app"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Serve ingestion requests from the NSQ request topic",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(func(ctx context.Context, deps *app.Dependencies) error {
			if err := deps.StartWorker(); err != nil {
				return err
			}
			slog.Info("worker started; waiting for ingest requests")
			<-ctx.Done()
			slog.Info("shutting down worker...")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
