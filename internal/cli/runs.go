package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"docpipe/internal/app"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent ingestion runs from the run history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(func(ctx context.Context, deps *app.Dependencies) error {
			runs, err := deps.Runs.List(ctx, runsLimit)
			if err != nil {
				return err
			}
			body, err := json.MarshalIndent(runs, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(body))
			return nil
		})
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
