package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"docpipe/internal/app"
)

var uploadBatchSize int

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload cached embeddings that never reached the vector store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(func(ctx context.Context, deps *app.Dependencies) error {
			uploaded, err := deps.Cache.UploadPending(ctx, uploadBatchSize)
			if err != nil {
				return err
			}
			cmd.Printf("uploaded %d pending embeddings\n", uploaded)
			return nil
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [path]",
	Short: "Export the embedding cache snapshot (timestamped file when no path is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(func(ctx context.Context, deps *app.Dependencies) error {
			if len(args) == 0 {
				path, err := deps.Cache.SaveSnapshot()
				if err != nil {
					return err
				}
				cmd.Printf("cache exported to %s\n", path)
				return nil
			}
			if err := deps.Cache.Export(args[0]); err != nil {
				return err
			}
			cmd.Printf("cache exported to %s\n", args[0])
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Merge an exported snapshot into the embedding cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(func(ctx context.Context, deps *app.Dependencies) error {
			merged, err := deps.Cache.Import(args[0])
			if err != nil {
				return err
			}
			cmd.Printf("merged %d entries from %s\n", merged, args[0])
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print embedding cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(func(ctx context.Context, deps *app.Dependencies) error {
			body, err := json.MarshalIndent(deps.Cache.Stats(), "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(body))
			return nil
		})
	},
}

func init() {
	uploadCmd.Flags().IntVar(&uploadBatchSize, "batch-size", 50, "entries per remote write")
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statsCmd)
}
