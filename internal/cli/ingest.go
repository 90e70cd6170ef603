package cli

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/spf13/cobra"

	"docpipe/internal/app"
	"docpipe/internal/ingest"
)

var (
	crawlDocSet   string
	crawlMaxPages int

	localDocSet   string
	localMaxFiles int
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <root-url>",
	Short: "Crawl a documentation site and ingest changed pages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(func(ctx context.Context, deps *app.Dependencies) error {
			outcome, err := deps.Runner.RunCrawl(ctx, args[0], crawlDocSet, crawlMaxPages)
			if err != nil {
				return err
			}
			return printOutcome(cmd, outcome)
		})
	},
}

var localCmd = &cobra.Command{
	Use:   "local <directory>",
	Short: "Ingest changed documentation files from a local directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(func(ctx context.Context, deps *app.Dependencies) error {
			outcome, err := deps.Runner.RunLocal(ctx, args[0], localDocSet, localMaxFiles)
			if err != nil {
				return err
			}
			return printOutcome(cmd, outcome)
		})
	},
}

func printOutcome(cmd *cobra.Command, outcome ingest.Outcome) error {
	for _, f := range outcome.Failures {
		slog.Warn("source failed",
			"source", f.Source, "phase", f.Phase, "detail", f.Detail, "hint", f.Hint)
	}
	body, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(body))
	return nil
}

func init() {
	crawlCmd.Flags().StringVar(&crawlDocSet, "doc-set", "", "doc-set label routing chunks to their own class")
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "page limit for the crawl (0 uses the default)")
	rootCmd.AddCommand(crawlCmd)

	localCmd.Flags().StringVar(&localDocSet, "doc-set", "", "doc-set label routing chunks to their own class")
	localCmd.Flags().IntVar(&localMaxFiles, "max-files", 0, "file limit for the walk (0 means no limit)")
	rootCmd.AddCommand(localCmd)
}
