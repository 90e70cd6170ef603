package app

import (
	"context"
	"time"

	"docpipe/features/run"
	"docpipe/internal/crawl"
	"docpipe/internal/ingest"
	"docpipe/internal/vector"
	"docpipe/internal/worker"
)

// Runner drives a single ingestion run end to end: routing class creation,
// crawl or directory walk, and recording the outcome in the run history.
// It backs both the CLI commands and the NSQ request consumer.
type Runner struct {
	orch    *ingest.Orchestrator
	crawler *crawl.Crawler
	schema  vector.SchemaClient
	runs    *run.Service
	pdf     ingest.PDFExtractor
}

func NewRunner(orch *ingest.Orchestrator, crawler *crawl.Crawler, schema vector.SchemaClient, runs *run.Service) *Runner {
	return &Runner{orch: orch, crawler: crawler, schema: schema, runs: runs}
}

func (r *Runner) RunCrawl(ctx context.Context, rootURL, docSet string, maxPages int) (ingest.Outcome, error) {
	startedAt := time.Now().UTC()
	if err := r.ensureClass(ctx, docSet); err != nil {
		return ingest.Outcome{}, err
	}
	outcome, err := r.orch.IngestSite(ctx, r.crawler, rootURL, docSet, maxPages)
	if err != nil {
		return outcome, err
	}
	r.runs.RecordOutcome(ctx, worker.ModeCrawl, rootURL, docSet, startedAt, outcome)
	return outcome, nil
}

func (r *Runner) RunLocal(ctx context.Context, dir, docSet string, maxFiles int) (ingest.Outcome, error) {
	startedAt := time.Now().UTC()
	if err := r.ensureClass(ctx, docSet); err != nil {
		return ingest.Outcome{}, err
	}
	outcome, err := r.orch.IngestLocalDirectory(ctx, dir, docSet, maxFiles, r.pdf)
	if err != nil {
		return outcome, err
	}
	r.runs.RecordOutcome(ctx, worker.ModeLocal, dir, docSet, startedAt, outcome)
	return outcome, nil
}

// ensureClass creates the per-doc-set class before the first write targets
// it. Local-only runs carry no schema client and skip this.
func (r *Runner) ensureClass(ctx context.Context, docSet string) error {
	if r.schema == nil {
		return nil
	}
	return vector.EnsureClass(ctx, r.schema, vector.ClassNameFor(docSet))
}
