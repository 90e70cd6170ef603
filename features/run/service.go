package run

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"docpipe/internal/ingest"
)

// Service records ingestion outcomes. A nil repository turns recording into a
// no-op, so the pipeline works without a database.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RecordOutcome persists one finished ingestion run. Failures to record are
// logged, never propagated: run history must not fail an otherwise good run.
func (s *Service) RecordOutcome(ctx context.Context, mode, target, docSet string, startedAt time.Time, outcome ingest.Outcome) *Run {
	failures, err := json.Marshal(outcome.Failures)
	if err != nil {
		failures = []byte("[]")
	}
	if outcome.Failures == nil {
		failures = []byte("[]")
	}

	run := &Run{
		Mode:          mode,
		Target:        target,
		DocSet:        docSet,
		Processed:     outcome.Processed,
		Skipped:       outcome.Skipped,
		ChunksStored:  outcome.ChunksStored,
		ChunksDeduped: outcome.ChunksDeduped,
		Failures:      failures,
		StartedAt:     startedAt,
		FinishedAt:    time.Now().UTC(),
	}
	if s.repo == nil {
		return run
	}
	if err := s.repo.Save(ctx, run); err != nil {
		slog.ErrorContext(ctx, "failed to record ingestion run", "error", err)
	}
	return run
}

func (s *Service) List(ctx context.Context, limit int) ([]Run, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.List(ctx, limit)
}

func (s *Service) Latest(ctx context.Context) (*Run, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.Latest(ctx)
}
