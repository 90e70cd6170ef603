// Package worker consumes ingestion requests from NSQ and publishes run
// results, so ingestion can be driven by other services instead of the CLI.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"docpipe/internal/config"
	"docpipe/internal/ingest"
	"docpipe/internal/logger"
)

// IngestRunner runs one ingestion per request mode.
type IngestRunner interface {
	RunCrawl(ctx context.Context, rootURL, docSet string, maxPages int) (ingest.Outcome, error)
	RunLocal(ctx context.Context, dir, docSet string, maxFiles int) (ingest.Outcome, error)
}

// TaskPublisher publishes to an NSQ topic.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type RequestConsumer struct {
	runner     IngestRunner
	publisher  TaskPublisher
	runTimeout time.Duration
}

func NewRequestConsumer(runner IngestRunner, publisher TaskPublisher, runTimeout time.Duration) *RequestConsumer {
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}
	return &RequestConsumer{runner: runner, publisher: publisher, runTimeout: runTimeout}
}

func (h *RequestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var req IngestRequest
	if err := json.Unmarshal(m.Body, &req); err != nil {
		// Poison pill: invalid JSON never becomes valid on retry.
		slog.Error("poison pill: invalid ingest request json", "error", err)
		return nil
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := logger.WithCorrelationID(context.Background(), correlationID)

	if req.Target == "" {
		slog.ErrorContext(ctx, "ingest request missing target, dropping", "mode", req.Mode)
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, h.runTimeout)
	defer cancel()

	slog.InfoContext(ctx, "ingest request received", "mode", req.Mode, "target", req.Target, "doc_set", req.DocSet)

	var outcome ingest.Outcome
	var err error
	switch req.Mode {
	case ModeCrawl:
		outcome, err = h.runner.RunCrawl(runCtx, req.Target, req.DocSet, req.MaxPages)
	case ModeLocal:
		outcome, err = h.runner.RunLocal(runCtx, req.Target, req.DocSet, req.MaxFiles)
	default:
		slog.ErrorContext(ctx, "unknown ingest mode, dropping", "mode", req.Mode)
		return nil
	}

	result := IngestResult{
		Status:        "success",
		Mode:          req.Mode,
		Target:        req.Target,
		DocSet:        req.DocSet,
		Outcome:       outcome,
		CorrelationID: correlationID,
	}
	if err != nil {
		result.Status = "failed"
		result.Error = err.Error()
	}

	if pubErr := h.publishResult(ctx, result); pubErr != nil {
		return pubErr // retry: the run outcome would be lost otherwise
	}
	if err != nil {
		slog.ErrorContext(ctx, "ingestion run failed", "error", err, "target", req.Target)
		return err // retry the run; unchanged sources make the redo cheap
	}
	return nil
}

func (h *RequestConsumer) publishResult(ctx context.Context, result IngestResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal ingest result", "error", err)
		return nil
	}
	if err := h.publisher.Publish(config.TopicIngestResult, body); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest result", "error", err)
		return err
	}
	return nil
}
