package worker

import "docpipe/internal/ingest"

// Ingestion modes accepted on the request topic.
const (
	ModeCrawl = "crawl"
	ModeLocal = "local"
)

// IngestRequest asks the worker to run one ingestion.
type IngestRequest struct {
	Mode          string `json:"mode"`   // "crawl" or "local"
	Target        string `json:"target"` // root URL or directory
	DocSet        string `json:"doc_set,omitempty"`
	MaxPages      int    `json:"max_pages,omitempty"`
	MaxFiles      int    `json:"max_files,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// IngestResult reports a finished (or failed) run on the result topic.
type IngestResult struct {
	Status        string         `json:"status"` // "success" or "failed"
	Error         string         `json:"error,omitempty"`
	Mode          string         `json:"mode"`
	Target        string         `json:"target"`
	DocSet        string         `json:"doc_set,omitempty"`
	Outcome       ingest.Outcome `json:"outcome"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}
