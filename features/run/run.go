// Package run persists the history of ingestion runs, so operators can see
// what each run processed and which sources failed.
package run

import (
	"encoding/json"
	"time"
)

type Run struct {
	ID            string          `json:"id"`
	Mode          string          `json:"mode"`
	Target        string          `json:"target"` // root URL or directory
	DocSet        string          `json:"doc_set"`
	Processed     int             `json:"processed"`
	Skipped       int             `json:"skipped"`
	ChunksStored  int             `json:"chunks_stored"`
	ChunksDeduped int             `json:"chunks_deduped"`
	Failures      json.RawMessage `json:"failures"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
}
