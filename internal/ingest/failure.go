package ingest

import (
	"errors"
	"io/fs"
)

// Ingestion phases, used to report where a source failed.
const (
	PhaseFileAttributes = "file-attributes"
	PhasePDFExtraction  = "pdf-extraction"
	PhaseHTMLRead       = "html-read"
	PhaseEmptyDocument  = "empty-document"
	PhaseChunking       = "chunking"
	PhasePrune          = "prune"
	PhaseStore          = "index"
)

// Failure describes one source that could not be ingested. Other sources in
// the same run are unaffected.
type Failure struct {
	Source string `json:"source"`
	Phase  string `json:"phase"`
	Detail string `json:"detail"`
	Hint   string `json:"hint,omitempty"`
}

var errEncoding = errors.New("file content is not valid UTF-8")

// hintFor maps common filesystem errors to an operator-facing hint.
func hintFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, fs.ErrNotExist):
		return "file not found or inaccessible"
	case errors.Is(err, fs.ErrPermission):
		return "permission denied; check file ownership and mode"
	case errors.Is(err, errEncoding):
		return "file encoding issue; expected UTF-8 text"
	default:
		return ""
	}
}

func newFailure(source, phase string, err error) Failure {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return Failure{
		Source: source,
		Phase:  phase,
		Detail: detail,
		Hint:   hintFor(err),
	}
}
