package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"docpipe/internal/crawl"
)

// PDFExtractor turns a PDF file into plain text. The pipeline ships without
// one; runs that encounter a PDF without an extractor report a per-file
// pdf-extraction failure instead of aborting.
type PDFExtractor interface {
	Extract(path string) (string, error)
}

var ingestibleExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
}

// IngestLocalDirectory walks root and ingests every supported file, up to
// maxFiles. File-level problems (unreadable attributes, bad encoding, missing
// PDF support) become per-file failures; the walk continues.
func (o *Orchestrator) IngestLocalDirectory(ctx context.Context, root, docSet string, maxFiles int, pdf PDFExtractor) (Outcome, error) {
	info, err := os.Stat(root)
	if err != nil {
		return Outcome{}, fmt.Errorf("stat ingestion root: %w", err)
	}
	if !info.IsDir() {
		return Outcome{}, fmt.Errorf("ingestion root %s is not a directory", root)
	}

	var sources []Source
	var out Outcome
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			out.fail(newFailure(path, PhaseFileAttributes, walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if maxFiles > 0 && len(sources) >= maxFiles {
			return fs.SkipAll
		}
		if !ingestibleExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		src, skipped, failure := o.loadFile(path, docSet, pdf)
		if failure != nil {
			out.fail(*failure)
			return nil
		}
		if skipped {
			out.Skipped++
			return nil
		}
		sources = append(sources, src)
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("walk %s: %w", root, err)
	}

	run := o.IngestAll(ctx, sources)
	run.Skipped += out.Skipped
	run.Failures = append(out.Failures, run.Failures...)
	return run, nil
}

// loadFile reads one file into a Source. The fingerprint check runs on file
// attributes alone, before any read, parse or extraction, so unchanged files
// cost a single stat on re-runs.
func (o *Orchestrator) loadFile(path, docSet string, pdf PDFExtractor) (Source, bool, *Failure) {
	info, err := os.Stat(path)
	if err != nil {
		f := newFailure(path, PhaseFileAttributes, err)
		return Source{}, false, &f
	}

	if o.ledger.IsUnchanged(path, info.Size(), info.ModTime().UnixMilli()) {
		return Source{}, true, nil
	}

	src := Source{
		ID:         path,
		Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Size:       info.Size(),
		ModTime:    info.ModTime().UnixMilli(),
		DocSet:     docSet,
		SourceName: filepath.Base(path),
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		if pdf == nil {
			f := newFailure(path, PhasePDFExtraction, fmt.Errorf("no PDF extractor configured"))
			return Source{}, false, &f
		}
		extracted, err := pdf.Extract(path)
		if err != nil {
			f := newFailure(path, PhasePDFExtraction, err)
			return Source{}, false, &f
		}
		src.Text = extracted

	case ".html", ".htm":
		fh, err := os.Open(path)
		if err != nil {
			f := newFailure(path, PhaseHTMLRead, err)
			return Source{}, false, &f
		}
		defer fh.Close()
		base := &url.URL{Scheme: "file", Path: path}
		title, body, _, err := crawl.ParsePage(base, fh)
		if err != nil {
			f := newFailure(path, PhaseHTMLRead, err)
			return Source{}, false, &f
		}
		if title != "" {
			src.Title = title
		}
		src.Text = body

	default:
		raw, err := os.ReadFile(path)
		if err != nil {
			f := newFailure(path, PhaseFileAttributes, err)
			return Source{}, false, &f
		}
		if !utf8.Valid(raw) {
			f := newFailure(path, PhaseChunking, errEncoding)
			return Source{}, false, &f
		}
		src.Text = string(raw)
	}

	return src, false, nil
}
