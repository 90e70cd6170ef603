// Package ingest drives incremental documentation ingestion: unchanged
// sources are skipped via the fingerprint ledger, changed sources are pruned
// and re-ingested, and chunk markers guarantee each chunk is committed to the
// primary destination at most once.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"docpipe/internal/crawl"
	"docpipe/internal/embcache"
	"docpipe/internal/ledger"
	"docpipe/internal/router"
	"docpipe/internal/text"
)

// Storer embeds and persists one source's chunks, reporting whether the
// primary destination confirmed the write.
type Storer interface {
	Store(ctx context.Context, routeKey string, items []embcache.Item) (router.Result, error)
}

// RemoteDeleter removes a source's chunks from the remote store and reports
// how many it currently holds for a URL. Nil when running local-only.
type RemoteDeleter interface {
	DeleteByURL(ctx context.Context, routeKey, url string) (int, error)
	CountByURL(ctx context.Context, routeKey, url string) (int, error)
}

// CacheEvictor drops stale chunk embeddings from the local cache.
type CacheEvictor interface {
	EvictByChunkHash(hashes []string) (int, error)
}

// Source is one unit of ingestion: a crawled page or a local file, reduced to
// plain text with its change-detection attributes.
type Source struct {
	ID         string // URL or absolute file path
	Title      string
	Text       string
	Size       int64
	ModTime    int64 // unix milliseconds, zero for web pages
	DocSet     string
	Package    string
	SourceName string
}

// Outcome summarizes one ingestion run.
type Outcome struct {
	Processed     int       `json:"processed"`
	Skipped       int       `json:"skipped"`
	ChunksStored  int       `json:"chunksStored"`
	ChunksDeduped int       `json:"chunksDeduped"`
	Failures      []Failure `json:"failures,omitempty"`
}

func (o *Outcome) fail(f Failure) {
	o.Failures = append(o.Failures, f)
}

type Orchestrator struct {
	ledger    *ledger.Ledger
	markers   *ledger.Markers
	store     Storer
	remote    RemoteDeleter
	cache     CacheEvictor
	maxTokens int
}

func NewOrchestrator(lg *ledger.Ledger, markers *ledger.Markers, store Storer, remote RemoteDeleter, cache CacheEvictor, maxTokens int) *Orchestrator {
	if maxTokens <= 0 {
		maxTokens = 900
	}
	return &Orchestrator{
		ledger:    lg,
		markers:   markers,
		store:     store,
		remote:    remote,
		cache:     cache,
		maxTokens: maxTokens,
	}
}

// IngestAll runs the per-source state machine over every source. A failing
// source is recorded and skipped; it never aborts the run.
func (o *Orchestrator) IngestAll(ctx context.Context, sources []Source) Outcome {
	var out Outcome
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			out.fail(newFailure(src.ID, PhaseStore, err))
			return out
		}
		o.ingestSource(ctx, src, &out)
	}
	slog.InfoContext(ctx, "ingestion run finished",
		"processed", out.Processed, "skipped", out.Skipped,
		"chunks_stored", out.ChunksStored, "chunks_deduped", out.ChunksDeduped,
		"failures", len(out.Failures))
	return out
}

// ingestSource applies the state machine for one source:
//
//	unchanged -> skip
//	changed   -> prune stale state, then treat as new
//	new       -> chunk, store pending chunks, commit markers + fingerprint
//
// Markers and the fingerprint are written only after the primary destination
// confirmed the write; a cache fallback leaves the source uncommitted so a
// later run retries it.
func (o *Orchestrator) ingestSource(ctx context.Context, src Source, out *Outcome) {
	if src.Text == "" {
		out.fail(newFailure(src.ID, PhaseEmptyDocument, fmt.Errorf("no extractable text")))
		return
	}

	if o.ledger.IsUnchanged(src.ID, src.Size, src.ModTime) {
		slog.DebugContext(ctx, "source unchanged, skipping", "source", src.ID)
		out.Skipped++
		return
	}

	chunks := text.Chunks(src.ID, src.Text, o.maxTokens)
	if len(chunks) == 0 {
		out.fail(newFailure(src.ID, PhaseChunking, fmt.Errorf("no chunks produced after noise filtering")))
		return
	}

	if old, existed := o.ledger.Read(src.ID); existed {
		if err := o.prune(ctx, src, old, chunks); err != nil {
			out.fail(newFailure(src.ID, PhasePrune, err))
			return
		}
	}

	newHashes := make([]string, len(chunks))
	var pending []text.Chunk
	for i, c := range chunks {
		newHashes[i] = c.Hash
		if !o.markers.Has(c.Hash) {
			pending = append(pending, c)
		}
	}
	fp := ledger.Fingerprint{Size: src.Size, ModTime: src.ModTime, ChunkHashes: newHashes}

	// Every chunk already reached the primary destination in an earlier run
	// that did not get as far as recording the fingerprint. Completing the
	// record is all that is left.
	if len(pending) == 0 {
		if err := o.ledger.Record(src.ID, fp); err != nil {
			out.fail(newFailure(src.ID, PhaseStore, err))
			return
		}
		out.Processed++
		out.ChunksDeduped += len(chunks)
		return
	}

	items := make([]embcache.Item, len(pending))
	for i, c := range pending {
		items[i] = embcache.Item{
			Content: c.Content,
			Metadata: embcache.Metadata{
				URL:        src.ID,
				Title:      src.Title,
				ChunkIndex: c.Index,
				Hash:       c.Hash,
				Package:    src.Package,
				DocSet:     src.DocSet,
				DocType:    string(c.Type),
				SourceName: src.SourceName,
			},
		}
	}

	result, err := o.store.Store(ctx, src.DocSet, items)
	if err != nil {
		out.fail(newFailure(src.ID, PhaseStore, err))
		return
	}
	if !result.UsedPrimary {
		// The chunks are safe in the cache but the primary write is not
		// confirmed. Leaving markers and fingerprint unwritten makes the next
		// run pick this source up again.
		slog.WarnContext(ctx, "primary destination unavailable, source left uncommitted", "source", src.ID)
		out.Processed++
		out.ChunksStored += len(pending)
		return
	}

	for _, c := range pending {
		if err := o.markers.Set(c.Hash); err != nil {
			out.fail(newFailure(src.ID, PhaseStore, err))
			return
		}
	}
	if err := o.ledger.Record(src.ID, fp); err != nil {
		out.fail(newFailure(src.ID, PhaseStore, err))
		return
	}
	o.verifyRemoteCount(ctx, src, len(chunks))

	out.Processed++
	out.ChunksStored += len(pending)
	out.ChunksDeduped += len(chunks) - len(pending)
}

// verifyRemoteCount compares the destination's chunk count for the source
// against the committed generation. A mismatch is logged, never fatal: the
// markers and fingerprint are already consistent, and the count is only a
// health signal.
func (o *Orchestrator) verifyRemoteCount(ctx context.Context, src Source, want int) {
	if o.remote == nil {
		return
	}
	got, err := o.remote.CountByURL(ctx, src.DocSet, src.ID)
	if err != nil {
		slog.WarnContext(ctx, "remote chunk count check failed", "source", src.ID, "error", err)
		return
	}
	if got != want {
		slog.WarnContext(ctx, "remote chunk count mismatch",
			"source", src.ID, "want", want, "got", got)
	}
}

// prune clears the previous generation of a changed source: all of its chunk
// markers, cache entries for hashes that no longer exist, the source's remote
// chunks, and finally the fingerprint itself. Order matters: once markers are
// gone the source can never be half-skipped, and the fingerprint goes last so
// an interrupted prune re-runs in full.
func (o *Orchestrator) prune(ctx context.Context, src Source, old ledger.Fingerprint, chunks []text.Chunk) error {
	if err := o.markers.Delete(old.ChunkHashes); err != nil {
		return fmt.Errorf("delete chunk markers: %w", err)
	}

	current := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		current[c.Hash] = true
	}
	var stale []string
	for _, h := range old.ChunkHashes {
		if !current[h] {
			stale = append(stale, h)
		}
	}
	if len(stale) > 0 && o.cache != nil {
		if _, err := o.cache.EvictByChunkHash(stale); err != nil {
			return fmt.Errorf("evict stale cache entries: %w", err)
		}
	}

	if o.remote != nil {
		matched, err := o.remote.DeleteByURL(ctx, src.DocSet, src.ID)
		if err != nil {
			return fmt.Errorf("delete remote chunks: %w", err)
		}
		slog.DebugContext(ctx, "pruned remote chunks", "source", src.ID, "matched", matched)
	}

	if err := o.ledger.Delete(src.ID); err != nil {
		return fmt.Errorf("delete fingerprint: %w", err)
	}
	return nil
}

// PageFetcher is the crawler seam, mockable in tests.
type PageFetcher interface {
	Crawl(ctx context.Context, rootURL string, maxPages int) ([]crawl.Page, error)
}

// IngestSite crawls a documentation site and ingests every fetched page.
func (o *Orchestrator) IngestSite(ctx context.Context, fetcher PageFetcher, rootURL, docSet string, maxPages int) (Outcome, error) {
	pages, err := fetcher.Crawl(ctx, rootURL, maxPages)
	if err != nil {
		return Outcome{}, fmt.Errorf("crawl %s: %w", rootURL, err)
	}
	sources := make([]Source, len(pages))
	for i, p := range pages {
		sources[i] = Source{
			ID:         p.URL,
			Title:      p.Title,
			Text:       p.Text,
			Size:       int64(len(p.Text)),
			DocSet:     docSet,
			SourceName: rootURL,
		}
	}
	return o.IngestAll(ctx, sources), nil
}
