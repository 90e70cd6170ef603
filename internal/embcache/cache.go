// Package embcache persists computed embedding vectors in memory with disk
// durability: a single gzip-compressed JSON snapshot replaced wholesale on
// every save, incremental autosave, and crash-safe startup that quarantines an
// unreadable snapshot instead of silently starting empty.
package embcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	snapshotFileName   = "embeddings_cache.gz"
	corruptFilePrefix  = "embeddings_cache.corrupt."
	snapshotTimeFormat = "20060102_150405"
)

var (
	// ErrPersistenceFailed is returned by every cache operation after a save
	// failure. Once disk durability can no longer be trusted, accepting new
	// entries would grow an unrecoverable working set.
	ErrPersistenceFailed = errors.New("embedding cache persistence failed; create a new cache instance")

	// ErrEmbeddingCountMismatch is returned when the provider answers a batch
	// with a different number of vectors than requested.
	ErrEmbeddingCountMismatch = errors.New("embedding response count does not match request count")

	// ErrDimensionMismatch is returned when a vector does not have the
	// configured dimensionality. Vectors are never padded or truncated.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder computes vectors for a batch of texts, index-aligned with the input.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Uploader writes a group of cached entries to the remote destination class
// identified by the routing key.
type Uploader interface {
	UploadBatch(ctx context.Context, routeKey string, entries []Entry) error
}

type Options struct {
	Dir               string
	Dimension         int
	AutoSaveThreshold int           // save after this many newly computed embeddings; default 50
	SaveInterval      time.Duration // periodic save when dirty; default 2 minutes
}

// Cache is safe for concurrent use. The entry table is a concurrent map;
// the disk-write sequence is a single-writer critical section.
type Cache struct {
	dir               string
	dimension         int
	autoSaveThreshold int
	saveInterval      time.Duration

	embedder Embedder
	uploader Uploader

	entries sync.Map // cache key -> Entry
	size    atomic.Int64

	hits          atomic.Int64
	misses        atomic.Int64
	sinceLastSave atomic.Int64
	dirty         atomic.Bool
	failed        atomic.Bool

	fileMu    sync.Mutex // guards read-snapshot-and-write-file sequences
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New loads any existing snapshot from opts.Dir and starts the periodic save
// timer. A snapshot that cannot be read is moved aside under a timestamped
// quarantine name, with its original bytes preserved, and an initialization
// error is returned so the operator decides how to proceed.
func New(opts Options, embedder Embedder, uploader Uploader) (*Cache, error) {
	if opts.AutoSaveThreshold <= 0 {
		opts.AutoSaveThreshold = 50
	}
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = 2 * time.Minute
	}
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	c := &Cache{
		dir:               opts.Dir,
		dimension:         opts.Dimension,
		autoSaveThreshold: opts.AutoSaveThreshold,
		saveInterval:      opts.SaveInterval,
		embedder:          embedder,
		uploader:          uploader,
		done:              make(chan struct{}),
	}

	snapshot := filepath.Join(c.dir, snapshotFileName)
	if _, err := os.Stat(snapshot); err == nil {
		n, err := c.importFile(snapshot)
		if err != nil {
			quarantine := filepath.Join(c.dir,
				corruptFilePrefix+time.Now().UTC().Format(snapshotTimeFormat)+".gz")
			if moveErr := os.Rename(snapshot, quarantine); moveErr != nil {
				return nil, fmt.Errorf("cache snapshot unreadable (%v) and quarantine failed: %w", err, moveErr)
			}
			slog.Warn("quarantined unreadable cache snapshot", "quarantine", quarantine, "error", err)
			return nil, fmt.Errorf("cache snapshot unreadable, quarantined as %s: %w", quarantine, err)
		}
		slog.Info("loaded embedding cache snapshot", "entries", n)
	}

	c.wg.Add(1)
	go c.periodicSave()

	return c, nil
}

func (c *Cache) periodicSave() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.saveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.failed.Load() || !c.dirty.Load() {
				continue
			}
			if err := c.save(); err != nil {
				slog.Error("periodic cache save failed", "error", err)
			}
		}
	}
}

// Close stops the periodic save timer and runs a final best-effort save.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		if !c.failed.Load() && c.dirty.Load() {
			err = c.save()
		}
	})
	return err
}

func (c *Cache) guard() error {
	if c.failed.Load() {
		return ErrPersistenceFailed
	}
	return nil
}

// GetOrCompute returns one vector per item, order-preserving. Misses are
// embedded in a single batched provider call; a count or dimension mismatch
// fails the whole batch, since downstream storage depends on strict index
// alignment between items and vectors.
func (c *Cache) GetOrCompute(ctx context.Context, items []Item) ([][]float32, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(items))
	var missing []int
	for i, item := range items {
		key := KeyFor(item.Content, item.Metadata)
		if v, ok := c.entries.Load(key); ok {
			vectors[i] = v.(Entry).Vector
			c.hits.Add(1)
			continue
		}
		missing = append(missing, i)
		c.misses.Add(1)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = items[i].Content
	}

	slog.InfoContext(ctx, "computing embeddings", "count", len(missing), "hit_rate", c.hitRate())
	computed, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch of %d: %w", len(texts), err)
	}
	if len(computed) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d, got %d", ErrEmbeddingCountMismatch, len(texts), len(computed))
	}

	var added int64
	for j, i := range missing {
		vector := computed[j]
		if c.dimension > 0 && len(vector) != c.dimension {
			return nil, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, c.dimension, len(vector))
		}
		vectors[i] = vector

		item := items[i]
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		entry := Entry{
			ID:        id,
			Content:   item.Content,
			Vector:    vector,
			Metadata:  item.Metadata,
			CreatedAt: time.Now().UTC(),
		}
		key := KeyFor(item.Content, item.Metadata)
		if _, existed := c.entries.Load(key); !existed {
			added++
		}
		c.entries.Store(key, entry)
	}
	c.size.Add(added)
	c.dirty.Store(true)

	if c.sinceLastSave.Add(int64(len(missing))) >= int64(c.autoSaveThreshold) {
		if err := c.save(); err != nil {
			return nil, err
		}
	}
	// Save progress at the end of every batch that computed anything, so an
	// interrupted run loses at most the embeddings since the last save.
	if c.sinceLastSave.Load() > 0 {
		if err := c.save(); err != nil {
			return nil, err
		}
	}

	return vectors, nil
}

// MarkUploaded flips uploaded=true for the entries with the given cache keys.
// Called after a confirmed remote write that bypassed UploadPending.
func (c *Cache) MarkUploaded(keys []string) {
	changed := false
	for _, key := range keys {
		if v, ok := c.entries.Load(key); ok {
			entry := v.(Entry)
			if !entry.Uploaded {
				entry.Uploaded = true
				c.entries.Store(key, entry)
				changed = true
			}
		}
	}
	if changed {
		c.dirty.Store(true)
	}
}

// EvictByChunkHash removes every cached entry whose metadata hash is in the
// set and returns the removed count. The snapshot is persisted when anything
// was removed.
func (c *Cache) EvictByChunkHash(hashes []string) (int, error) {
	if err := c.guard(); err != nil {
		return 0, err
	}
	want := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		if h != "" {
			want[h] = struct{}{}
		}
	}
	if len(want) == 0 {
		return 0, nil
	}

	removed := 0
	c.entries.Range(func(key, v any) bool {
		entry := v.(Entry)
		if _, ok := want[entry.Metadata.Hash]; ok {
			c.entries.Delete(key)
			removed++
		}
		return true
	})
	if removed == 0 {
		return 0, nil
	}
	c.size.Add(int64(-removed))
	c.dirty.Store(true)
	if err := c.save(); err != nil {
		return removed, err
	}
	return removed, nil
}

// UploadPending writes not-yet-uploaded entries to the remote destination in
// groups keyed by doc-set provenance, batchSize entries per write. Entries are
// marked uploaded only after their group's write succeeds; a group write
// failure aborts the whole call without marking partial progress within the
// failing group.
func (c *Cache) UploadPending(ctx context.Context, batchSize int) (int, error) {
	if err := c.guard(); err != nil {
		return 0, err
	}
	if c.uploader == nil {
		return 0, errors.New("no uploader configured")
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	type pendingEntry struct {
		key   string
		entry Entry
	}
	groups := make(map[string][]pendingEntry)
	c.entries.Range(func(key, v any) bool {
		entry := v.(Entry)
		if !entry.Uploaded {
			routeKey := entry.Metadata.DocSet
			groups[routeKey] = append(groups[routeKey], pendingEntry{key.(string), entry})
		}
		return true
	})
	if len(groups) == 0 {
		slog.InfoContext(ctx, "no pending embeddings to upload")
		return 0, nil
	}

	uploaded := 0
	for routeKey, pending := range groups {
		for start := 0; start < len(pending); start += batchSize {
			end := min(start+batchSize, len(pending))
			batch := pending[start:end]

			entries := make([]Entry, len(batch))
			for i, p := range batch {
				entries[i] = p.entry
			}
			if err := c.uploader.UploadBatch(ctx, routeKey, entries); err != nil {
				if saveErr := c.saveIfDirty(); saveErr != nil {
					slog.ErrorContext(ctx, "cache save after failed upload", "error", saveErr)
				}
				return uploaded, fmt.Errorf("upload batch (route %q, offset %d): %w", routeKey, start, err)
			}
			for _, p := range batch {
				p.entry.Uploaded = true
				c.entries.Store(p.key, p.entry)
			}
			c.dirty.Store(true)
			uploaded += len(batch)
			slog.InfoContext(ctx, "uploaded embedding batch", "route", routeKey, "count", len(batch))
		}
	}

	if err := c.saveIfDirty(); err != nil {
		return uploaded, err
	}
	return uploaded, nil
}

// Stats reports cache totals and hit-rate counters.
type Stats struct {
	TotalCached int64   `json:"totalCached"`
	Uploaded    int64   `json:"uploaded"`
	Pending     int64   `json:"pending"`
	Hits        int64   `json:"cacheHits"`
	Misses      int64   `json:"cacheMisses"`
	HitRate     float64 `json:"hitRate"`
	Dir         string  `json:"cacheDirectory"`
}

func (c *Cache) Stats() Stats {
	var uploaded, pending int64
	c.entries.Range(func(_, v any) bool {
		if v.(Entry).Uploaded {
			uploaded++
		} else {
			pending++
		}
		return true
	})
	return Stats{
		TotalCached: c.size.Load(),
		Uploaded:    uploaded,
		Pending:     pending,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		HitRate:     c.hitRate(),
		Dir:         c.dir,
	}
}

func (c *Cache) hitRate() float64 {
	total := c.hits.Load() + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(c.hits.Load()) / float64(total)
}

func (c *Cache) saveIfDirty() error {
	if !c.dirty.Load() {
		return nil
	}
	return c.save()
}
