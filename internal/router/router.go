// Package router decides where a document's embedded chunks land: the remote
// vector store when it is reachable, the durable local cache otherwise. Every
// chunk passes through the cache first so embeddings are computed at most once
// regardless of destination.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docpipe/internal/embcache"
)

// Result reports how a store operation ended. UsedPrimary distinguishes a
// confirmed write to the configured primary destination from a fallback into
// the local cache; callers must not mark a document ingested on fallback.
type Result struct {
	Succeeded   bool
	UsedPrimary bool
}

// Cache is the slice of the embedding cache the router uses.
type Cache interface {
	GetOrCompute(ctx context.Context, items []embcache.Item) ([][]float32, error)
	MarkUploaded(keys []string)
}

// Remote writes entries to the remote vector store, keyed by doc set.
type Remote interface {
	UploadBatch(ctx context.Context, routeKey string, entries []embcache.Entry) error
}

type Router struct {
	cache       Cache
	remote      Remote
	localOnly   bool
	policy      Policy
	isTransient func(error) bool
}

// New builds a router. In local-only mode the cache is the primary
// destination and remote may be nil; isTransient classifies remote errors.
func New(cache Cache, remote Remote, localOnly bool, policy Policy, isTransient func(error) bool) *Router {
	if isTransient == nil {
		isTransient = func(error) bool { return false }
	}
	return &Router{
		cache:       cache,
		remote:      remote,
		localOnly:   localOnly,
		policy:      policy,
		isTransient: isTransient,
	}
}

// Store embeds and persists one document's chunks. The route key selects the
// remote destination class.
//
// Local-only mode: caching the embeddings is the whole job, so a successful
// GetOrCompute is a primary write.
//
// Upload mode: the vectors are written to the remote store with bounded
// retries. Exhausted transient failures degrade to the cache (the entries are
// already there, unmarked) and report UsedPrimary=false. Non-transient
// failures propagate, as retrying or falling back would hide a real defect.
func (r *Router) Store(ctx context.Context, routeKey string, items []embcache.Item) (Result, error) {
	if len(items) == 0 {
		return Result{Succeeded: true, UsedPrimary: true}, nil
	}

	vectors, err := r.cache.GetOrCompute(ctx, items)
	if err != nil {
		return Result{}, fmt.Errorf("embed chunks: %w", err)
	}

	if r.localOnly {
		return Result{Succeeded: true, UsedPrimary: true}, nil
	}

	entries := make([]embcache.Entry, len(items))
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = embcache.KeyFor(item.Content, item.Metadata)
		entries[i] = embcache.Entry{
			ID:        item.ID,
			Content:   item.Content,
			Vector:    vectors[i],
			Metadata:  item.Metadata,
			CreatedAt: time.Now().UTC(),
		}
	}

	err = r.policy.Do(ctx, r.isTransient, func() error {
		return r.remote.UploadBatch(ctx, routeKey, entries)
	})
	if err == nil {
		r.cache.MarkUploaded(keys)
		return Result{Succeeded: true, UsedPrimary: true}, nil
	}
	if r.isTransient(err) {
		slog.WarnContext(ctx, "remote store unreachable, chunks retained in local cache",
			"route", routeKey, "chunks", len(items), "error", err)
		return Result{Succeeded: true, UsedPrimary: false}, nil
	}
	return Result{}, fmt.Errorf("store %d chunks (route %q): %w", len(items), routeKey, err)
}
