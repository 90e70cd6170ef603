// Package weaviate adapts the Weaviate client to the chunk-storage operations
// the ingestion pipeline needs: batched vector writes, deletion by source URL,
// and count-by-URL verification.
package weaviate

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"docpipe/internal/embcache"
	"docpipe/internal/vector"
)

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// objectID derives a stable object id from the chunk hash so that re-writing
// the same chunk overwrites instead of duplicating.
func objectID(entry embcache.Entry) strfmt.UUID {
	seed := entry.Metadata.Hash
	if seed == "" {
		seed = embcache.KeyFor(entry.Content, entry.Metadata)
	}
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String())
}

func properties(entry embcache.Entry) map[string]interface{} {
	m := entry.Metadata
	return map[string]interface{}{
		"content":    entry.Content,
		"url":        m.URL,
		"hash":       m.Hash,
		"chunkIndex": m.ChunkIndex,
		"title":      m.Title,
		"package":    m.Package,
		"docSet":     m.DocSet,
		"docType":    m.DocType,
		"sourceName": m.SourceName,
	}
}

// UploadBatch writes the entries into the class for the routing key in a
// single batch call. Any per-object error fails the whole batch; the caller
// treats the write as not confirmed.
func (s *Store) UploadBatch(ctx context.Context, routeKey string, entries []embcache.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	className := vector.ClassNameFor(routeKey)

	objects := make([]*models.Object, len(entries))
	for i, entry := range entries {
		objects[i] = &models.Object{
			Class:      className,
			ID:         objectID(entry),
			Properties: properties(entry),
			Vector:     models.C11yVector(entry.Vector),
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("batch write %d objects to %s: %w", len(objects), className, err)
	}
	var failures []string
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil {
			for _, item := range r.Result.Errors.Error {
				if item != nil {
					failures = append(failures, item.Message)
				}
			}
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("batch write to %s rejected %d objects: %s",
			className, len(failures), strings.Join(failures, "; "))
	}
	return nil
}

// DeleteByURL removes every chunk of the given source URL from the class for
// the routing key and returns the number of matched objects.
func (s *Store) DeleteByURL(ctx context.Context, routeKey, url string) (int, error) {
	className := vector.ClassNameFor(routeKey)
	resp, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(className).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"url"}).
			WithOperator(filters.Equal).
			WithValueString(url)).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete chunks for %s from %s: %w", url, className, err)
	}
	if resp != nil && resp.Results != nil {
		return int(resp.Results.Matches), nil
	}
	return 0, nil
}

// CountByURL reports how many chunks of the source URL the class currently
// holds.
func (s *Store) CountByURL(ctx context.Context, routeKey, url string) (int, error) {
	className := vector.ClassNameFor(routeKey)
	where := filters.Where().
		WithPath([]string{"url"}).
		WithOperator(filters.Equal).
		WithValueString(url)

	res, err := s.client.GraphQL().Aggregate().
		WithClassName(className).
		WithWhere(where).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}
	return aggregateCount(res.Data, className)
}

func aggregateCount(data map[string]models.JSONObject, className string) (int, error) {
	agg, ok := data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("unexpected aggregate response shape")
	}
	rows, ok := agg[className].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	row, ok := rows[0].(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("unexpected aggregate row shape")
	}
	meta, ok := row["meta"].(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("aggregate row has no meta")
	}
	count, ok := meta["count"].(float64)
	if !ok {
		return 0, fmt.Errorf("aggregate meta has no count")
	}
	return int(count), nil
}
