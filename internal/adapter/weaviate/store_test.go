package weaviate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	adapter "docpipe/internal/adapter/weaviate"
	"docpipe/internal/embcache"
)

func mockWeaviate(t *testing.T, handler http.HandlerFunc) (*weaviate.Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	cfg := weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"}
	client, err := weaviate.NewClient(cfg)
	assert.NoError(t, err)
	return client, ts
}

func entryFixture(hash, docSet string) embcache.Entry {
	return embcache.Entry{
		ID:      "e-" + hash,
		Content: "chunk body",
		Vector:  []float32{0.1, 0.2, 0.3},
		Metadata: embcache.Metadata{
			URL:        "http://docs.example/page",
			Title:      "Page",
			Hash:       hash,
			DocSet:     docSet,
			ChunkIndex: 2,
		},
	}
}

func TestStore_UploadBatch(t *testing.T) {
	var captured []map[string]interface{}
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.Write([]byte(`{"version": "1.25.0"}`))
			return
		}
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, "POST", r.Method)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		objects := body["objects"].([]interface{})
		for _, o := range objects {
			captured = append(captured, o.(map[string]interface{}))
		}

		var resp []map[string]interface{}
		for _, o := range captured {
			resp = append(resp, map[string]interface{}{
				"class":  o["class"],
				"id":     o["id"],
				"result": map[string]interface{}{"status": "SUCCESS"},
			})
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	err := store.UploadBatch(context.Background(), "jdk", []embcache.Entry{entryFixture("h1", "jdk")})
	require.NoError(t, err)
	require.Len(t, captured, 1)

	obj := captured[0]
	assert.Equal(t, "DocChunkJdk", obj["class"])
	assert.NotEmpty(t, obj["id"])
	props := obj["properties"].(map[string]interface{})
	assert.Equal(t, "chunk body", props["content"])
	assert.Equal(t, "http://docs.example/page", props["url"])
	assert.Equal(t, "h1", props["hash"])
	assert.Equal(t, 2.0, props["chunkIndex"])

	// Same chunk hash always maps to the same object id.
	firstID := obj["id"]
	err = store.UploadBatch(context.Background(), "jdk", []embcache.Entry{entryFixture("h1", "jdk")})
	require.NoError(t, err)
	assert.Equal(t, firstID, captured[1]["id"])
}

func TestStore_UploadBatch_ObjectErrorFailsBatch(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.Write([]byte(`{"version": "1.25.0"}`))
			return
		}
		resp := []map[string]interface{}{
			{
				"class": "DocChunk",
				"result": map[string]interface{}{
					"errors": map[string]interface{}{
						"error": []map[string]interface{}{{"message": "invalid property"}},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	err := store.UploadBatch(context.Background(), "", []embcache.Entry{entryFixture("h1", "")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid property")
}

func TestStore_DeleteByURL(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.Write([]byte(`{"version": "1.25.0"}`))
			return
		}
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, "DELETE", r.Method)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		match := body["match"].(map[string]interface{})
		assert.Equal(t, "DocChunkJdk", match["class"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": map[string]interface{}{"matches": 3, "successful": 3},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	matched, err := store.DeleteByURL(context.Background(), "jdk", "http://docs.example/page")
	require.NoError(t, err)
	assert.Equal(t, 3, matched)
}

func TestStore_CountByURL(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.Write([]byte(`{"version": "1.25.0"}`))
			return
		}
		assert.Equal(t, "/v1/graphql", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		query := body["query"].(string)
		assert.Contains(t, query, "Aggregate")
		assert.Contains(t, query, "DocChunk")
		assert.Contains(t, query, "meta")
		assert.Contains(t, query, "count")

		resp := map[string]interface{}{
			"data": map[string]interface{}{
				"Aggregate": map[string]interface{}{
					"DocChunk": []interface{}{
						map[string]interface{}{
							"meta": map[string]interface{}{"count": 42.0},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	count, err := store.CountByURL(context.Background(), "", "http://docs.example/page")
	require.NoError(t, err)
	assert.Equal(t, 42, count)
}

func TestStore_CountByURL_MissingClassIsZero(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.Write([]byte(`{"version": "1.25.0"}`))
			return
		}
		resp := map[string]interface{}{
			"data": map[string]interface{}{
				"Aggregate": map[string]interface{}{},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	count, err := store.CountByURL(context.Background(), "unknown", "http://docs.example/page")
	require.NoError(t, err)
	assert.Zero(t, count)
}
