package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"docpipe/internal/adapter/gemini"
)

func mockGemini(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestEmbedder_EmbedBatch(t *testing.T) {
	ts := mockGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embeddings": []map[string]interface{}{
				{"values": []float32{0.1, 0.2, 0.3}},
				{"values": []float32{0.4, 0.5, 0.6}},
			},
		})
	})

	ctx := context.Background()
	embedder, err := gemini.NewEmbedder(ctx, "test-key", "gemini-embedding-001",
		option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer embedder.Close()

	vectors, err := embedder.EmbedBatch(ctx, []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, vectors[1])
}

func TestEmbedder_EmbedBatch_CountMismatch(t *testing.T) {
	ts := mockGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embeddings": []map[string]interface{}{
				{"values": []float32{0.1}},
			},
		})
	})

	ctx := context.Background()
	embedder, err := gemini.NewEmbedder(ctx, "test-key", "",
		option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer embedder.Close()

	_, err = embedder.EmbedBatch(ctx, []string{"first", "second"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "1 vectors for 2 texts")
}

func TestEmbedder_EmbedBatch_EmptyInput(t *testing.T) {
	ts := mockGemini(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty input")
	})

	ctx := context.Background()
	embedder, err := gemini.NewEmbedder(ctx, "test-key", "",
		option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer embedder.Close()

	vectors, err := embedder.EmbedBatch(ctx, nil)
	assert.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestNewEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := gemini.NewEmbedder(context.Background(), "", "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}
