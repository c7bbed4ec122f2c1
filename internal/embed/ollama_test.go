package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeOllama(t *testing.T, dims int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var requests atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		requests.Add(1)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		embeddings := make([][]float32, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dims)
			vec[0] = float32(len(req.Input[i]))
			embeddings[i] = vec
		}
		require.NoError(t, json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: embeddings}))
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestOllama_EmbedBatch(t *testing.T) {
	server, _ := newFakeOllama(t, 8)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  server.URL,
		Model: "test-model",
	})
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, 8, e.Dimensions())
	assert.Equal(t, "test-model", e.ModelName())

	vectors, err := e.EmbedBatch(context.Background(), []string{"one", "three"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, float32(3), vectors[0][0])
	assert.Equal(t, float32(5), vectors[1][0])
}

func TestOllama_SplitsBatches(t *testing.T) {
	server, requests := newFakeOllama(t, 4)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            server.URL,
		Model:           "test-model",
		BatchSize:       2,
		SkipHealthCheck: true,
		Dimensions:      4,
	})
	require.NoError(t, err)
	defer e.Close()

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Equal(t, int64(3), requests.Load())
}

func TestOllama_UnreachableHostFailsConstruction(t *testing.T) {
	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:       "http://127.0.0.1:1",
		Model:      "test-model",
		MaxRetries: 1,
	})
	require.Error(t, err)
}

func TestOllama_ServerErrorSurfacesAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            server.URL,
		Model:           "missing",
		SkipHealthCheck: true,
		Dimensions:      4,
		MaxRetries:      1,
	})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.EmbedBatch(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 1 attempts")
}
