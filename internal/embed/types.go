// Package embed produces dense vectors for chunks and queries.
//
// Two providers exist: a deterministic hash-based embedder that works with
// no external service, and an Ollama HTTP client. Both sit behind the
// Embedder interface, optionally wrapped by an LRU cache.
package embed

import "context"

// Embedder generates dense vectors for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one vector per
	// input in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}
