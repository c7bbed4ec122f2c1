package embed

import (
	"context"

	"github.com/knowtools/know/internal/config"
	kerrors "github.com/knowtools/know/internal/errors"
)

// New builds the configured embedder, wrapped in the LRU cache.
func New(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case "static":
		inner = NewStaticEmbedder()
	case "ollama":
		e, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, kerrors.InvalidConfig("unknown embeddings provider " + cfg.Provider)
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
