// Package embedding provides text embedding for report chunks and queries.
package embedding

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/geoint/internal/config"
	"github.com/hyperjump/geoint/pkg/utils"
)

// Embedder produces unit-length vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New returns the ONNX embedder when a model path is configured and loads, otherwise
// a HashEmbedder of the configured dimensions. Either is wrapped in an LRU cache of
// cfg.CacheSize entries.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) Embedder {
	logger = utils.NopIfNil(logger)
	var base Embedder
	if cfg.ModelPath != "" {
		e, err := NewONNXEmbedder(cfg)
		if err != nil {
			logger.Warn("ONNX embedder unavailable, using hash embedder",
				zap.String("model", cfg.ModelPath), zap.Error(err))
		} else {
			base = e
		}
	}
	if base == nil {
		base = NewHashEmbedder(cfg.Dimensions)
	}
	return WithCache(base, cfg.CacheSize)
}

// embedEach calls embed for every text in order.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
