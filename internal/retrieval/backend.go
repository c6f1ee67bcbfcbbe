// Package retrieval finds supporting report snippets for a chat message.
package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/geoint/internal/config"
	"github.com/hyperjump/geoint/internal/embedding"
	"github.com/hyperjump/geoint/internal/models"
)

// Backend names accepted by retrieval.backend.
const (
	BackendLocal   = "local"
	BackendChromem = "chromem"
)

// Backend is a similarity-search store over report chunks.
// Query returns hits in descending relevance with Content set to the full chunk text.
// Upsert replaces chunks with the same ID in place.
type Backend interface {
	Name() string
	Query(ctx context.Context, text string, n int) ([]models.ContextSnippet, error)
	Upsert(ctx context.Context, chunks []*models.ReportChunk) error
	ChunkIDs(ctx context.Context, reportID string) ([]string, error)
	DeleteChunks(ctx context.Context, ids []string) error
	DeleteReport(ctx context.Context, reportID string) error
	Count(ctx context.Context) (Counts, error)
	Close() error
}

// Counts is the size of a backend.
type Counts struct {
	Reports int
	Chunks  int
}

// Open creates the backend selected by cfg.Retrieval.Backend. The backend owns the embedder.
func Open(cfg *config.Config, logger *zap.Logger) (Backend, error) {
	embedder := embedding.New(cfg.Embedding, logger)
	var (
		b   Backend
		err error
	)
	switch cfg.Retrieval.Backend {
	case BackendLocal, "":
		b, err = NewLocal(cfg.Storage, embedder)
	case BackendChromem:
		b, err = NewChromem(cfg.Storage.ChromemPath, cfg.Retrieval.Collection, embedder)
	default:
		err = fmt.Errorf("unknown retrieval backend %q", cfg.Retrieval.Backend)
	}
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}
	return b, nil
}

// metadataWithReport returns a copy of md with report_id set.
func metadataWithReport(md map[string]any, reportID string) map[string]any {
	out := make(map[string]any, len(md)+1)
	for k, v := range md {
		out[k] = v
	}
	if _, ok := out["report_id"]; !ok && reportID != "" {
		out["report_id"] = reportID
	}
	return out
}
