// Package storage persists ingested report chunks.
package storage

import (
	"context"

	"github.com/hyperjump/geoint/internal/models"
)

// ChunkStore defines report chunk persistence.
type ChunkStore interface {
	// UpsertChunks inserts or replaces chunks in a single transaction.
	UpsertChunks(ctx context.Context, chunks []*models.ReportChunk) error
	// GetChunks returns the chunks with the given IDs, keyed by ID. Unknown IDs are absent.
	GetChunks(ctx context.Context, ids []string) (map[string]*models.ReportChunk, error)
	GetChunkIDsByReport(ctx context.Context, reportID string) ([]string, error)
	DeleteReport(ctx context.Context, reportID string) error
	DeleteChunks(ctx context.Context, ids []string) error

	CountReports(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
