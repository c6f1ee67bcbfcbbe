// Package keyword provides the BM25 half of the local retrieval backend.
package keyword

import (
	"context"

	"github.com/hyperjump/geoint/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means exact term matching.
type SearchOptions struct {
	// Fuzziness is the maximum Levenshtein edit distance per term (0 disables, max 2).
	Fuzziness int
}

// KeywordIndex defines keyword search over report chunks.
type KeywordIndex interface {
	Index(ctx context.Context, chunks []*models.ReportChunk) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, ids []string) error
	Close() error
	// DocCount returns the total number of chunks in the index.
	DocCount() (uint64, error)
}

// KeywordResult is a single keyword search hit keyed by chunk ID.
type KeywordResult struct {
	ID    string
	Score float64
}
