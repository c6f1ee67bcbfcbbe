// Package ingest chunks intelligence reports and loads them into the retrieval backend.
package ingest

import (
	"fmt"

	"github.com/hyperjump/geoint/internal/models"
)

// Default window and stride, in characters.
const (
	DefaultChunkSize   = 500
	DefaultChunkStride = 450
)

// Chunker splits text into overlapping character windows.
type Chunker struct {
	size   int
	stride int
}

// NewChunker creates a chunker; non-positive values take the defaults.
func NewChunker(size, stride int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if stride <= 0 {
		stride = DefaultChunkStride
	}
	return &Chunker{size: size, stride: stride}
}

// Chunk returns windows of up to size runes starting every stride runes. IDs are
// "<report>-chunk-<j>". Empty text yields no chunks.
func (c *Chunker) Chunk(reportID, sourceFile, text string) []*models.ReportChunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	total := (len(runes) + c.stride - 1) / c.stride
	chunks := make([]*models.ReportChunk, 0, total)
	for j, start := 0, 0; start < len(runes); j, start = j+1, start+c.stride {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, &models.ReportChunk{
			ID:         ChunkID(reportID, j),
			ReportID:   reportID,
			Content:    string(runes[start:end]),
			ChunkIndex: j,
			Metadata: map[string]any{
				"source_file":  sourceFile,
				"chunk_index":  j,
				"total_chunks": total,
			},
		})
	}
	return chunks
}

// ChunkID returns the ID of chunk j of a report.
func ChunkID(reportID string, j int) string {
	return fmt.Sprintf("%s-chunk-%d", reportID, j)
}
