package retrieval

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/hyperjump/geoint/internal/embedding"
	"github.com/hyperjump/geoint/internal/models"
)

// Chromem is an embedded chromem-go collection of report chunks. A second collection
// records one marker document per report so reports can be counted.
type Chromem struct {
	mu       sync.RWMutex
	db       *chromem.DB
	chunks   *chromem.Collection
	reports  *chromem.Collection
	embedder embedding.Embedder
	marker   []float32
}

// NewChromem opens a persistent DB at path, or an in-memory DB when path is empty.
func NewChromem(path, collection string, embedder embedding.Embedder) (*Chromem, error) {
	if collection == "" {
		collection = "geoint_reports"
	}
	var (
		db  *chromem.DB
		err error
	)
	if path != "" {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("create persistent DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	chunks, err := db.GetOrCreateCollection(collection, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	reports, err := db.GetOrCreateCollection(collection+"_index", nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("create report index: %w", err)
	}

	marker := make([]float32, embedder.Dimensions())
	if len(marker) > 0 {
		marker[0] = 1
	}
	return &Chromem{db: db, chunks: chunks, reports: reports, embedder: embedder, marker: marker}, nil
}

// Name returns "chromem".
func (c *Chromem) Name() string { return BackendChromem }

// Query returns up to n chunks by cosine similarity.
func (c *Chromem) Query(ctx context.Context, text string, n int) ([]models.ContextSnippet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	// chromem rejects nResults larger than the collection.
	if count := c.chunks.Count(); n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}
	results, err := c.chunks.Query(ctx, text, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	out := make([]models.ContextSnippet, 0, len(results))
	for _, r := range results {
		md := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			md[k] = v
		}
		out = append(out, models.ContextSnippet{ID: r.ID, Content: r.Content, Metadata: md})
	}
	return out, nil
}

// Upsert adds or replaces chunks and records their reports. Every chunk is embedded
// before the collection is touched, so an embedding failure leaves it unchanged.
func (c *Chromem) Upsert(ctx context.Context, chunks []*models.ReportChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	embeddings, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	docs := make([]chromem.Document, 0, len(chunks))
	seen := make(map[string]bool)
	var markers []chromem.Document
	for i, ch := range chunks {
		docs = append(docs, chromem.Document{
			ID:        ch.ID,
			Content:   ch.Content,
			Metadata:  stringMetadata(ch),
			Embedding: embeddings[i],
		})
		if ch.ReportID != "" && !seen[ch.ReportID] {
			seen[ch.ReportID] = true
			markers = append(markers, chromem.Document{
				ID:        ch.ReportID,
				Content:   ch.ReportID,
				Embedding: c.marker,
			})
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.chunks.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	if len(markers) > 0 {
		if err := c.reports.AddDocuments(ctx, markers, 1); err != nil {
			return fmt.Errorf("add report markers: %w", err)
		}
	}
	return nil
}

// stringMetadata flattens chunk metadata to chromem's string map.
func stringMetadata(ch *models.ReportChunk) map[string]string {
	md := make(map[string]string, len(ch.Metadata)+2)
	for k, v := range ch.Metadata {
		md[k] = fmt.Sprint(v)
	}
	md["report_id"] = ch.ReportID
	md["chunk_index"] = strconv.Itoa(ch.ChunkIndex)
	return md
}

// ChunkIDs returns the IDs of reportID's chunks in chunk order.
func (c *Chromem) ChunkIDs(ctx context.Context, reportID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := c.chunks.Count()
	if n == 0 || len(c.marker) == 0 {
		return nil, nil
	}
	// A filtered query over the whole collection lists the report's documents.
	results, err := c.chunks.QueryEmbedding(ctx, c.marker, n, map[string]string{"report_id": reportID}, nil)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	sort.Slice(results, func(i, j int) bool {
		return chunkIndex(results[i]) < chunkIndex(results[j])
	})
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids, nil
}

func chunkIndex(r chromem.Result) int {
	n, _ := strconv.Atoi(r.Metadata["chunk_index"])
	return n
}

// DeleteChunks removes chunks by ID. Report markers are left in place.
func (c *Chromem) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.chunks.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// DeleteReport removes the report's chunks and marker.
func (c *Chromem) DeleteReport(ctx context.Context, reportID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.chunks.Delete(ctx, map[string]string{"report_id": reportID}, nil); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := c.reports.Delete(ctx, nil, nil, reportID); err != nil {
		return fmt.Errorf("delete report marker: %w", err)
	}
	return nil
}

// Count returns report and chunk totals.
func (c *Chromem) Count(context.Context) (Counts, error) {
	return Counts{Reports: c.reports.Count(), Chunks: c.chunks.Count()}, nil
}

// Close closes the embedder. chromem persists on every write.
func (c *Chromem) Close() error {
	return c.embedder.Close()
}
