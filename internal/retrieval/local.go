package retrieval

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/geoint/internal/config"
	"github.com/hyperjump/geoint/internal/embedding"
	"github.com/hyperjump/geoint/internal/keyword"
	"github.com/hyperjump/geoint/internal/models"
	"github.com/hyperjump/geoint/internal/storage"
	"github.com/hyperjump/geoint/internal/vector"
)

// minCandidates is the per-index candidate floor before fusion.
const minCandidates = 20

// Local is hybrid keyword + vector search over chunks held in SQLite.
type Local struct {
	store      storage.ChunkStore
	keywords   keyword.KeywordIndex
	vectors    vector.Index
	embedder   embedding.Embedder
	vectorPath string
	writeMu    sync.Mutex
}

// NewLocal opens the SQLite store, Bleve index and vector index under cfg paths.
func NewLocal(cfg config.StorageConfig, embedder embedding.Embedder) (*Local, error) {
	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	kw, err := keyword.NewBleveIndex(cfg.BleveIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	vec, err := vector.NewMemoryIndex(embedder.Dimensions())
	if err != nil {
		_ = kw.Close()
		_ = store.Close()
		return nil, err
	}
	if err := vec.Load(cfg.VectorIndexPath); err != nil {
		_ = kw.Close()
		_ = store.Close()
		return nil, fmt.Errorf("load vector index: %w", err)
	}
	return &Local{
		store:      store,
		keywords:   kw,
		vectors:    vec,
		embedder:   embedder,
		vectorPath: cfg.VectorIndexPath,
	}, nil
}

// Name returns "local".
func (l *Local) Name() string { return BackendLocal }

// Query runs the keyword and vector searches concurrently and fuses them with RRF.
func (l *Local) Query(ctx context.Context, text string, n int) ([]models.ContextSnippet, error) {
	candidates := n * 4
	if candidates < minCandidates {
		candidates = minCandidates
	}

	var keywordIDs, vectorIDs []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := l.keywords.Search(gctx, text, candidates, nil)
		if err != nil {
			return fmt.Errorf("keyword search: %w", err)
		}
		for _, h := range hits {
			keywordIDs = append(keywordIDs, h.ID)
		}
		return nil
	})
	g.Go(func() error {
		emb, err := l.embedder.Embed(gctx, text)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		hits, err := l.vectors.Search(gctx, emb, candidates)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		for _, h := range hits {
			vectorIDs = append(vectorIDs, h.ID)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := fuseRRF(keywordIDs, vectorIDs)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	chunks, err := l.store.GetChunks(ctx, ranked)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	out := make([]models.ContextSnippet, 0, len(ranked))
	for _, id := range ranked {
		c, ok := chunks[id]
		if !ok {
			continue
		}
		out = append(out, models.ContextSnippet{
			ID:       c.ID,
			Content:  c.Content,
			Metadata: metadataWithReport(c.Metadata, c.ReportID),
		})
	}
	return out, nil
}

// Upsert writes chunks to SQLite, Bleve and the vector index, then persists the vectors.
func (l *Local) Upsert(ctx context.Context, chunks []*models.ReportChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		ids[i] = c.ID
	}
	embeddings, err := l.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.store.UpsertChunks(ctx, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	if err := l.keywords.Index(ctx, chunks); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	if err := l.vectors.Add(ctx, ids, embeddings); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	return l.vectors.Save(l.vectorPath)
}

// ChunkIDs returns the IDs of reportID's chunks in chunk order.
func (l *Local) ChunkIDs(ctx context.Context, reportID string) ([]string, error) {
	return l.store.GetChunkIDsByReport(ctx, reportID)
}

// DeleteChunks removes chunks by ID from all three stores.
func (l *Local) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.unindexLocked(ctx, ids); err != nil {
		return err
	}
	if err := l.store.DeleteChunks(ctx, ids); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return l.vectors.Save(l.vectorPath)
}

// DeleteReport removes every chunk of reportID from all three stores.
func (l *Local) DeleteReport(ctx context.Context, reportID string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	ids, err := l.store.GetChunkIDsByReport(ctx, reportID)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := l.unindexLocked(ctx, ids); err != nil {
		return err
	}
	if err := l.store.DeleteReport(ctx, reportID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return l.vectors.Save(l.vectorPath)
}

// unindexLocked drops ids from the keyword and vector indexes.
func (l *Local) unindexLocked(ctx context.Context, ids []string) error {
	if err := l.keywords.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete keyword docs: %w", err)
	}
	if err := l.vectors.Remove(ctx, ids); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

// Count returns report and chunk totals from SQLite.
func (l *Local) Count(ctx context.Context) (Counts, error) {
	reports, err := l.store.CountReports(ctx)
	if err != nil {
		return Counts{}, err
	}
	chunks, err := l.store.CountChunks(ctx)
	if err != nil {
		return Counts{}, err
	}
	return Counts{Reports: int(reports), Chunks: int(chunks)}, nil
}

// Close persists the vector index and closes every store.
func (l *Local) Close() error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	var firstErr error
	for _, fn := range []func() error{
		func() error { return l.vectors.Save(l.vectorPath) },
		l.vectors.Close,
		l.keywords.Close,
		l.store.Close,
		l.embedder.Close,
	} {
		if err := fn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
