package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/geoint/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func reportChunks(reportID string, contents ...string) []*models.ReportChunk {
	out := make([]*models.ReportChunk, len(contents))
	for i, c := range contents {
		out[i] = &models.ReportChunk{
			ID:         reportID + "-chunk-" + string(rune('0'+i)),
			ReportID:   reportID,
			Content:    c,
			ChunkIndex: i,
			Metadata:   map[string]any{"source_file": reportID + ".txt", "chunk_index": i},
		}
	}
	return out
}

func TestSQLiteStorage_UpsertAndGet(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if err := store.UpsertChunks(ctx, reportChunks("harbor", "first", "second")); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetChunks(ctx, []string{"harbor-chunk-1", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	c := got["harbor-chunk-1"]
	if c.Content != "second" || c.ReportID != "harbor" || c.ChunkIndex != 1 {
		t.Errorf("got %+v", c)
	}
	if c.Metadata["source_file"] != "harbor.txt" {
		t.Errorf("metadata: %+v", c.Metadata)
	}
	// JSON numbers decode as float64.
	if c.Metadata["chunk_index"] != float64(1) {
		t.Errorf("chunk_index metadata: %#v", c.Metadata["chunk_index"])
	}

	// Upsert replaces existing rows.
	replaced := reportChunks("harbor", "first v2")
	if err := store.UpsertChunks(ctx, replaced); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetChunks(ctx, []string{"harbor-chunk-0"})
	if got["harbor-chunk-0"].Content != "first v2" {
		t.Errorf("expected replaced content, got %q", got["harbor-chunk-0"].Content)
	}
}

func TestSQLiteStorage_EmptyInputs(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	if err := store.UpsertChunks(ctx, nil); err != nil {
		t.Errorf("empty upsert: %v", err)
	}
	got, err := store.GetChunks(ctx, nil)
	if err != nil || len(got) != 0 {
		t.Errorf("empty get: %v %v", got, err)
	}
}

func TestSQLiteStorage_DeleteReport(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	_ = store.UpsertChunks(ctx, reportChunks("harbor", "a", "b", "c"))
	_ = store.UpsertChunks(ctx, reportChunks("airfield", "x"))

	ids, err := store.GetChunkIDsByReport(ctx, "harbor")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != "harbor-chunk-0" || ids[2] != "harbor-chunk-2" {
		t.Errorf("ids: %v", ids)
	}

	if err := store.DeleteReport(ctx, "harbor"); err != nil {
		t.Fatal(err)
	}
	ids, _ = store.GetChunkIDsByReport(ctx, "harbor")
	if len(ids) != 0 {
		t.Errorf("expected no chunks after delete, got %v", ids)
	}
	ids, _ = store.GetChunkIDsByReport(ctx, "airfield")
	if len(ids) != 1 {
		t.Errorf("other report affected: %v", ids)
	}
}

func TestSQLiteStorage_DeleteChunks(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	_ = store.UpsertChunks(ctx, reportChunks("harbor", "a", "b", "c"))

	if err := store.DeleteChunks(ctx, []string{"harbor-chunk-1", "harbor-chunk-2", "unknown"}); err != nil {
		t.Fatal(err)
	}
	ids, _ := store.GetChunkIDsByReport(ctx, "harbor")
	if len(ids) != 1 || ids[0] != "harbor-chunk-0" {
		t.Errorf("ids after delete: %v", ids)
	}
	if err := store.DeleteChunks(ctx, nil); err != nil {
		t.Errorf("empty delete: %v", err)
	}
}

func TestSQLiteStorage_Counts(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	n, err := store.CountReports(ctx)
	if err != nil || n != 0 {
		t.Errorf("CountReports: %v, %d", err, n)
	}
	_ = store.UpsertChunks(ctx, reportChunks("harbor", "a", "b"))
	_ = store.UpsertChunks(ctx, reportChunks("airfield", "x"))

	n, _ = store.CountReports(ctx)
	if n != 2 {
		t.Errorf("expected 2 reports, got %d", n)
	}
	n, _ = store.CountChunks(ctx)
	if n != 3 {
		t.Errorf("expected 3 chunks, got %d", n)
	}
}
