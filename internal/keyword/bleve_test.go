package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/geoint/internal/models"
)

func testChunks() []*models.ReportChunk {
	return []*models.ReportChunk{
		{
			ID: "harbor-chunk-0", ReportID: "harbor", ChunkIndex: 0,
			Content:  "Two frigates moored at pier 4. Increased activity near the dry dock.",
			Metadata: map[string]any{"source_file": "harbor.txt"},
		},
		{
			ID: "airfield-chunk-0", ReportID: "airfield", ChunkIndex: 0,
			Content:  "Runway resurfacing continues. Three transport aircraft on the apron.",
			Metadata: map[string]any{"source_file": "airfield.txt"},
		},
	}
}

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "bleve"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_SearchFindsContent(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.Index(ctx, testChunks()); err != nil {
		t.Fatalf("Index: %v", err)
	}

	results, err := idx.Search(ctx, "frigates", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "harbor-chunk-0" {
		t.Fatalf("expected harbor chunk, got %+v", results)
	}

	// Standard analyzer lowercases, so "RUNWAY" matches "Runway".
	results, err = idx.Search(ctx, "RUNWAY", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "airfield-chunk-0" {
		t.Fatalf("expected airfield chunk, got %+v", results)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.Index(ctx, testChunks()); err != nil {
		t.Fatal(err)
	}
	exact, _ := idx.Search(ctx, "frigatez", 10, nil)
	if len(exact) != 0 {
		t.Errorf("exact search should miss a typo, got %+v", exact)
	}
	fuzzy, err := idx.Search(ctx, "frigatez", 10, &SearchOptions{Fuzziness: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(fuzzy) == 0 || fuzzy[0].ID != "harbor-chunk-0" {
		t.Errorf("fuzzy search should find harbor chunk, got %+v", fuzzy)
	}
}

func TestBleveIndex_DeleteAndCount(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.Index(ctx, testChunks()); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.DocCount(); n != 2 {
		t.Fatalf("DocCount=%d", n)
	}
	if err := idx.Delete(ctx, []string{"harbor-chunk-0"}); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.DocCount(); n != 1 {
		t.Errorf("DocCount after delete=%d", n)
	}
	results, _ := idx.Search(ctx, "frigates", 10, nil)
	if len(results) != 0 {
		t.Errorf("deleted chunk still found: %+v", results)
	}
	if err := idx.Delete(ctx, nil); err != nil {
		t.Errorf("empty delete: %v", err)
	}
}

func TestBleveIndex_ReopenExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleve")
	ctx := context.Background()
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Index(ctx, testChunks()); err != nil {
		t.Fatal(err)
	}
	_ = idx.Close()

	reopened, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if n, _ := reopened.DocCount(); n != 2 {
		t.Errorf("DocCount after reopen=%d", n)
	}
}

func TestBleveIndex_EmptyQuery(t *testing.T) {
	idx := newTestIndex(t)
	results, err := idx.Search(context.Background(), "   ", 10, nil)
	if err != nil || results != nil {
		t.Errorf("blank query: %v %v", results, err)
	}
}
