package vector

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	ids := []string{"a", "b", "c"}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" {
		t.Errorf("top result should be a, got %s", results[0].ID)
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Remove(ctx, []string{"x"}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Errorf("expected size 1, got %d", idx.Size())
	}
}

func TestMemoryIndex_AddReplacesExistingID(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"r1-chunk-0"}, [][]float32{{1, 0}})
	_ = idx.Add(ctx, []string{"r1-chunk-0"}, [][]float32{{0, 1}})
	if idx.Size() != 1 {
		t.Fatalf("expected size 1 after re-add, got %d", idx.Size())
	}
	results, _ := idx.Search(ctx, []float32{0, 1}, 1)
	if len(results) != 1 || results[0].Score < 0.99 {
		t.Errorf("vector not replaced: %+v", results)
	}
}

func TestMemoryIndex_RemoveThenReAdd(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"a", "b", "c"}, [][]float32{{1, 0}, {0, 1}, {1, 1}})
	_ = idx.Remove(ctx, []string{"a"})
	_ = idx.Add(ctx, []string{"c"}, [][]float32{{1, 0}})
	if idx.Size() != 2 {
		t.Errorf("expected size 2, got %d", idx.Size())
	}
	results, _ := idx.Search(ctx, []float32{1, 0}, 1)
	if results[0].ID != "c" {
		t.Errorf("expected c on top, got %s", results[0].ID)
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vectors.bin")
	ctx := context.Background()
	idx, _ := NewMemoryIndex(3)
	_ = idx.Add(ctx, []string{"report-chunk-0", "report-chunk-1"}, [][]float32{{1, 0, 0}, {0, 0.6, 0.8}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(3)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded size %d", loaded.Size())
	}
	results, _ := loaded.Search(ctx, []float32{0, 0.6, 0.8}, 1)
	if results[0].ID != "report-chunk-1" {
		t.Errorf("got %s", results[0].ID)
	}

	wrongDim, _ := NewMemoryIndex(4)
	if err := wrongDim.Load(path); err == nil {
		t.Error("expected dimension mismatch error")
	}
	missing, _ := NewMemoryIndex(3)
	if err := missing.Load(filepath.Join(t.TempDir(), "absent.bin")); err != nil {
		t.Errorf("missing file should be ignored: %v", err)
	}
}

func TestMemoryIndex_LoadRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	if err := os.WriteFile(path, []byte("not an index at all"), 0644); err != nil {
		t.Fatal(err)
	}
	idx, _ := NewMemoryIndex(3)
	if err := idx.Load(path); err == nil {
		t.Error("expected header error")
	}
}

func TestMemoryIndex_SearchTiesOrderByID(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"zulu", "alpha", "mike"}, [][]float32{{1, 0}, {1, 0}, {1, 0}})
	results, _ := idx.Search(ctx, []float32{1, 0}, 3)
	for i, want := range []string{"alpha", "mike", "zulu"} {
		if results[i].ID != want {
			t.Errorf("result %d = %s, want %s", i, results[i].ID, want)
		}
	}
}

func TestMemoryIndex_DimensionChecks(t *testing.T) {
	if _, err := NewMemoryIndex(0); err == nil {
		t.Error("expected error for zero dimensions")
	}
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	if err := idx.Add(ctx, []string{"a"}, [][]float32{{1, 2, 3}}); err == nil {
		t.Error("expected dimension mismatch on add")
	}
	if _, err := idx.Search(ctx, []float32{1}, 1); err == nil {
		t.Error("expected dimension mismatch on search")
	}
	if err := idx.Add(ctx, []string{"a", "b"}, [][]float32{{1, 2}}); err == nil {
		t.Error("expected length mismatch")
	}
}

func TestInnerProduct(t *testing.T) {
	if InnerProduct([]float32{1, 2}, []float32{3, 4}) != 11 {
		t.Error("inner product")
	}
	if InnerProduct([]float32{1}, []float32{1, 2}) != 0 {
		t.Error("length mismatch should be 0")
	}
	if L2Norm([]float32{3, 4}) != 5 {
		t.Error("l2 norm")
	}
}

func TestNormalize(t *testing.T) {
	x := []float32{3, 4}
	if n := Normalize(x); n != 5 {
		t.Errorf("Normalize returned %v, want 5", n)
	}
	if math.Abs(float64(x[0])-0.6) > 1e-6 || math.Abs(float64(x[1])-0.8) > 1e-6 {
		t.Errorf("got %v", x)
	}
	zero := []float32{0, 0}
	if n := Normalize(zero); n != 0 {
		t.Errorf("zero vector norm = %v", n)
	}
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}
