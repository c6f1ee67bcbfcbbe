package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/hyperjump/geoint/internal/vector"
)

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "Two cargo ships moored at the northern pier")
	b, _ := e.Embed(ctx, "cargo ships at pier")
	c, _ := e.Embed(ctx, "airfield runway construction")
	again, _ := e.Embed(ctx, "Two cargo ships moored at the northern pier")

	if len(a) != 64 {
		t.Fatalf("len=%d", len(a))
	}
	if math.Abs(vector.InnerProduct(a, a)-1) > 1e-5 {
		t.Errorf("expected unit vector, |a|^2=%v", vector.InnerProduct(a, a))
	}
	if vector.InnerProduct(a, again) < 0.9999 {
		t.Error("embedding should be deterministic")
	}
	if vector.InnerProduct(a, b) <= vector.InnerProduct(a, c) {
		t.Errorf("overlapping text should score higher: %v vs %v", vector.InnerProduct(a, b), vector.InnerProduct(a, c))
	}

	empty, _ := e.Embed(ctx, "")
	for _, v := range empty {
		if v != 0 {
			t.Fatal("empty text should embed to the zero vector")
		}
	}
	if NewHashEmbedder(0).Dimensions() != 384 {
		t.Error("default dimensions")
	}
}
