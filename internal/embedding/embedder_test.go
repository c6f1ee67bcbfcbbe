package embedding

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/geoint/internal/config"
)

func TestNew_FallsBackToHash(t *testing.T) {
	cfg := config.EmbeddingConfig{ModelPath: "/nonexistent/model.onnx", Dimensions: 32, CacheSize: 4}
	e := New(cfg, zap.NewNop())
	defer e.Close()
	if e.Dimensions() != 32 {
		t.Fatalf("Dimensions=%d", e.Dimensions())
	}
	if _, ok := e.(*CachedEmbedder); !ok {
		t.Fatalf("expected *CachedEmbedder, got %T", e)
	}
	v, err := e.Embed(context.Background(), "armored column")
	if err != nil || len(v) != 32 {
		t.Fatalf("Embed: %v len=%d", err, len(v))
	}
}
