//go:build !cgo
// +build !cgo

package embedding

import (
	"errors"

	"github.com/hyperjump/geoint/internal/config"
)

// ONNXEmbedder is unavailable without CGO; New falls back to HashEmbedder.
type ONNXEmbedder struct {
	Embedder
}

// NewONNXEmbedder always fails when built without CGO.
func NewONNXEmbedder(config.EmbeddingConfig) (*ONNXEmbedder, error) {
	return nil, errors.New("ONNX embedder requires CGO_ENABLED=1 and onnxruntime")
}
