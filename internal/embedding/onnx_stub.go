//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

// ClipEmbedder stub type when built without CGO (see onnx.go for real implementation).
type ClipEmbedder struct{}

// NewClipEmbedder returns an error when built without CGO (ONNX not available).
func NewClipEmbedder(_ ClipConfig) (*ClipEmbedder, error) {
	return nil, errors.New("CLIP embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

func (e *ClipEmbedder) EmbedImage(context.Context, []byte) ([]float32, error) {
	return nil, errors.New("CLIP embedder not available")
}

func (e *ClipEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return nil, errors.New("CLIP embedder not available")
}

func (e *ClipEmbedder) EmbedImages(context.Context, [][]byte) ([][]float32, error) {
	return nil, errors.New("CLIP embedder not available")
}

func (e *ClipEmbedder) Dimensions() int { return 0 }

func (e *ClipEmbedder) Close() error { return nil }
