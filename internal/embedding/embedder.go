// Package embedding maps images and text into a shared, L2-normalized vector space.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/pkg/utils"
)

// Embedder produces vector embeddings for images and text in the same space,
// so that a text query can retrieve images. Every returned vector has unit L2 norm.
type Embedder interface {
	EmbedImage(ctx context.Context, data []byte) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	// EmbedImages returns one vector per input, in input order.
	EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error)
	Dimensions() int
	Close() error
}

// finalize normalizes a raw model output in place. A zero vector means the model
// produced nothing usable for this input.
func finalize(vec []float32) ([]float32, error) {
	if !utils.NormalizeL2(vec) {
		return nil, apperrors.Permanent(fmt.Errorf("model returned a zero vector"))
	}
	return vec, nil
}

// embedEach implements EmbedImages on top of EmbedImage.
func embedEach(ctx context.Context, e Embedder, images [][]byte) ([][]float32, error) {
	out := make([][]float32, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.EmbedImage(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}
