package embedding

import (
	"context"
	"math"
)

// MockEmbedder is a deterministic embedder for tests. Identical inputs always map to the
// same unit vector, so an image queried against itself scores 1.0.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

func (e *MockEmbedder) vector(seed int) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(seed*(i+1)))*0.1 + 0.01)
	}
	return finalize(emb)
}

// EmbedImage returns a deterministic embedding based on the image bytes.
func (e *MockEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(HashString("img:" + string(data)))
}

// EmbedText returns a deterministic embedding based on the text.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(HashString("txt:" + text))
}

// EmbedImages calls EmbedImage for each image.
func (e *MockEmbedder) EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error) {
	return embedEach(ctx, e, images)
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
