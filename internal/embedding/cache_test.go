package embedding

import (
	"context"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	// touching a makes b the eviction candidate
	c.Get("a")
	c.Set("c", []float32{6})
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain")
	}
	if c.Len() != 2 {
		t.Errorf("Len: got %d", c.Len())
	}
}

type countingEmbedder struct {
	*MockEmbedder
	images, texts int
}

func (c *countingEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	c.images++
	return c.MockEmbedder.EmbedImage(ctx, data)
}

func (c *countingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	c.texts++
	return c.MockEmbedder.EmbedText(ctx, text)
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	e := NewCachedEmbedder(inner, 10)

	for i := 0; i < 3; i++ {
		if _, err := e.EmbedImage(ctx, []byte("same bytes")); err != nil {
			t.Fatal(err)
		}
		if _, err := e.EmbedText(ctx, "a red car"); err != nil {
			t.Fatal(err)
		}
	}
	if inner.images != 1 || inner.texts != 1 {
		t.Errorf("inner calls: images=%d texts=%d, want 1 each", inner.images, inner.texts)
	}

	vecs, err := e.EmbedImages(ctx, [][]byte{[]byte("same bytes"), []byte("other")})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 || inner.images != 2 {
		t.Errorf("batch: got %d vectors, %d inner image calls", len(vecs), inner.images)
	}

	if NewCachedEmbedder(inner, 0) != Embedder(inner) {
		t.Error("capacity 0 should return the inner embedder")
	}
}
