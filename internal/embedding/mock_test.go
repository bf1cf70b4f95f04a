package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/vector"
	"github.com/hyperjump/assethub/pkg/utils"
)

func TestMockEmbedder_unitNorm(t *testing.T) {
	ctx := context.Background()
	e := NewMockEmbedder(512)

	inputs := [][]byte{[]byte("a"), []byte("frame bytes"), make([]byte, 1024)}
	vecs, err := e.EmbedImages(ctx, inputs)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vecs {
		if len(v) != 512 {
			t.Errorf("vector %d: len %d", i, len(v))
		}
		if !utils.IsUnit(v, 1e-5) {
			t.Errorf("vector %d: norm %f", i, utils.L2Norm(v))
		}
	}

	txt, err := e.EmbedText(ctx, "sunset over the sea")
	if err != nil {
		t.Fatal(err)
	}
	if !utils.IsUnit(txt, 1e-5) {
		t.Errorf("text norm %f", utils.L2Norm(txt))
	}
}

func TestMockEmbedder_deterministic(t *testing.T) {
	ctx := context.Background()
	e := NewMockEmbedder(64)
	a, _ := e.EmbedImage(ctx, []byte("x"))
	b, _ := e.EmbedImage(ctx, []byte("x"))
	c, _ := e.EmbedImage(ctx, []byte("y"))
	if s := vector.InnerProduct(a, b); s < 0.9999 {
		t.Errorf("same input similarity: got %f", s)
	}
	if s := vector.InnerProduct(a, c); s > 0.99 {
		t.Errorf("different inputs should differ, similarity %f", s)
	}
}

func TestMockEmbedder_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockEmbedder(8).EmbedText(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestFinalize_zeroVector(t *testing.T) {
	if _, err := finalize(make([]float32, 4)); !errors.Is(err, apperrors.ErrPermanent) {
		t.Errorf("got %v, want permanent error", err)
	}
}
