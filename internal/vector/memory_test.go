package vector

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/hyperjump/assethub/internal/models"
)

func rec(id, asset string, typ models.AssetType, frame int, v ...float32) *models.VectorRecord {
	return &models.VectorRecord{ID: id, AssetID: asset, AssetType: typ, FrameIndex: frame, Embedding: v}
}

func TestMemoryIndex_InsertSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	records := []*models.VectorRecord{
		rec("a", "img1", models.AssetImage, 0, 1, 0, 0),
		rec("b", "vid1", models.AssetVideo, 2, 0.9, 0.1, 0),
		rec("c", "img2", models.AssetImage, 0, 0, 1, 0),
	}
	if err := idx.Insert(ctx, records); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "a" || hits[1].ID != "b" {
		t.Errorf("order: got %s, %s", hits[0].ID, hits[1].ID)
	}
	if hits[1].AssetID != "vid1" || hits[1].FrameIndex != 2 || hits[1].AssetType != models.AssetVideo {
		t.Errorf("metadata: got %+v", hits[1])
	}
	if math.Abs(hits[0].Score-1) > 1e-6 {
		t.Errorf("self score: got %f", hits[0].Score)
	}

	videos, _ := idx.Search(ctx, []float32{1, 0, 0}, 10, models.AssetVideo)
	if len(videos) != 1 || videos[0].ID != "b" {
		t.Errorf("type filter: got %v", videos)
	}

	if _, err := idx.Search(ctx, []float32{1, 0}, 1, ""); err == nil {
		t.Error("expected dimension mismatch error")
	}
	if err := idx.Insert(ctx, []*models.VectorRecord{rec("d", "x", models.AssetImage, 0, 1)}); err == nil {
		t.Error("expected dimension mismatch error on insert")
	}
}

func TestMemoryIndex_InsertReplaces(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Insert(ctx, []*models.VectorRecord{rec("x", "a1", models.AssetImage, 0, 1, 0)})
	_ = idx.Insert(ctx, []*models.VectorRecord{rec("x", "a1", models.AssetImage, 0, 0, 1)})
	if n, _ := idx.Size(ctx); n != 1 {
		t.Errorf("size after re-insert: got %d", n)
	}
	hits, _ := idx.Search(ctx, []float32{0, 1}, 1, "")
	if len(hits) != 1 || hits[0].Score < 0.99 {
		t.Errorf("replacement not visible: %v", hits)
	}
}

func TestMemoryIndex_Delete(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Insert(ctx, []*models.VectorRecord{
		rec("x", "v1", models.AssetVideo, 0, 1, 0),
		rec("y", "v1", models.AssetVideo, 1, 0, 1),
		rec("z", "i1", models.AssetImage, 0, 1, 1),
	})
	if err := idx.Delete(ctx, []string{"z", "unknown"}); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.Size(ctx); n != 2 {
		t.Errorf("expected size 2, got %d", n)
	}
	if err := idx.DeleteByAsset(ctx, "v1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.Size(ctx); n != 0 {
		t.Errorf("expected empty index, got %d", n)
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "vectors.bin")
	ctx := context.Background()

	idx, _ := NewMemoryIndex(2)
	_ = idx.Insert(ctx, []*models.VectorRecord{
		rec("a", "v1", models.AssetVideo, 3, 0.6, 0.8),
		rec("b", "i1", models.AssetImage, 0, 1, 0),
	})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if n, _ := loaded.Size(ctx); n != 2 {
		t.Fatalf("loaded size: got %d", n)
	}
	hits, _ := loaded.Search(ctx, []float32{0.6, 0.8}, 1, "")
	if hits[0].ID != "a" || hits[0].AssetID != "v1" || hits[0].FrameIndex != 3 {
		t.Errorf("loaded hit: got %+v", hits[0])
	}

	wrongDim, _ := NewMemoryIndex(3)
	if err := wrongDim.Load(path); err == nil {
		t.Error("expected dimension mismatch on load")
	}
	if err := loaded.Load(filepath.Join(dir, "missing.bin")); err != nil {
		t.Errorf("missing file should be ignored: %v", err)
	}
}

func TestMemoryIndex_Dirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	ctx := context.Background()
	idx, _ := NewMemoryIndex(2)
	if idx.Dirty() {
		t.Fatal("new index should be clean")
	}
	_ = idx.Insert(ctx, []*models.VectorRecord{rec("a", "i1", models.AssetImage, 0, 1, 0)})
	if !idx.Dirty() {
		t.Fatal("insert should mark the index dirty")
	}
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	if idx.Dirty() {
		t.Error("save should clear dirty")
	}
	_ = idx.Delete(ctx, []string{"missing"})
	if idx.Dirty() {
		t.Error("deleting an unknown id should not mark the index dirty")
	}
	_ = idx.DeleteByAsset(ctx, "i1")
	if !idx.Dirty() {
		t.Error("DeleteByAsset should mark the index dirty")
	}
	if err := idx.Load(path); err != nil {
		t.Fatal(err)
	}
	if idx.Dirty() {
		t.Error("load should clear dirty")
	}
}

func TestInnerProduct(t *testing.T) {
	if got := InnerProduct([]float32{1, 2}, []float32{3, 4}); got != 11 {
		t.Errorf("got %f, want 11", got)
	}
	if got := InnerProduct([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("mismatched lengths: got %f", got)
	}
}
