package keyword

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/assethub/internal/models"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "names.bleve"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_SearchFindsName(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	asset := &models.MediaAsset{ID: "a1", Name: "Sunset over Lisbon.jpg", Type: models.AssetImage}
	if err := idx.Index(ctx, asset); err != nil {
		t.Fatalf("Index: %v", err)
	}

	results, err := idx.Search(ctx, "lisbon", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a1" {
		t.Fatalf("got %v, want a1", results)
	}
}

func TestBleveIndex_NameBoost(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_ = idx.Index(ctx, &models.MediaAsset{ID: "desc", Name: "clip.mp4", Description: "harbor at dawn", Type: models.AssetVideo})
	_ = idx.Index(ctx, &models.MediaAsset{ID: "name", Name: "harbor.mp4", Description: "boats", Type: models.AssetVideo})

	results, err := idx.Search(ctx, "harbor", 10, &SearchOptions{NameBoost: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].ID != "name" {
		t.Errorf("name match should rank first, got %v", results)
	}
}

func TestBleveIndex_TypeFilter(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_ = idx.Index(ctx, &models.MediaAsset{ID: "img", Name: "beach day", Type: models.AssetImage})
	_ = idx.Index(ctx, &models.MediaAsset{ID: "vid", Name: "beach walk", Type: models.AssetVideo})

	results, err := idx.Search(ctx, "beach", 10, &SearchOptions{Type: models.AssetVideo})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "vid" {
		t.Errorf("got %v, want only vid", results)
	}
}

func TestBleveIndex_FuzzyRetry(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, &models.MediaAsset{ID: "a1", Name: "mountain panorama", Type: models.AssetImage})

	exact, _ := idx.Search(ctx, "mountian", 10, nil)
	if len(exact) != 0 {
		t.Fatalf("typo should not match without fuzziness, got %v", exact)
	}
	fuzzy, err := idx.Search(ctx, "mountian", 10, &SearchOptions{Fuzziness: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(fuzzy) != 1 || fuzzy[0].ID != "a1" {
		t.Errorf("fuzzy retry: got %v", fuzzy)
	}
}

func TestBleveIndex_Delete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, &models.MediaAsset{ID: "a1", Name: "onlyinasset1"})

	if err := idx.Delete(ctx, "a1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	results, err := idx.Search(ctx, "onlyinasset1", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results after delete, got %d", len(results))
	}
	if n, _ := idx.DocCount(); n != 0 {
		t.Errorf("DocCount=%d", n)
	}
}

func TestBleveIndex_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "names.bleve")
	ctx := context.Background()

	idx1, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = idx1.Index(ctx, &models.MediaAsset{ID: "a1", Name: "persisted"})
	if err := idx1.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("index path should exist: %v", err)
	}

	idx2, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer idx2.Close()
	results, _ := idx2.Search(ctx, "persisted", 10, nil)
	if len(results) != 1 {
		t.Errorf("reopened index lost documents: %v", results)
	}
}

func TestBleveIndex_InMemory(t *testing.T) {
	idx, err := NewBleveIndex(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	if results, err := idx.Search(context.Background(), "   ", 10, nil); err != nil || results != nil {
		t.Errorf("blank query: %v, %v", results, err)
	}
}
