package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/config"
	"github.com/hyperjump/assethub/internal/embedding"
	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/objectstore"
	"github.com/hyperjump/assethub/internal/storage"
	"github.com/hyperjump/assethub/internal/vector"
)

var buckets = objectstore.Buckets{Assets: "assets", Thumbnails: "thumbnails", Frames: "frames"}

// stubIndex returns a fixed hit list and records the requested topK.
type stubIndex struct {
	vector.VectorIndex
	hits      []*vector.Hit
	gotTopK   int
	gotFilter models.AssetType
}

func (s *stubIndex) Search(_ context.Context, _ []float32, topK int, filter models.AssetType) ([]*vector.Hit, error) {
	s.gotTopK, s.gotFilter = topK, filter
	if topK < len(s.hits) {
		return s.hits[:topK], nil
	}
	return s.hits, nil
}

type fixture struct {
	catalog *storage.SQLiteStorage
	blobs   *objectstore.MemoryStore
	index   *stubIndex
	proc    *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { catalog.Close() })
	f := &fixture{
		catalog: catalog,
		blobs:   objectstore.NewMemoryStore("http://blobs.local"),
		index:   &stubIndex{},
	}
	f.proc = NewProcessor(catalog, f.blobs, embedding.NewMockEmbedder(8), f.index, buckets, config.SearchConfig{})
	return f
}

func (f *fixture) add(t *testing.T, id string, typ models.AssetType) {
	t.Helper()
	ctx := context.Background()
	a := &models.MediaAsset{
		ID:          id,
		Name:        "name-" + id,
		Type:        typ,
		MimeType:    "image/png",
		ContentHash: "hash-" + id,
		BlobKey:     objectstore.AssetKey(typ, id, "png", time.Now()),
	}
	if typ == models.AssetImage {
		a.ThumbnailKey = objectstore.ThumbnailKey(id)
		_ = f.blobs.Put(ctx, buckets.Thumbnails, a.ThumbnailKey, []byte("thumb"), "image/jpeg")
	}
	if err := f.catalog.CreateAsset(ctx, a); err != nil {
		t.Fatal(err)
	}
}

func hit(assetID string, typ models.AssetType, frame int, score float64) *vector.Hit {
	return &vector.Hit{ID: fmt.Sprintf("%s-%d", assetID, frame), AssetID: assetID, AssetType: typ, FrameIndex: frame, Score: score}
}

func TestSearch_DedupesAndStopsAtTopK(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		f.add(t, id, models.AssetImage)
	}
	f.add(t, "v", models.AssetVideo)
	_ = f.blobs.Put(context.Background(), buckets.Frames, objectstore.FrameKey("v", 4), []byte("jpg"), "image/jpeg")

	// Ten hits; three belong to video v.
	f.index.hits = []*vector.Hit{
		hit("v", models.AssetVideo, 4, 0.99),
		hit("a", models.AssetImage, 0, 0.95),
		hit("v", models.AssetVideo, 1, 0.94),
		hit("b", models.AssetImage, 0, 0.90),
		hit("v", models.AssetVideo, 7, 0.88),
		hit("c", models.AssetImage, 0, 0.85),
		hit("d", models.AssetImage, 0, 0.80),
		hit("e", models.AssetImage, 0, 0.75),
		hit("f", models.AssetImage, 0, 0.70),
		hit("g", models.AssetImage, 0, 0.65),
	}

	resp, err := f.proc.SearchText(context.Background(), "sunset", 5, "")
	if err != nil {
		t.Fatal(err)
	}
	if f.index.gotTopK != 10 || f.index.gotFilter != "" {
		t.Errorf("index asked for topK=%d filter=%q, want 10 and none", f.index.gotTopK, f.index.gotFilter)
	}
	want := []string{"v", "a", "b", "c", "d"}
	if len(resp.Results) != len(want) || resp.Total != len(want) {
		t.Fatalf("got %d results, want %d", len(resp.Results), len(want))
	}
	for i, r := range resp.Results {
		if r.AssetID != want[i] {
			t.Errorf("result %d = %s, want %s", i, r.AssetID, want[i])
		}
	}
	v := resp.Results[0]
	if v.FrameIndex != 4 || v.Score != 0.99 || v.Type != models.AssetVideo {
		t.Errorf("video result = %+v, want frame 4 score 0.99", v)
	}
	if !strings.Contains(v.ThumbnailURL, "/frames/frames/v/4.jpg") {
		t.Errorf("video preview = %q", v.ThumbnailURL)
	}
	if !strings.Contains(resp.Results[1].ThumbnailURL, "thumbnails/a.jpg") {
		t.Errorf("image preview = %q", resp.Results[1].ThumbnailURL)
	}
	if resp.Query != "sunset" {
		t.Errorf("query = %q", resp.Query)
	}
}

func TestSearch_TypeFilterAppliedAfterDedup(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a", models.AssetImage)
	f.add(t, "v", models.AssetVideo)
	f.add(t, "w", models.AssetVideo)
	f.index.hits = []*vector.Hit{
		hit("a", models.AssetImage, 0, 0.9),
		hit("v", models.AssetVideo, 2, 0.8),
		hit("v", models.AssetVideo, 0, 0.7),
		hit("w", models.AssetVideo, 1, 0.6),
	}

	resp, err := f.proc.SearchText(context.Background(), "x", 10, models.AssetVideo)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 || resp.Results[0].AssetID != "v" || resp.Results[1].AssetID != "w" {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.Results[0].FrameIndex != 2 {
		t.Errorf("frame = %d, want 2", resp.Results[0].FrameIndex)
	}
	// No frame blob was uploaded, so there is nothing to presign.
	if resp.Results[0].ThumbnailURL != "" {
		t.Errorf("unexpected preview %q", resp.Results[0].ThumbnailURL)
	}
}

func TestSearch_SkipsMissingAndDeleted(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a", models.AssetImage)
	f.add(t, "b", models.AssetImage)
	if err := f.catalog.SoftDeleteAsset(context.Background(), "b"); err != nil {
		t.Fatal(err)
	}
	f.index.hits = []*vector.Hit{
		hit("ghost", models.AssetImage, 0, 0.99),
		hit("b", models.AssetImage, 0, 0.9),
		hit("a", models.AssetImage, 0, 0.8),
	}

	resp, err := f.proc.SearchImage(context.Background(), []byte("query"), 3, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].AssetID != "a" {
		t.Fatalf("results = %+v", resp.Results)
	}
}

func TestSearch_TopKDefaultsAndClamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.proc.SearchText(ctx, "x", 0, ""); err != nil {
		t.Fatal(err)
	}
	if f.index.gotTopK != 40 {
		t.Errorf("default over-fetch = %d, want 40", f.index.gotTopK)
	}
	if _, err := f.proc.SearchText(ctx, "x", 5000, ""); err != nil {
		t.Fatal(err)
	}
	if f.index.gotTopK != 200 {
		t.Errorf("clamped over-fetch = %d, want 200", f.index.gotTopK)
	}
}

func TestSearch_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []*models.SearchQuery{
		{},
		{Text: "x", Image: []byte("y")},
		{Text: "x", AssetType: "document"},
	}
	for _, q := range cases {
		if _, err := f.proc.Search(ctx, q); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("query %+v: err = %v, want validation", q, err)
		}
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]*vector.Hit{
		hit("a", models.AssetVideo, 3, 0.9),
		hit("a", models.AssetVideo, 0, 0.8),
		hit("b", models.AssetImage, 0, 0.7),
	})
	if len(got) != 2 || got[0].FrameIndex != 3 || got[1].AssetID != "b" {
		t.Errorf("dedupe = %+v", got)
	}
}
