package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/assethub/internal/config"
	"github.com/hyperjump/assethub/internal/embedding"
	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/objectstore"
	"github.com/hyperjump/assethub/internal/search"
	"github.com/hyperjump/assethub/internal/storage"
	"github.com/hyperjump/assethub/internal/vector"
)

const benchDims = 512

func filledIndex(b *testing.B, n int) *vector.MemoryIndex {
	b.Helper()
	idx, err := vector.NewMemoryIndex(benchDims)
	if err != nil {
		b.Fatal(err)
	}
	e := embedding.NewMockEmbedder(benchDims)
	ctx := context.Background()
	records := make([]*models.VectorRecord, n)
	for i := range records {
		vec, _ := e.EmbedText(ctx, fmt.Sprintf("asset %d", i))
		records[i] = &models.VectorRecord{
			ID: fmt.Sprintf("v%d", i), AssetID: fmt.Sprintf("a%d", i/5),
			AssetType: models.AssetVideo, FrameIndex: i % 5, Embedding: vec,
		}
	}
	if err := idx.Insert(ctx, records); err != nil {
		b.Fatal(err)
	}
	return idx
}

func BenchmarkMemoryIndexSearch(b *testing.B) {
	idx := filledIndex(b, 10000)
	query, _ := embedding.NewMockEmbedder(benchDims).EmbedText(context.Background(), "query")
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 40, "")
	}
}

func BenchmarkMockEmbedder_EmbedText(b *testing.B) {
	e := embedding.NewMockEmbedder(benchDims)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.EmbedText(ctx, "benchmark query text for embedding")
	}
}

func BenchmarkCachedEmbedder_EmbedText(b *testing.B) {
	e := embedding.NewCachedEmbedder(embedding.NewMockEmbedder(benchDims), 100)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.EmbedText(ctx, "benchmark query text for embedding")
	}
}

func BenchmarkProcessorSearchText(b *testing.B) {
	catalog, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		b.Fatal(err)
	}
	defer catalog.Close()
	ctx := context.Background()
	for i := 0; i < 2000; i++ {
		if err := catalog.CreateAsset(ctx, &models.MediaAsset{
			ID: fmt.Sprintf("a%d", i), Name: fmt.Sprintf("clip-%d.mp4", i), Type: models.AssetVideo,
			MimeType: "video/mp4", ContentHash: fmt.Sprintf("h%d", i), BlobKey: fmt.Sprintf("video/%d.mp4", i),
			VectorStatus: models.StatusCompleted,
		}); err != nil {
			b.Fatal(err)
		}
	}
	proc := search.NewProcessor(catalog, objectstore.NewMemoryStore("http://bench"),
		embedding.NewMockEmbedder(benchDims), filledIndex(b, 10000),
		objectstore.Buckets{Assets: "assets", Thumbnails: "thumbnails", Frames: "frames"}, config.SearchConfig{})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := proc.SearchText(ctx, "a dog on the beach", 20, ""); err != nil {
			b.Fatal(err)
		}
	}
}
