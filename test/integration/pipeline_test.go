// Package integration runs the ingest, vectorization and query stages together on
// in-process backends.
package integration

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"testing"
	"time"

	"github.com/hyperjump/assethub/internal/config"
	"github.com/hyperjump/assethub/internal/embedding"
	"github.com/hyperjump/assethub/internal/ingest"
	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/objectstore"
	"github.com/hyperjump/assethub/internal/queue"
	"github.com/hyperjump/assethub/internal/search"
	"github.com/hyperjump/assethub/internal/storage"
	"github.com/hyperjump/assethub/internal/vector"
	"github.com/hyperjump/assethub/internal/video"
	"github.com/hyperjump/assethub/internal/worker"
)

const dims = 32

// syntheticVideo is a FrameSource of solid frames whose color depends on the frame index.
type syntheticVideo struct {
	info video.Info
	pos  int
}

func (v *syntheticVideo) Info() video.Info { return v.info }

func (v *syntheticVideo) Next() (image.Image, error) {
	if v.pos >= v.info.FrameCount {
		return nil, io.EOF
	}
	img := solid(uint8(v.pos*7), uint8(255-v.pos), 40, 32)
	v.pos++
	return img, nil
}

func (v *syntheticVideo) Seek(frame int) error {
	v.pos = frame
	return nil
}

func (v *syntheticVideo) Close() error { return nil }

func solid(r, g, b uint8, size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{r, g, b, 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, r, g, b uint8) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(r, g, b, 64)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type pipeline struct {
	gate    *ingest.Gate
	worker  *worker.Worker
	proc    *search.Processor
	catalog *storage.SQLiteStorage
	blobs   *objectstore.MemoryStore
	queue   *queue.MemoryQueue
	buckets objectstore.Buckets
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	catalog, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = catalog.Close() })
	index, err := vector.NewMemoryIndex(dims)
	if err != nil {
		t.Fatal(err)
	}
	blobs := objectstore.NewMemoryStore("http://blobs.test")
	q := queue.NewMemoryQueue()
	t.Cleanup(func() { _ = q.Close() })
	embedder := embedding.NewMockEmbedder(dims)
	buckets := objectstore.Buckets{Assets: "assets", Thumbnails: "thumbnails", Frames: "frames"}

	// 11s at 30fps with a 2s interval yields frames 0, 60, ..., 300.
	sampler := video.NewSampler(video.OpenerFunc(func(ctx context.Context, path string) (video.FrameSource, error) {
		return &syntheticVideo{info: video.Info{FPS: 30, FrameCount: 330, Width: 32, Height: 32, DurationMs: 11000}}, nil
	}), video.Policy{Interval: 2, MinFrames: 5, MaxFrames: 50})

	return &pipeline{
		gate: ingest.NewGate(catalog, blobs, q, buckets),
		worker: worker.New(worker.Deps{
			Catalog: catalog, Blobs: blobs, Embedder: embedder, Index: index,
			Sampler: sampler, Queue: q, Buckets: buckets,
		}, worker.Options{Workers: 1, ScratchDir: t.TempDir()}),
		proc:    search.NewProcessor(catalog, blobs, embedder, index, buckets, config.SearchConfig{}),
		catalog: catalog,
		blobs:   blobs,
		queue:   q,
		buckets: buckets,
	}
}

// drain processes every queued job synchronously.
func (p *pipeline) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for {
		job, err := p.queue.Dequeue(ctx, 10*time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		if job == nil {
			return
		}
		if out := p.worker.Process(ctx, job); out != worker.OutcomeCompleted {
			t.Fatalf("job for %s ended %s", job.AssetID, out)
		}
	}
}

func TestPipeline_ImageRoundTrip(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	red := pngBytes(t, 220, 20, 20)
	target, err := p.gate.Ingest(ctx, ingest.Upload{Data: red, MimeType: "image/png", Name: "red.png"})
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range [][3]uint8{{20, 220, 20}, {20, 20, 220}, {200, 200, 0}} {
		if _, err := p.gate.Ingest(ctx, ingest.Upload{Data: pngBytes(t, c[0], c[1], c[2]), MimeType: "image/png"}); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}
	p.drain(t)

	got, err := p.catalog.GetAsset(ctx, target.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.VectorStatus != models.StatusCompleted || got.VectorID == "" {
		t.Fatalf("asset = %+v, want completed with a vector id", got)
	}

	resp, err := p.proc.SearchImage(ctx, red, 3, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(resp.Results))
	}
	top := resp.Results[0]
	if top.AssetID != target.ID || math.Abs(top.Score-1) > 1e-4 {
		t.Errorf("top = %+v, want %s with score ~1", top, target.ID)
	}
	if top.ThumbnailURL == "" {
		t.Error("image result should carry a thumbnail URL")
	}
}

func TestPipeline_VideoKeyframesAreSearchable(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	clip, err := p.gate.Ingest(ctx, ingest.Upload{Data: []byte("not really an mp4"), MimeType: "video/mp4", Name: "clip.mp4"})
	if err != nil {
		t.Fatal(err)
	}
	p.drain(t)

	frames, err := p.catalog.ListFrames(ctx, clip.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 6 {
		t.Fatalf("frames = %d, want 6", len(frames))
	}
	for i, f := range frames {
		if f.FrameIndex != i || f.TimestampMs != int64(i)*2000 {
			t.Errorf("frame %d = index %d at %dms", i, f.FrameIndex, f.TimestampMs)
		}
	}

	third, err := p.blobs.Get(ctx, p.buckets.Frames, objectstore.FrameKey(clip.ID, 2))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.proc.SearchImage(ctx, third, 5, models.AssetVideo)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want the video once", len(resp.Results))
	}
	if r := resp.Results[0]; r.AssetID != clip.ID || r.FrameIndex != 2 || math.Abs(r.Score-1) > 1e-4 {
		t.Errorf("result = %+v, want frame 2 of %s", r, clip.ID)
	}

	asset, _ := p.catalog.GetAsset(ctx, clip.ID)
	if asset.VectorID != frames[0].VectorID {
		t.Errorf("asset vector id %q should be the first frame's %q", asset.VectorID, frames[0].VectorID)
	}
}

func TestPipeline_DuplicateUploadIsRejected(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	data := pngBytes(t, 1, 2, 3)
	if _, err := p.gate.Ingest(ctx, ingest.Upload{Data: data, MimeType: "image/png"}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.gate.Ingest(ctx, ingest.Upload{Data: data, MimeType: "image/png"}); err == nil {
		t.Fatal("expected duplicate error")
	}
	if n, _ := p.queue.Len(ctx); n != 1 {
		t.Errorf("queue length = %d, want 1", n)
	}
}
