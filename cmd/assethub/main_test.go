package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/assethub/internal/config"
	"github.com/hyperjump/assethub/internal/embedding"
	"github.com/hyperjump/assethub/internal/ingest"
	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/objectstore"
	"github.com/hyperjump/assethub/internal/worker"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"red car", "-top-k", "5"},
			expected: []string{"-top-k", "5", "red car"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-top-k", "5", "red car"},
			expected: []string{"-top-k", "5", "red car"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"red car"},
			expected: []string{"red car"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"dog", "on", "beach", "-type", "video"},
			expected: []string{"-type", "video", "dog", "on", "beach"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"sunset"}, "sunset"},
		{"multiple words", []string{"red", "car"}, "red car"},
		{"single quoted phrase", []string{"red car"}, "red car"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS the cwd can be /private/var/... while t.TempDir() is /var/...
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.DatabasePath = filepath.Join(dir, "catalog.db")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "names.bleve")
	cfg.Storage.MemoryIndexPath = filepath.Join(dir, "vectors.bin")
	cfg.ObjectStore.Type = "memory"
	cfg.Embedding.Type = "mock"
	cfg.Embedding.Dimensions = 16
	config.ApplyDefaults(cfg)
	return cfg
}

func TestInitializeComponents_InMemoryStack(t *testing.T) {
	cfg := testConfig(t)
	c, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if c.Gate == nil || c.Assets == nil || c.Search == nil || c.Worker == nil {
		t.Fatal("services not wired")
	}
	if _, ok := c.Blobs.(*objectstore.MemoryStore); !ok {
		t.Errorf("blobs = %T, want *objectstore.MemoryStore", c.Blobs)
	}
	if got := c.Embedder.Dimensions(); got != 16 {
		t.Errorf("embedder dimensions = %d, want 16", got)
	}
	if c.Buckets.Assets != "assets" || c.Buckets.Thumbnails != "thumbnails" || c.Buckets.Frames != "frames" {
		t.Errorf("buckets = %+v", c.Buckets)
	}
}

func TestComponentsClose_SavesVectorSnapshot(t *testing.T) {
	cfg := testConfig(t)
	c, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	vec, _ := embedding.NewMockEmbedder(16).EmbedText(context.Background(), "x")
	if err := c.VectorIndex.Insert(context.Background(), []*models.VectorRecord{
		{ID: "v1", AssetID: "a1", AssetType: models.AssetImage, Embedding: vec},
	}); err != nil {
		t.Fatal(err)
	}
	c.Close()

	if _, err := os.Stat(cfg.Storage.MemoryIndexPath); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	reopened, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if n, _ := reopened.VectorIndex.Size(context.Background()); n != 1 {
		t.Errorf("reloaded index size = %d, want 1", n)
	}
}

func TestComponentsClose_ReadOnlyProcessKeepsSnapshot(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	vec, _ := embedding.NewMockEmbedder(16).EmbedText(ctx, "x")

	reader, err := initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	// Same snapshot file, separate catalog and name index like a second process would have.
	writerCfg := *cfg
	dir := t.TempDir()
	writerCfg.Storage.DatabasePath = filepath.Join(dir, "catalog.db")
	writerCfg.Storage.BleveIndexPath = filepath.Join(dir, "names.bleve")
	writer, err := initializeComponents(ctx, &writerCfg, zap.NewNop())
	if err != nil {
		reader.Close()
		t.Fatal(err)
	}
	if err := writer.VectorIndex.Insert(ctx, []*models.VectorRecord{
		{ID: "v1", AssetID: "a1", AssetType: models.AssetImage, Embedding: vec},
	}); err != nil {
		t.Fatal(err)
	}
	writer.Close()
	// The reader exits last; its empty index must not replace the writer's snapshot.
	reader.Close()

	reopened, err := initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if n, _ := reopened.VectorIndex.Size(ctx); n != 1 {
		t.Errorf("snapshot size = %d, want 1", n)
	}
}

func TestDrainReady_VectorizesIngestedImage(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	c, err := initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 200, A: 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	asset, err := c.Gate.Ingest(ctx, ingest.Upload{Data: buf.Bytes(), MimeType: "image/png", Name: "red.png"})
	if err != nil {
		t.Fatal(err)
	}

	counts := c.drainReady(ctx)
	if counts[worker.OutcomeCompleted] != 1 || len(counts) != 1 {
		t.Errorf("outcomes = %v, want one completed", counts)
	}
	got, err := c.Storage.GetAsset(ctx, asset.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.VectorStatus != models.StatusCompleted {
		t.Errorf("status = %s, want completed", got.VectorStatus)
	}
	if n, _ := c.Queue.Len(ctx); n != 0 {
		t.Errorf("queue length = %d after drain", n)
	}
}

func TestBucketsFromConfig_IncludesFrames(t *testing.T) {
	got := bucketsFromConfig(testConfig(t)).Names()
	want := []string{"assets", "thumbnails", "frames"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("init-buckets provisions %v, want %v", got, want)
	}
}

func TestNewObjectStore_UnknownType(t *testing.T) {
	cfg := testConfig(t)
	cfg.ObjectStore.Type = "ftp"
	if _, err := newObjectStore(cfg); err == nil {
		t.Error("expected error for unknown object store type")
	}
}

func TestImageSearchBody(t *testing.T) {
	q := &models.SearchQuery{Image: []byte("jpegbytes"), TopK: 7, AssetType: models.AssetVideo}
	body, contentType, err := imageSearchBody(q, "ref.jpg")
	if err != nil {
		t.Fatal(err)
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		t.Fatal(err)
	}
	form, err := multipart.NewReader(body, params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	if form.Value["top_k"][0] != "7" || form.Value["asset_type"][0] != "video" {
		t.Errorf("fields = %v", form.Value)
	}
	f, err := form.File["file"][0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "jpegbytes" {
		t.Errorf("file = %q", data)
	}
}
