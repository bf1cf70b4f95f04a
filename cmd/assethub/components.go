package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/assethub/internal/assets"
	"github.com/hyperjump/assethub/internal/config"
	"github.com/hyperjump/assethub/internal/embedding"
	"github.com/hyperjump/assethub/internal/ingest"
	"github.com/hyperjump/assethub/internal/keyword"
	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/objectstore"
	"github.com/hyperjump/assethub/internal/queue"
	"github.com/hyperjump/assethub/internal/search"
	"github.com/hyperjump/assethub/internal/storage"
	"github.com/hyperjump/assethub/internal/vector"
	"github.com/hyperjump/assethub/internal/video"
	"github.com/hyperjump/assethub/internal/worker"
)

// Components holds initialized services.
type Components struct {
	Storage     storage.Storage
	Blobs       objectstore.ObjectStore
	Embedder    embedding.Embedder
	VectorIndex vector.VectorIndex
	NameIndex   keyword.NameIndex
	Queue       queue.Queue
	Sampler     *video.Sampler
	Buckets     objectstore.Buckets

	Gate   *ingest.Gate
	Assets *assets.Service
	Search *search.Processor
	Worker *worker.Worker

	// snapshotPath is where the memory vector index is saved on Close.
	snapshotPath string
	logger       *zap.Logger
}

// Close saves the memory index snapshot when this process changed it, then releases
// every store. A process that only read the index leaves the file alone.
func (c *Components) Close() {
	if p, ok := c.VectorIndex.(vector.Persistent); ok && c.snapshotPath != "" && p.Dirty() {
		if err := p.Save(c.snapshotPath); err != nil {
			c.logger.Warn("vector index save failed", zap.String("path", c.snapshotPath), zap.Error(err))
		}
	}
	if c.Queue != nil {
		_ = c.Queue.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.NameIndex != nil {
		_ = c.NameIndex.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func newObjectStore(cfg *config.Config) (objectstore.ObjectStore, error) {
	switch cfg.ObjectStore.Type {
	case "memory":
		return objectstore.NewMemoryStore("memory://" + cfg.ObjectStore.Endpoint), nil
	case "minio", "s3", "":
		return objectstore.NewMinioStore(objectstore.MinioConfig{
			Endpoint:  cfg.ObjectStore.Endpoint,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			UseSSL:    cfg.ObjectStore.UseSSL,
			Region:    cfg.ObjectStore.Region,
		})
	default:
		return nil, fmt.Errorf("unknown object store type: %s (supported: minio, memory)", cfg.ObjectStore.Type)
	}
}

func bucketsFromConfig(cfg *config.Config) objectstore.Buckets {
	return objectstore.Buckets{
		Assets:     cfg.ObjectStore.AssetsBucket,
		Thumbnails: cfg.ObjectStore.ThumbnailBucket,
		Frames:     cfg.ObjectStore.FramesBucket,
	}
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Embedder {
	var inner embedding.Embedder
	if cfg.Embedding.Type == "mock" {
		inner = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		clip, err := embedding.NewClipEmbedder(embedding.ClipConfig{
			VisualModelPath: cfg.Embedding.VisualModelPath,
			TextModelPath:   cfg.Embedding.TextModelPath,
			VocabPath:       cfg.Embedding.VocabPath,
			Dimensions:      cfg.Embedding.Dimensions,
			MaxTokens:       cfg.Embedding.MaxTokens,
			ImageSize:       cfg.Embedding.ImageSize,
		})
		if err != nil {
			logger.Warn("CLIP embedder unavailable, falling back to mock embeddings", zap.Error(err))
			inner = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
		} else {
			inner = clip
		}
	}
	if cfg.Embedding.CacheSize > 0 {
		return embedding.NewCachedEmbedder(inner, cfg.Embedding.CacheSize)
	}
	return inner
}

func newWorker(cfg *config.Config, c *Components, logger *zap.Logger, slots int) *worker.Worker {
	return worker.New(worker.Deps{
		Catalog:  c.Storage,
		Blobs:    c.Blobs,
		Embedder: c.Embedder,
		Index:    c.VectorIndex,
		Sampler:  c.Sampler,
		Queue:    c.Queue,
		Buckets:  c.Buckets,
	}, worker.Options{
		Workers:     slots,
		MaxAttempts: cfg.Queue.MaxAttempts,
		RetryDelay:  cfg.Queue.RetryDelay,
		JobTimeout:  cfg.Queue.JobTimeout,
		PollTimeout: cfg.Queue.PollTimeout,
		ScratchDir:  cfg.Storage.ScratchDir,
	}, worker.WithLogger(logger))
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{logger: logger, Buckets: bucketsFromConfig(cfg)}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	names, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize name index: %w", err)
	}
	c.NameIndex = names

	if c.Blobs, err = newObjectStore(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	c.Embedder = newEmbedder(cfg, logger)
	dims := c.Embedder.Dimensions()
	if dims <= 0 {
		dims = cfg.Embedding.Dimensions
	}

	c.VectorIndex, err = vector.NewVectorIndex(ctx, cfg.Vector.Type, dims, vector.MilvusConfig{
		Address:        cfg.Vector.MilvusAddress,
		Username:       cfg.Vector.MilvusUsername,
		Password:       cfg.Vector.MilvusPassword,
		Collection:     cfg.Vector.Collection,
		M:              cfg.Vector.HNSWM,
		EfConstruction: cfg.Vector.HNSWConstruction,
		SearchEf:       cfg.Vector.SearchEf,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if p, ok := c.VectorIndex.(vector.Persistent); ok && cfg.Storage.MemoryIndexPath != "" {
		c.snapshotPath = cfg.Storage.MemoryIndexPath
		if loadErr := p.Load(c.snapshotPath); loadErr != nil {
			logger.Warn("vector index snapshot not loaded", zap.String("path", c.snapshotPath), zap.Error(loadErr))
		}
	}
	logger.Info("vector index initialized", zap.String("type", cfg.Vector.Type), zap.Int("dimensions", dims))

	c.Queue, err = queue.New(ctx, queue.Options{
		Type:          cfg.Queue.Type,
		Name:          cfg.Queue.Name,
		RedisAddr:     cfg.Queue.RedisAddr,
		RedisPassword: cfg.Queue.RedisPassword,
		RedisDB:       cfg.Queue.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	c.Sampler = video.NewSampler(
		video.NewFFmpeg(cfg.Video.FFmpegPath, cfg.Video.FFprobePath),
		video.Policy{
			Interval:  cfg.Video.FrameInterval,
			MinFrames: cfg.Video.MinFrames,
			MaxFrames: cfg.Video.MaxFrames,
			Quality:   cfg.Video.JPEGQuality,
		},
		video.WithLogger(logger),
	)

	c.Gate = ingest.NewGate(store, c.Blobs, c.Queue, c.Buckets,
		ingest.WithLogger(logger),
		ingest.WithNameIndex(names),
		ingest.WithMaxSize(cfg.Server.MaxUploadSize),
	)
	c.Assets = assets.NewService(store, c.Blobs, c.VectorIndex, c.Queue, c.Buckets,
		assets.WithLogger(logger),
		assets.WithNameIndex(names),
		assets.WithPresignTTL(cfg.ObjectStore.PresignTTL),
	)
	c.Search = search.NewProcessor(store, c.Blobs, c.Embedder, c.VectorIndex, c.Buckets, cfg.Search,
		search.WithLogger(logger),
		search.WithPresignTTL(cfg.ObjectStore.PresignTTL),
	)
	c.Worker = newWorker(cfg, c, logger, cfg.Queue.Workers)
	return c, nil
}

// drainReady processes every job that is ready now. Jobs rescheduled for a later
// attempt stay queued.
func (c *Components) drainReady(ctx context.Context) map[worker.Outcome]int {
	counts := make(map[worker.Outcome]int)
	for {
		job, err := c.Queue.Dequeue(ctx, 10*time.Millisecond)
		if err != nil || job == nil {
			return counts
		}
		counts[c.Worker.Process(ctx, job)]++
	}
}

// imageSearchBody builds the multipart body for POST /api/v1/search/image.
func imageSearchBody(q *models.SearchQuery, filename string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(q.Image); err != nil {
		return nil, "", err
	}
	if q.TopK > 0 {
		_ = mw.WriteField("top_k", strconv.Itoa(q.TopK))
	}
	if q.AssetType != "" {
		_ = mw.WriteField("asset_type", string(q.AssetType))
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
