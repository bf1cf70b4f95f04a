// Package ingest validates and deduplicates uploads, stores them, and schedules vectorization.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/imaging"
	"github.com/hyperjump/assethub/internal/keyword"
	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/objectstore"
	"github.com/hyperjump/assethub/internal/queue"
	"github.com/hyperjump/assethub/internal/storage"
	"github.com/hyperjump/assethub/pkg/utils"
)

// ThumbnailSize is the bounding box for image thumbnails.
const ThumbnailSize = 400

// Upload is one file submitted for ingest.
type Upload struct {
	Data        []byte
	MimeType    string
	Name        string
	Description string
}

// Gate is the ingest entry point.
type Gate struct {
	catalog storage.CatalogStore
	blobs   objectstore.ObjectStore
	queue   queue.Queue
	buckets objectstore.Buckets
	names   keyword.NameIndex
	maxSize int64
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithNameIndex indexes asset names on ingest. Indexing failures are logged only.
func WithNameIndex(idx keyword.NameIndex) Option {
	return func(g *Gate) { g.names = idx }
}

// WithMaxSize rejects uploads larger than n bytes. Zero means unlimited.
func WithMaxSize(n int64) Option {
	return func(g *Gate) { g.maxSize = n }
}

// WithClock overrides the time source used for blob keys.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate creates an ingest gate.
func NewGate(catalog storage.CatalogStore, blobs objectstore.ObjectStore, q queue.Queue, buckets objectstore.Buckets, opts ...Option) *Gate {
	g := &Gate{
		catalog: catalog,
		blobs:   blobs,
		queue:   q,
		buckets: buckets,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = utils.OrNop(g.logger)
	return g
}

// ContentHash returns the hex sha256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Ingest validates, deduplicates and stores an upload, creates its catalog record in
// pending state and enqueues a vectorization job for images and videos.
// An enqueue failure is logged and does not fail the call.
func (g *Gate) Ingest(ctx context.Context, up Upload) (*models.MediaAsset, error) {
	typ, ext, ok := Classify(up.MimeType)
	if !ok {
		return nil, apperrors.Validation("unsupported mime type %q", up.MimeType)
	}
	if len(up.Data) == 0 {
		return nil, apperrors.Validation("empty file")
	}
	if g.maxSize > 0 && int64(len(up.Data)) > g.maxSize {
		return nil, apperrors.Validation("file size %d exceeds limit %d", len(up.Data), g.maxSize)
	}

	hash := ContentHash(up.Data)
	existing, err := g.catalog.FindAssetByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicates: %w", err)
	}
	if existing != nil {
		return nil, apperrors.Duplicate(existing.ID, hash)
	}

	id := uuid.New().String()
	asset := &models.MediaAsset{
		ID:           id,
		Name:         displayName(up.Name, id, ext),
		Description:  up.Description,
		Type:         typ,
		MimeType:     NormalizeMime(up.MimeType),
		FileSize:     int64(len(up.Data)),
		ContentHash:  hash,
		BlobKey:      objectstore.AssetKey(typ, id, ext, g.now().UTC()),
		VectorStatus: models.StatusPending,
	}

	var thumb []byte
	if typ == models.AssetImage {
		thumb, asset.Width, asset.Height, err = imaging.Thumbnail(up.Data, ThumbnailSize)
		if err != nil {
			return nil, apperrors.Validation("undecodable image: %v", err)
		}
		asset.ThumbnailKey = objectstore.ThumbnailKey(id)
	}

	if err := g.blobs.Put(ctx, g.buckets.Assets, asset.BlobKey, up.Data, asset.MimeType); err != nil {
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}
	if thumb != nil {
		if err := g.blobs.Put(ctx, g.buckets.Thumbnails, asset.ThumbnailKey, thumb, "image/jpeg"); err != nil {
			g.removeBlobs(ctx, asset)
			return nil, fmt.Errorf("failed to store thumbnail: %w", err)
		}
	}

	if err := g.catalog.CreateAsset(ctx, asset); err != nil {
		// A concurrent upload of the same bytes won the race; drop our copy.
		g.removeBlobs(ctx, asset)
		return nil, err
	}
	g.logger.Info("Asset ingested",
		zap.String("asset_id", asset.ID),
		zap.String("type", string(asset.Type)),
		zap.Int64("size", asset.FileSize))

	if typ.Vectorizable() {
		g.enqueue(ctx, asset)
	}
	if g.names != nil {
		if err := g.names.Index(ctx, asset); err != nil {
			g.logger.Warn("Failed to index asset name", zap.String("asset_id", asset.ID), zap.Error(err))
		}
	}
	return asset, nil
}

func (g *Gate) enqueue(ctx context.Context, asset *models.MediaAsset) {
	job := &models.VectorizationJob{
		ID:        uuid.New().String(),
		Type:      models.JobTypeVectorize,
		AssetID:   asset.ID,
		AssetType: asset.Type,
		Attempt:   1,
	}
	if err := g.queue.Enqueue(ctx, job); err != nil {
		g.logger.Error("Failed to enqueue vectorization job; asset stays pending until retried",
			zap.String("asset_id", asset.ID), zap.Error(err))
	}
}

func (g *Gate) removeBlobs(ctx context.Context, asset *models.MediaAsset) {
	if err := g.blobs.Delete(ctx, g.buckets.Assets, asset.BlobKey); err != nil {
		g.logger.Warn("Failed to remove orphan blob", zap.String("key", asset.BlobKey), zap.Error(err))
	}
	if asset.ThumbnailKey != "" {
		_ = g.blobs.Delete(ctx, g.buckets.Thumbnails, asset.ThumbnailKey)
	}
}

func displayName(name, id, ext string) string {
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return id + "." + ext
	}
	return name
}

// IngestFile reads path and ingests it under its base name. The mime type is
// detected from the extension, then the content.
func (g *Gate) IngestFile(ctx context.Context, path string) (*models.MediaAsset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, apperrors.Validation("not a regular file: %s", path)
	}
	if g.maxSize > 0 && info.Size() > g.maxSize {
		return nil, apperrors.Validation("file size %d exceeds limit %d", info.Size(), g.maxSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return g.Ingest(ctx, Upload{
		Data:     data,
		MimeType: DetectMime(path, data),
		Name:     filepath.Base(path),
	})
}

// DirectoryResult summarizes an IngestDirectory run.
type DirectoryResult struct {
	Ingested   int
	Duplicates int
	Failed     int
}

// IngestDirectory walks dir and ingests every regular file with a supported extension.
// Duplicates and per-file failures are counted, not returned.
func (g *Gate) IngestDirectory(ctx context.Context, dir string) (DirectoryResult, error) {
	var res DirectoryResult
	info, err := os.Stat(dir)
	if err != nil {
		return res, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("not a directory: %s", dir)
	}
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := extMimes[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		_, ierr := g.IngestFile(ctx, path)
		switch {
		case ierr == nil:
			res.Ingested++
		case errors.Is(ierr, apperrors.ErrDuplicate):
			res.Duplicates++
		default:
			res.Failed++
			g.logger.Warn("Failed to ingest file", zap.String("path", path), zap.Error(ierr))
		}
		return nil
	})
	return res, err
}
