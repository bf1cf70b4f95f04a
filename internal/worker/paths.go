package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/objectstore"
	"github.com/hyperjump/assethub/pkg/utils"
)

const unitNormTolerance = 1e-5

func (w *Worker) embed(ctx context.Context, data []byte) ([]float32, error) {
	vec, err := w.deps.Embedder.EmbedImage(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to embed image: %w", err)
	}
	if !utils.IsUnit(vec, unitNormTolerance) {
		return nil, apperrors.Permanent(fmt.Errorf("embedding norm %.6f is not 1", utils.L2Norm(vec)))
	}
	return vec, nil
}

// vectorizeImage: download, embed, replace the asset's vector record.
func (w *Worker) vectorizeImage(ctx context.Context, asset *models.MediaAsset) (string, error) {
	data, err := w.deps.Blobs.Get(ctx, w.deps.Buckets.Assets, asset.BlobKey)
	if err != nil {
		return "", fmt.Errorf("failed to download blob: %w", err)
	}
	vec, err := w.embed(ctx, data)
	if err != nil {
		return "", err
	}
	if err := w.deps.Index.DeleteByAsset(ctx, asset.ID); err != nil {
		return "", fmt.Errorf("failed to clear previous vectors: %w", err)
	}
	rec := &models.VectorRecord{
		ID:         uuid.New().String(),
		AssetID:    asset.ID,
		AssetType:  models.AssetImage,
		FrameIndex: 0,
		Embedding:  vec,
	}
	if err := w.deps.Index.Insert(ctx, []*models.VectorRecord{rec}); err != nil {
		return "", fmt.Errorf("failed to insert vector: %w", err)
	}
	return rec.ID, nil
}

// vectorizeVideo samples keyframes and writes one frame blob, vector and frame row per
// sample, in order. Output from earlier deliveries is removed first so a repeat pass
// leaves exactly one set of frames.
func (w *Worker) vectorizeVideo(ctx context.Context, asset *models.MediaAsset) (string, error) {
	if err := w.clearFrames(ctx, asset.ID); err != nil {
		return "", err
	}

	path, cleanup, err := w.download(ctx, asset)
	if err != nil {
		return "", err
	}
	defer cleanup()

	frames, err := w.deps.Sampler.Sample(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to sample video: %w", err)
	}
	if len(frames) == 0 {
		return "", apperrors.Permanent(fmt.Errorf("no frames decoded"))
	}

	var firstVectorID string
	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		key := objectstore.FrameKey(asset.ID, f.Index)
		if err := w.deps.Blobs.Put(ctx, w.deps.Buckets.Frames, key, f.Data, "image/jpeg"); err != nil {
			return "", fmt.Errorf("failed to upload frame %d: %w", f.Index, err)
		}
		vec, err := w.embed(ctx, f.Data)
		if err != nil {
			return "", fmt.Errorf("frame %d: %w", f.Index, err)
		}
		rec := &models.VectorRecord{
			ID:         uuid.New().String(),
			AssetID:    asset.ID,
			AssetType:  models.AssetVideo,
			FrameIndex: f.Index,
			Embedding:  vec,
		}
		if err := w.deps.Index.Insert(ctx, []*models.VectorRecord{rec}); err != nil {
			return "", fmt.Errorf("failed to insert vector for frame %d: %w", f.Index, err)
		}
		if err := w.deps.Catalog.InsertFrame(ctx, &models.VideoFrame{
			ID:          uuid.New().String(),
			AssetID:     asset.ID,
			FrameIndex:  f.Index,
			TimestampMs: f.TimestampMs,
			BlobKey:     key,
			VectorID:    rec.ID,
		}); err != nil {
			return "", fmt.Errorf("failed to record frame %d: %w", f.Index, err)
		}
		if firstVectorID == "" {
			firstVectorID = rec.ID
		}
	}
	w.logger.Debug("Video frames vectorized",
		zap.String("asset_id", asset.ID), zap.Int("frames", len(frames)))
	return firstVectorID, nil
}

func (w *Worker) clearFrames(ctx context.Context, assetID string) error {
	if err := w.deps.Index.DeleteByAsset(ctx, assetID); err != nil {
		return fmt.Errorf("failed to clear previous vectors: %w", err)
	}
	if err := w.deps.Catalog.DeleteFrames(ctx, assetID); err != nil {
		return fmt.Errorf("failed to clear previous frames: %w", err)
	}
	if err := w.deps.Blobs.DeletePrefix(ctx, w.deps.Buckets.Frames, objectstore.FramePrefix(assetID)); err != nil {
		return fmt.Errorf("failed to clear previous frame blobs: %w", err)
	}
	return nil
}

// download copies the asset blob to a scratch file and returns a cleanup func.
func (w *Worker) download(ctx context.Context, asset *models.MediaAsset) (string, func(), error) {
	f, err := os.CreateTemp(w.opts.ScratchDir, "assethub-*"+filepath.Ext(asset.BlobKey))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	cleanup := func() { _ = os.Remove(path) }

	start := time.Now()
	if err := w.deps.Blobs.Download(ctx, w.deps.Buckets.Assets, asset.BlobKey, path); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to download blob: %w", err)
	}
	w.logger.Debug("Video downloaded",
		zap.String("asset_id", asset.ID), zap.Duration("took", time.Since(start)))
	return path, cleanup, nil
}
