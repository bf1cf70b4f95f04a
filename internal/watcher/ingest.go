package watcher

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/pkg/utils"
)

// FileIngester stores one file as an asset.
type FileIngester interface {
	IngestFile(ctx context.Context, path string) (*models.MediaAsset, error)
}

// IngestCallback adapts an ingester to a Watcher callback. Duplicates and
// rejected files are expected in a drop folder and only logged.
func IngestCallback(ctx context.Context, ing FileIngester, logger *zap.Logger) func(path string) {
	logger = utils.OrNop(logger)
	return func(path string) {
		asset, err := ing.IngestFile(ctx, path)
		switch {
		case err == nil:
			logger.Info("Ingested dropped file", zap.String("path", path), zap.String("asset_id", asset.ID))
		case errors.Is(err, apperrors.ErrDuplicate):
			logger.Debug("Dropped file already stored", zap.String("path", path))
		case errors.Is(err, apperrors.ErrValidation):
			logger.Info("Dropped file rejected", zap.String("path", path), zap.Error(err))
		default:
			logger.Warn("Failed to ingest dropped file", zap.String("path", path), zap.Error(err))
		}
	}
}
