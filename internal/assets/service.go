// Package assets serves catalog reads and the management operations around the
// ingest and vectorization pipeline: lookup with URLs, listing, deletion, manual
// re-vectorization, tags, collections and usage history.
package assets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/keyword"
	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/objectstore"
	"github.com/hyperjump/assethub/internal/queue"
	"github.com/hyperjump/assethub/internal/storage"
	"github.com/hyperjump/assethub/internal/vector"
	"github.com/hyperjump/assethub/pkg/utils"
)

// maxNameHits bounds how many name matches feed a filtered listing.
const maxNameHits = 500

// Detail is an asset with short-lived download URLs.
type Detail struct {
	*models.MediaAsset
	URL          string         `json:"url,omitempty"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
	Frames       []*FrameDetail `json:"frames,omitempty"`
	Tags         []*models.Tag  `json:"tags,omitempty"`
}

// FrameDetail is a keyframe with its URL.
type FrameDetail struct {
	*models.VideoFrame
	URL string `json:"url,omitempty"`
}

// Service wires catalog, blobs, index and queue for asset management.
type Service struct {
	catalog storage.Storage
	blobs   objectstore.ObjectStore
	index   vector.VectorIndex
	queue   queue.Queue
	buckets objectstore.Buckets
	names   keyword.NameIndex
	ttl     time.Duration
	logger  *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithNameIndex enables name search in List and removes names on Delete.
func WithNameIndex(idx keyword.NameIndex) Option {
	return func(s *Service) { s.names = idx }
}

// WithPresignTTL sets how long returned URLs stay valid. Default one hour.
func WithPresignTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// NewService creates an asset service.
func NewService(catalog storage.Storage, blobs objectstore.ObjectStore, index vector.VectorIndex, q queue.Queue, buckets objectstore.Buckets, opts ...Option) *Service {
	s := &Service{
		catalog: catalog,
		blobs:   blobs,
		index:   index,
		queue:   q,
		buckets: buckets,
		ttl:     time.Hour,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s
}

// Get returns the asset with its URLs, tags and frames, and counts a view.
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	asset, err := s.catalog.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.RecordUsage(ctx, &models.UsageRecord{
		ID: uuid.New().String(), AssetID: id, ActionType: models.ActionView,
	}); err != nil {
		s.logger.Warn("Failed to record view", zap.String("asset_id", id), zap.Error(err))
	} else {
		asset.ViewCount++
	}

	d := &Detail{
		MediaAsset: asset,
		URL:        s.presign(ctx, s.buckets.Assets, asset.BlobKey),
	}
	if asset.ThumbnailKey != "" {
		d.ThumbnailURL = s.presign(ctx, s.buckets.Thumbnails, asset.ThumbnailKey)
	}
	if d.Tags, err = s.catalog.ListAssetTags(ctx, id); err != nil {
		return nil, err
	}
	if asset.Type == models.AssetVideo {
		frames, err := s.catalog.ListFrames(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, f := range frames {
			d.Frames = append(d.Frames, &FrameDetail{VideoFrame: f, URL: s.presign(ctx, s.buckets.Frames, f.BlobKey)})
		}
		if d.ThumbnailURL == "" && len(d.Frames) > 0 {
			d.ThumbnailURL = d.Frames[0].URL
		}
	}
	return d, nil
}

func (s *Service) presign(ctx context.Context, bucket, key string) string {
	url, err := s.blobs.PresignedURL(ctx, bucket, key, s.ttl)
	if err != nil {
		s.logger.Warn("Failed to presign", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		return ""
	}
	return url
}

// List returns one page of assets. A non-empty query restricts the page to assets
// whose name or description matches it.
func (s *Service) List(ctx context.Context, filter models.AssetFilter, query string) ([]*models.MediaAsset, int, error) {
	query = strings.TrimSpace(query)
	if query != "" {
		if s.names == nil {
			return nil, 0, apperrors.Validation("name search is not enabled")
		}
		hits, err := s.names.Search(ctx, query, maxNameHits, &keyword.SearchOptions{
			NameBoost: 2, Type: filter.Type, Fuzziness: 1,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("name search failed: %w", err)
		}
		if len(hits) == 0 {
			return []*models.MediaAsset{}, 0, nil
		}
		filter.IDs = make([]string, len(hits))
		for i, h := range hits {
			filter.IDs[i] = h.ID
		}
	}
	return s.catalog.ListAssets(ctx, filter)
}

// Delete hides the asset, then removes its vectors, frames, blobs and name entry.
// Only the catalog step can fail the call; cleanup failures are logged.
func (s *Service) Delete(ctx context.Context, id string) error {
	asset, err := s.catalog.GetAsset(ctx, id)
	if err != nil {
		return err
	}
	if err := s.catalog.SoftDeleteAsset(ctx, id); err != nil {
		return err
	}
	logger := s.logger.With(zap.String("asset_id", id))

	if err := s.index.DeleteByAsset(ctx, id); err != nil {
		logger.Warn("Failed to delete vectors", zap.Error(err))
	}
	if err := s.catalog.DeleteFrames(ctx, id); err != nil {
		logger.Warn("Failed to delete frame rows", zap.Error(err))
	}
	if err := s.blobs.Delete(ctx, s.buckets.Assets, asset.BlobKey); err != nil {
		logger.Warn("Failed to delete blob", zap.Error(err))
	}
	if asset.ThumbnailKey != "" {
		if err := s.blobs.Delete(ctx, s.buckets.Thumbnails, asset.ThumbnailKey); err != nil {
			logger.Warn("Failed to delete thumbnail", zap.Error(err))
		}
	}
	if asset.Type == models.AssetVideo {
		if err := s.blobs.DeletePrefix(ctx, s.buckets.Frames, objectstore.FramePrefix(id)); err != nil {
			logger.Warn("Failed to delete frame blobs", zap.Error(err))
		}
	}
	if s.names != nil {
		if err := s.names.Delete(ctx, id); err != nil {
			logger.Warn("Failed to delete name entry", zap.Error(err))
		}
	}
	logger.Info("Asset deleted")
	return nil
}

// Retry resets the asset to pending and enqueues a fresh job with attempt 1.
// Assets without an embedding path, and assets a worker is processing, are rejected.
func (s *Service) Retry(ctx context.Context, id string) (*models.VectorizationJob, error) {
	asset, err := s.catalog.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if !asset.Type.Vectorizable() {
		return nil, apperrors.Validation("%s assets cannot be vectorized", asset.Type)
	}
	if asset.VectorStatus == models.StatusProcessing {
		return nil, apperrors.Validation("asset %s is being processed", id)
	}
	if err := s.catalog.SetVectorStatus(ctx, id, models.StatusPending, ""); err != nil {
		return nil, err
	}
	job := &models.VectorizationJob{
		ID:        uuid.New().String(),
		Type:      models.JobTypeVectorize,
		AssetID:   id,
		AssetType: asset.Type,
		Attempt:   1,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, apperrors.Transient(fmt.Errorf("failed to enqueue job: %w", err))
	}
	s.logger.Info("Vectorization requeued", zap.String("asset_id", id), zap.String("job_id", job.ID))
	return job, nil
}

// RecordUsage appends a history entry and bumps the asset's counter.
func (s *Service) RecordUsage(ctx context.Context, assetID, action, usageContext string) (*models.UsageRecord, error) {
	switch action {
	case models.ActionView, models.ActionUse, models.ActionDownload, models.ActionCopy:
	default:
		return nil, apperrors.Validation("unknown action %q", action)
	}
	rec := &models.UsageRecord{
		ID:         uuid.New().String(),
		AssetID:    assetID,
		ActionType: action,
		Context:    usageContext,
	}
	if err := s.catalog.RecordUsage(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// History returns usage entries newest first.
func (s *Service) History(ctx context.Context, action string, page, pageSize int) ([]*models.UsageRecord, error) {
	f := models.AssetFilter{Page: page, PageSize: pageSize}
	f.Normalize()
	return s.catalog.ListUsage(ctx, action, (f.Page-1)*f.PageSize, f.PageSize)
}

// Recent returns the most recently used assets, most recent first.
func (s *Service) Recent(ctx context.Context, limit int) ([]*models.MediaAsset, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	ids, err := s.catalog.RecentAssetIDs(ctx, limit)
	if err != nil {
		return nil, err
	}
	byID, err := s.catalog.GetAssets(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*models.MediaAsset, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// CreateTag creates a tag whose slug is derived from name.
func (s *Service) CreateTag(ctx context.Context, name, color string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	slug := utils.Slugify(name)
	if slug == "" {
		return nil, apperrors.Validation("tag name must contain a letter or digit")
	}
	tag := &models.Tag{ID: uuid.New().String(), Name: name, Slug: slug, Color: color}
	if err := s.catalog.CreateTag(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

// ListTags returns all tags.
func (s *Service) ListTags(ctx context.Context) ([]*models.Tag, error) {
	return s.catalog.ListTags(ctx)
}

func (s *Service) DeleteTag(ctx context.Context, id string) error {
	return s.catalog.DeleteTag(ctx, id)
}

// UpdateTag renames and/or recolors a tag. A rename derives a new slug.
func (s *Service) UpdateTag(ctx context.Context, id, name, color string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	var slug string
	if name != "" {
		if slug = utils.Slugify(name); slug == "" {
			return nil, apperrors.Validation("tag name must contain a letter or digit")
		}
	}
	if err := s.catalog.UpdateTag(ctx, id, name, slug, color); err != nil {
		return nil, err
	}
	return s.catalog.GetTag(ctx, id)
}

// BatchAssignTags attaches every tag to every asset and returns the number of new
// links. Unknown assets and tags are skipped.
func (s *Service) BatchAssignTags(ctx context.Context, assetIDs, tagIDs []string) (int, error) {
	if len(assetIDs) == 0 || len(tagIDs) == 0 {
		return 0, apperrors.Validation("asset_ids and tag_ids are required")
	}
	return s.catalog.TagAssets(ctx, assetIDs, tagIDs)
}

func (s *Service) TagAsset(ctx context.Context, assetID, tagID string) error {
	return s.catalog.TagAsset(ctx, assetID, tagID)
}

func (s *Service) UntagAsset(ctx context.Context, assetID, tagID string) error {
	return s.catalog.UntagAsset(ctx, assetID, tagID)
}

// Stats adds the vector index size to the catalog counts. An unreachable index
// reports -1 rather than failing the call.
func (s *Service) Stats(ctx context.Context) (*models.CatalogStats, error) {
	stats, err := s.catalog.Stats(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.index.Size(ctx)
	if err != nil {
		s.logger.Warn("Failed to read vector index size", zap.Error(err))
		n = -1
	}
	stats.VectorCount = n
	return stats, nil
}
