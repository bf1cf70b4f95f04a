// Package search answers text and image similarity queries against the vector index.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/config"
	"github.com/hyperjump/assethub/internal/embedding"
	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/objectstore"
	"github.com/hyperjump/assethub/internal/storage"
	"github.com/hyperjump/assethub/internal/vector"
	"github.com/hyperjump/assethub/pkg/utils"
)

// Processor turns a query into a ranked, asset-level result list.
type Processor struct {
	catalog  storage.CatalogStore
	blobs    objectstore.ObjectStore
	embedder embedding.Embedder
	index    vector.VectorIndex
	buckets  objectstore.Buckets
	cfg      config.SearchConfig
	ttl      time.Duration
	logger   *zap.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithPresignTTL sets how long result URLs stay valid.
func WithPresignTTL(ttl time.Duration) Option {
	return func(p *Processor) { p.ttl = ttl }
}

// NewProcessor creates a query processor. Zero values in cfg fall back to
// topK 20, max 100 and an over-fetch factor of 2.
func NewProcessor(
	catalog storage.CatalogStore,
	blobs objectstore.ObjectStore,
	embedder embedding.Embedder,
	index vector.VectorIndex,
	buckets objectstore.Buckets,
	cfg config.SearchConfig,
	opts ...Option,
) *Processor {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 20
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 100
	}
	if cfg.OverFetchFactor <= 0 {
		cfg.OverFetchFactor = 2
	}
	p := &Processor{
		catalog:  catalog,
		blobs:    blobs,
		embedder: embedder,
		index:    index,
		buckets:  buckets,
		cfg:      cfg,
		ttl:      time.Hour,
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = utils.OrNop(p.logger)
	return p
}

// SearchText embeds text and searches.
func (p *Processor) SearchText(ctx context.Context, text string, topK int, typ models.AssetType) (*models.SearchResponse, error) {
	return p.Search(ctx, &models.SearchQuery{Text: text, TopK: topK, AssetType: typ})
}

// SearchImage embeds an example image and searches.
func (p *Processor) SearchImage(ctx context.Context, data []byte, topK int, typ models.AssetType) (*models.SearchResponse, error) {
	return p.Search(ctx, &models.SearchQuery{Image: data, TopK: topK, AssetType: typ})
}

// Search runs a validated query. Results are unique per asset, ordered by score,
// and may be fewer than TopK when the over-fetched hits run out.
func (p *Processor) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := q.Validate(p.cfg.DefaultTopK, p.cfg.MaxTopK); err != nil {
		return nil, apperrors.Validation("%v", err)
	}

	var (
		vec []float32
		err error
	)
	if q.Text != "" {
		vec, err = p.embedder.EmbedText(ctx, q.Text)
	} else {
		vec, err = p.embedder.EmbedImage(ctx, q.Image)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// The type filter is applied against the catalog, not the index.
	hits, err := p.index.Search(ctx, vec, q.TopK*p.cfg.OverFetchFactor, "")
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	best := dedupe(hits)
	ids := make([]string, len(best))
	for i, h := range best {
		ids[i] = h.AssetID
	}
	assets, err := p.catalog.GetAssets(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets: %w", err)
	}

	results := make([]*models.SearchResult, 0, q.TopK)
	for _, h := range best {
		if len(results) == q.TopK {
			break
		}
		asset, ok := assets[h.AssetID]
		if !ok {
			continue
		}
		if q.AssetType != "" && asset.Type != q.AssetType {
			continue
		}
		results = append(results, &models.SearchResult{
			AssetID:      asset.ID,
			Name:         asset.Name,
			Type:         asset.Type,
			Score:        h.Score,
			FrameIndex:   h.FrameIndex,
			ThumbnailURL: p.previewURL(ctx, asset, h),
		})
	}

	took := time.Since(start)
	p.logger.Debug("Search completed",
		zap.Int("hits", len(hits)),
		zap.Int("results", len(results)),
		zap.Duration("took", took))
	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: took.Milliseconds(),
		Query:     q.Text,
	}, nil
}

// dedupe keeps the first hit per asset. Hits arrive best first, so that is the
// highest-scoring one.
func dedupe(hits []*vector.Hit) []*vector.Hit {
	seen := make(map[string]bool, len(hits))
	out := make([]*vector.Hit, 0, len(hits))
	for _, h := range hits {
		if seen[h.AssetID] {
			continue
		}
		seen[h.AssetID] = true
		out = append(out, h)
	}
	return out
}

// previewURL is the thumbnail for images and the matching keyframe for videos.
func (p *Processor) previewURL(ctx context.Context, asset *models.MediaAsset, h *vector.Hit) string {
	var bucket, key string
	switch {
	case asset.Type == models.AssetVideo:
		bucket, key = p.buckets.Frames, objectstore.FrameKey(asset.ID, h.FrameIndex)
	case asset.ThumbnailKey != "":
		bucket, key = p.buckets.Thumbnails, asset.ThumbnailKey
	default:
		return ""
	}
	url, err := p.blobs.PresignedURL(ctx, bucket, key, p.ttl)
	if err != nil {
		p.logger.Warn("Failed to presign preview", zap.String("asset_id", asset.ID), zap.Error(err))
		return ""
	}
	return url
}
