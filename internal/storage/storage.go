// Package storage defines the catalog persistence interface for assets, frames, tags,
// collections and usage.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/assethub/internal/models"
)

// CatalogStore is the slice of the catalog the vectorization pipeline reads and writes.
// Each call is its own transaction.
type CatalogStore interface {
	GetAsset(ctx context.Context, id string) (*models.MediaAsset, error)
	GetAssets(ctx context.Context, ids []string) (map[string]*models.MediaAsset, error)
	FindAssetByHash(ctx context.Context, hash string) (*models.MediaAsset, error)
	CreateAsset(ctx context.Context, asset *models.MediaAsset) error

	// ClaimAsset flips the asset to processing when it is pending, failed, or has been
	// processing for longer than staleAfter. It returns false when another worker holds it.
	ClaimAsset(ctx context.Context, id string, staleAfter time.Duration) (bool, error)
	SetVectorStatus(ctx context.Context, id string, status models.VectorStatus, vectorID string) error

	InsertFrame(ctx context.Context, frame *models.VideoFrame) error
	ListFrames(ctx context.Context, assetID string) ([]*models.VideoFrame, error)
	DeleteFrames(ctx context.Context, assetID string) error
}

// Storage is the full catalog.
type Storage interface {
	CatalogStore

	ListAssets(ctx context.Context, filter models.AssetFilter) ([]*models.MediaAsset, int, error)
	SoftDeleteAsset(ctx context.Context, id string) error

	// Tags
	CreateTag(ctx context.Context, tag *models.Tag) error
	ListTags(ctx context.Context) ([]*models.Tag, error)
	DeleteTag(ctx context.Context, id string) error
	TagAsset(ctx context.Context, assetID, tagID string) error
	UntagAsset(ctx context.Context, assetID, tagID string) error
	ListAssetTags(ctx context.Context, assetID string) ([]*models.Tag, error)
	GetTag(ctx context.Context, id string) (*models.Tag, error)
	UpdateTag(ctx context.Context, id, name, slug, color string) error
	TagAssets(ctx context.Context, assetIDs, tagIDs []string) (int, error)

	// Collections
	CreateCollection(ctx context.Context, c *models.Collection) error
	GetCollection(ctx context.Context, id string) (*models.Collection, error)
	ListCollections(ctx context.Context) ([]*models.Collection, error)
	UpdateCollection(ctx context.Context, id string, name, description *string) error
	DeleteCollection(ctx context.Context, id string) error
	AddToCollection(ctx context.Context, id string, assetIDs []string) (int, error)
	RemoveFromCollection(ctx context.Context, id string, assetIDs []string) (int, error)
	ListCollectionAssets(ctx context.Context, id string) ([]*models.MediaAsset, error)

	// Usage
	RecordUsage(ctx context.Context, rec *models.UsageRecord) error
	ListUsage(ctx context.Context, action string, offset, limit int) ([]*models.UsageRecord, error)
	RecentAssetIDs(ctx context.Context, limit int) ([]string, error)

	Stats(ctx context.Context) (*models.CatalogStats, error)

	Close() error
}
