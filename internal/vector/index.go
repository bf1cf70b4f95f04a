// Package vector provides approximate nearest-neighbor storage for asset embeddings.
package vector

import (
	"context"

	"github.com/hyperjump/assethub/internal/models"
)

// VectorIndex stores VectorRecords and answers inner-product similarity queries.
// Inserting an existing ID replaces the record.
type VectorIndex interface {
	Insert(ctx context.Context, records []*models.VectorRecord) error
	// Search returns up to topK hits in descending score order. An empty typeFilter matches all types.
	Search(ctx context.Context, query []float32, topK int, typeFilter models.AssetType) ([]*Hit, error)
	Delete(ctx context.Context, ids []string) error
	DeleteByAsset(ctx context.Context, assetID string) error
	Size(ctx context.Context) (int, error)
	Close() error
}

// Persistent is implemented by indices that live in process memory and snapshot to disk.
type Persistent interface {
	Save(path string) error
	Load(path string) error
	// Dirty reports unsaved writes.
	Dirty() bool
}

// Hit is a single vector search result.
type Hit struct {
	ID         string           `json:"id"`
	AssetID    string           `json:"asset_id"`
	AssetType  models.AssetType `json:"asset_type"`
	FrameIndex int              `json:"frame_index"`
	Score      float64          `json:"score"` // inner product; cosine similarity for unit vectors
}
