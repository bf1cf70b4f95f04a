package models

import "time"

// Tag labels assets.
type Tag struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Slug       string    `json:"slug" db:"slug"`
	Color      string    `json:"color" db:"color"`
	AssetCount int       `json:"asset_count" db:"asset_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Usage actions. View bumps ViewCount; the rest bump UseCount.
const (
	ActionView     = "view"
	ActionUse      = "use"
	ActionDownload = "download"
	ActionCopy     = "copy"
)

// UsageRecord is one entry of the usage history.
type UsageRecord struct {
	ID         string    `json:"id" db:"id"`
	AssetID    string    `json:"asset_id" db:"asset_id"`
	ActionType string    `json:"action_type" db:"action_type"`
	Context    string    `json:"context,omitempty" db:"context"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// CatalogStats summarizes the catalog.
type CatalogStats struct {
	TotalAssets int                  `json:"total_assets"`
	ByType      map[AssetType]int    `json:"by_type"`
	ByStatus    map[VectorStatus]int `json:"by_status"`
	TotalFrames int                  `json:"total_frames"`
	VectorCount int                  `json:"vector_count"`
}

// Collection groups assets into a folder. AssetCount only counts live assets.
type Collection struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description,omitempty" db:"description"`
	ParentID     string    `json:"parent_id,omitempty" db:"parent_id"`
	CoverAssetID string    `json:"cover_asset_id,omitempty" db:"cover_asset_id"`
	AssetCount   int       `json:"asset_count" db:"asset_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	// CoverThumbnailKey is the thumbnail of the cover asset, empty when it has none.
	CoverThumbnailKey string `json:"-"`
}
