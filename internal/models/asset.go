// Package models defines core data structures for media assets, jobs, queries, and search results.
package models

import (
	"fmt"
	"time"
)

// AssetType classifies a media asset.
type AssetType string

const (
	AssetImage AssetType = "image"
	AssetVideo AssetType = "video"
	AssetAudio AssetType = "audio"
)

// ParseAssetType converts s to an AssetType. The empty string yields "" with no error.
func ParseAssetType(s string) (AssetType, error) {
	switch AssetType(s) {
	case "", AssetImage, AssetVideo, AssetAudio:
		return AssetType(s), nil
	}
	return "", fmt.Errorf("invalid asset type: %s", s)
}

// Vectorizable reports whether assets of this type have an embedding path.
func (t AssetType) Vectorizable() bool {
	return t == AssetImage || t == AssetVideo
}

// VectorStatus is the per-asset vectorization state.
type VectorStatus string

const (
	StatusPending    VectorStatus = "pending"
	StatusProcessing VectorStatus = "processing"
	StatusCompleted  VectorStatus = "completed"
	StatusFailed     VectorStatus = "failed"
)

// MediaAsset is a catalogued upload.
// VectorID is set only while VectorStatus is completed; for videos it holds the first frame's vector.
type MediaAsset struct {
	ID           string       `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	Description  string       `json:"description,omitempty" db:"description"`
	Type         AssetType    `json:"type" db:"type"`
	MimeType     string       `json:"mime_type" db:"mime_type"`
	FileSize     int64        `json:"file_size" db:"file_size"`
	ContentHash  string       `json:"content_hash" db:"content_hash"`
	BlobKey      string       `json:"blob_key" db:"blob_key"`
	ThumbnailKey string       `json:"thumbnail_key,omitempty" db:"thumbnail_key"`
	Width        int          `json:"width,omitempty" db:"width"`
	Height       int          `json:"height,omitempty" db:"height"`
	VectorStatus VectorStatus `json:"vector_status" db:"vector_status"`
	VectorID     string       `json:"vector_id,omitempty" db:"vector_id"`
	ViewCount    int          `json:"view_count" db:"view_count"`
	UseCount     int          `json:"use_count" db:"use_count"`
	Deleted      bool         `json:"-" db:"is_deleted"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// VideoFrame is a sampled keyframe of a video asset.
type VideoFrame struct {
	ID          string    `json:"id" db:"id"`
	AssetID     string    `json:"asset_id" db:"asset_id"`
	FrameIndex  int       `json:"frame_index" db:"frame_index"`
	TimestampMs int64     `json:"timestamp_ms" db:"timestamp_ms"`
	BlobKey     string    `json:"blob_key" db:"blob_key"`
	VectorID    string    `json:"vector_id" db:"vector_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// VectorRecord is one embedding stored in the vector index.
type VectorRecord struct {
	ID         string    `json:"id"`
	AssetID    string    `json:"asset_id"`
	AssetType  AssetType `json:"asset_type"`
	FrameIndex int       `json:"frame_index"`
	Embedding  []float32 `json:"-"`
}

// AssetFilter narrows asset listings.
type AssetFilter struct {
	Type     AssetType
	Status   VectorStatus
	IDs      []string
	Page     int
	PageSize int
}

// Normalize applies paging defaults: page 1, 20 per page, at most 100.
func (f *AssetFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}
