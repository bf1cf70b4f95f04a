// Package objectstore provides blob storage for asset files, thumbnails, and keyframes.
package objectstore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/hyperjump/assethub/internal/models"
)

// ObjectStore is blob storage with presigned read access.
// Get and Download return an apperrors.ErrNotFound error for missing keys.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Download streams an object to a local file.
	Download(ctx context.Context, bucket, key, filePath string) error
	PresignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, bucket, key string) error
	DeletePrefix(ctx context.Context, bucket, prefix string) error
	EnsureBuckets(ctx context.Context, buckets ...string) error
}

// Buckets names the buckets the pipeline writes to.
type Buckets struct {
	Assets     string
	Thumbnails string
	// Frames holds video keyframes under frames/{assetID}/.
	Frames string
}

// Names lists the configured buckets, skipping empty names.
func (b Buckets) Names() []string {
	var out []string
	for _, n := range []string{b.Assets, b.Thumbnails, b.Frames} {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// AssetKey returns the blob key {type}/{year}/{month}/{assetID}.{ext} for an upload made at t.
func AssetKey(typ models.AssetType, assetID, ext string, t time.Time) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%04d/%02d/%s.%s", typ, t.Year(), int(t.Month()), assetID, ext)
}

// FrameKey returns the blob key of a video keyframe.
func FrameKey(assetID string, frameIndex int) string {
	return fmt.Sprintf("frames/%s/%d.jpg", assetID, frameIndex)
}

// FramePrefix returns the key prefix shared by all keyframes of an asset.
func FramePrefix(assetID string) string {
	return path.Join("frames", assetID) + "/"
}

// ThumbnailKey returns the thumbnail key of an asset.
func ThumbnailKey(assetID string) string {
	return assetID + ".jpg"
}
