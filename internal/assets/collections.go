package assets

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/models"
)

// CollectionDetail is a collection with a URL for its cover thumbnail.
type CollectionDetail struct {
	*models.Collection
	CoverURL string `json:"cover_url,omitempty"`
}

// CollectionItem summarizes a member asset.
type CollectionItem struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Type         models.AssetType `json:"type"`
	ThumbnailURL string           `json:"thumbnail_url,omitempty"`
}

func (s *Service) collectionDetail(ctx context.Context, c *models.Collection) *CollectionDetail {
	d := &CollectionDetail{Collection: c}
	if c.CoverThumbnailKey != "" {
		d.CoverURL = s.presign(ctx, s.buckets.Thumbnails, c.CoverThumbnailKey)
	}
	return d
}

// CreateCollection creates a collection, optionally nested under parentID.
func (s *Service) CreateCollection(ctx context.Context, name, description, parentID string) (*CollectionDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Validation("collection name is required")
	}
	c := &models.Collection{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		ParentID:    parentID,
	}
	if err := s.catalog.CreateCollection(ctx, c); err != nil {
		return nil, err
	}
	return &CollectionDetail{Collection: c}, nil
}

func (s *Service) GetCollection(ctx context.Context, id string) (*CollectionDetail, error) {
	c, err := s.catalog.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.collectionDetail(ctx, c), nil
}

// ListCollections returns every collection with its cover URL.
func (s *Service) ListCollections(ctx context.Context) ([]*CollectionDetail, error) {
	cs, err := s.catalog.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*CollectionDetail, 0, len(cs))
	for _, c := range cs {
		out = append(out, s.collectionDetail(ctx, c))
	}
	return out, nil
}

// UpdateCollection changes the name and/or description. A nil field is left as is;
// a blank name is rejected.
func (s *Service) UpdateCollection(ctx context.Context, id string, name, description *string) (*CollectionDetail, error) {
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, apperrors.Validation("collection name cannot be empty")
		}
		name = &trimmed
	}
	if err := s.catalog.UpdateCollection(ctx, id, name, description); err != nil {
		return nil, err
	}
	return s.GetCollection(ctx, id)
}

func (s *Service) DeleteCollection(ctx context.Context, id string) error {
	return s.catalog.DeleteCollection(ctx, id)
}

// AddToCollection adds assets and returns how many were not already members.
func (s *Service) AddToCollection(ctx context.Context, id string, assetIDs []string) (int, error) {
	if len(assetIDs) == 0 {
		return 0, apperrors.Validation("asset_ids is required")
	}
	return s.catalog.AddToCollection(ctx, id, assetIDs)
}

// RemoveFromCollection removes assets and returns how many were members.
func (s *Service) RemoveFromCollection(ctx context.Context, id string, assetIDs []string) (int, error) {
	if len(assetIDs) == 0 {
		return 0, apperrors.Validation("asset_ids is required")
	}
	return s.catalog.RemoveFromCollection(ctx, id, assetIDs)
}

// CollectionAssets lists the live members of a collection with thumbnail URLs.
func (s *Service) CollectionAssets(ctx context.Context, id string) ([]*CollectionItem, error) {
	members, err := s.catalog.ListCollectionAssets(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]*CollectionItem, 0, len(members))
	for _, a := range members {
		item := &CollectionItem{ID: a.ID, Name: a.Name, Type: a.Type}
		if a.ThumbnailKey != "" {
			item.ThumbnailURL = s.presign(ctx, s.buckets.Thumbnails, a.ThumbnailKey)
		}
		out = append(out, item)
	}
	return out, nil
}
