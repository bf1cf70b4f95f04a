package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/models"
)

// liveMembers selects the live assets of the collection bound to collections.id.
const liveMembers = `FROM collection_assets x
	JOIN assets a ON a.id = x.asset_id AND a.is_deleted = 0
	WHERE x.collection_id = collections.id`

const collectionQuery = `SELECT collections.id, collections.name, collections.description,
	COALESCE(collections.parent_id, ''), COALESCE(cover.id, ''), COALESCE(cover.thumbnail_key, ''),
	collections.created_at, (SELECT COUNT(*) ` + liveMembers + `)
	FROM collections
	LEFT JOIN assets cover ON cover.id = COALESCE(
		(SELECT id FROM assets WHERE id = collections.cover_asset_id AND is_deleted = 0),
		(SELECT x.asset_id ` + liveMembers + ` ORDER BY x.rowid LIMIT 1))`

func scanCollection(row rowScanner) (*models.Collection, error) {
	var c models.Collection
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.ParentID, &c.CoverAssetID,
		&c.CoverThumbnailKey, &c.CreatedAt, &c.AssetCount); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCollection inserts a collection. A parent, when given, must exist.
func (s *SQLiteStorage) CreateCollection(ctx context.Context, c *models.Collection) error {
	c.CreatedAt = time.Now().UTC()
	if c.ParentID != "" {
		err := s.collectionExists(ctx, s.db, c.ParentID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Validation("parent collection %s does not exist", c.ParentID)
		}
		if err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (id, name, description, parent_id, created_at) VALUES (?, ?, ?, NULLIF(?, ''), ?)`,
		c.ID, c.Name, c.Description, c.ParentID, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert collection: %w", err)
	}
	return nil
}

// GetCollection returns one collection with its live asset count and cover. A cover
// that was deleted falls back to the oldest live member.
func (s *SQLiteStorage) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	c, err := scanCollection(s.db.QueryRowContext(ctx, collectionQuery+` WHERE collections.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("collection", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return c, nil
}

// ListCollections returns every collection, newest first.
func (s *SQLiteStorage) ListCollections(ctx context.Context) ([]*models.Collection, error) {
	rows, err := s.db.QueryContext(ctx, collectionQuery+` ORDER BY collections.created_at DESC, collections.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var out []*models.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCollection changes the name and/or description. Nil leaves a field as is.
func (s *SQLiteStorage) UpdateCollection(ctx context.Context, id string, name, description *string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE collections SET name = COALESCE(?, name), description = COALESCE(?, description) WHERE id = ?`,
		name, description, id)
	if err != nil {
		return fmt.Errorf("failed to update collection: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFound("collection", id)
	}
	return nil
}

// DeleteCollection removes a collection and its membership rows. Child collections
// become top level; the member assets are untouched.
func (s *SQLiteStorage) DeleteCollection(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM collection_assets WHERE collection_id = ?`, id); err != nil {
		return fmt.Errorf("failed to empty collection: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE collections SET parent_id = NULL WHERE parent_id = ?`, id); err != nil {
		return fmt.Errorf("failed to detach child collections: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFound("collection", id)
	}
	return tx.Commit()
}

// AddToCollection adds live assets to a collection and returns how many were new.
// Unknown or deleted asset IDs are skipped. The first member becomes the cover.
func (s *SQLiteStorage) AddToCollection(ctx context.Context, id string, assetIDs []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := s.collectionExists(ctx, tx, id); err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	added := 0
	for _, assetID := range assetIDs {
		result, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO collection_assets (collection_id, asset_id, added_at)
			 SELECT ?, id, ? FROM assets WHERE id = ? AND is_deleted = 0`, id, now, assetID)
		if err != nil {
			return 0, fmt.Errorf("failed to add asset to collection: %w", err)
		}
		n, _ := result.RowsAffected()
		added += int(n)
	}
	if err := refreshCover(ctx, tx, id); err != nil {
		return 0, err
	}
	return added, tx.Commit()
}

// RemoveFromCollection drops assets from a collection and returns how many were members.
// Removing the cover promotes the oldest remaining member.
func (s *SQLiteStorage) RemoveFromCollection(ctx context.Context, id string, assetIDs []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := s.collectionExists(ctx, tx, id); err != nil {
		return 0, err
	}
	removed := 0
	for _, assetID := range assetIDs {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM collection_assets WHERE collection_id = ? AND asset_id = ?`, id, assetID)
		if err != nil {
			return 0, fmt.Errorf("failed to remove asset from collection: %w", err)
		}
		n, _ := result.RowsAffected()
		removed += int(n)
	}
	if err := refreshCover(ctx, tx, id); err != nil {
		return 0, err
	}
	return removed, tx.Commit()
}

// ListCollectionAssets returns the live members of a collection in the order they were added.
func (s *SQLiteStorage) ListCollectionAssets(ctx context.Context, id string) ([]*models.MediaAsset, error) {
	if err := s.collectionExists(ctx, s.db, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets
		 JOIN collection_assets x ON x.asset_id = assets.id
		 WHERE x.collection_id = ? AND assets.is_deleted = 0
		 ORDER BY x.rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection assets: %w", err)
	}
	defer rows.Close()

	var out []*models.MediaAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStorage) collectionExists(ctx context.Context, q queryer, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return apperrors.NotFound("collection", id)
	}
	return err
}

// refreshCover points the cover at the oldest live member unless the current cover
// is still a live member.
func refreshCover(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE collections
		 SET cover_asset_id = (SELECT x.asset_id `+liveMembers+` ORDER BY x.rowid LIMIT 1)
		 WHERE id = ? AND (cover_asset_id IS NULL OR NOT EXISTS (
			SELECT 1 `+liveMembers+` AND x.asset_id = collections.cover_asset_id))`, id)
	if err != nil {
		return fmt.Errorf("failed to update collection cover: %w", err)
	}
	return nil
}
