package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/models"
)

// CreateTag inserts a tag. A tag with the same slug yields a duplicate error.
func (s *SQLiteStorage) CreateTag(ctx context.Context, tag *models.Tag) error {
	tag.CreatedAt = time.Now().UTC()
	if tag.Color == "" {
		tag.Color = "#6366f1"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (id, name, slug, color, created_at) VALUES (?, ?, ?, ?, ?)`,
		tag.ID, tag.Name, tag.Slug, tag.Color, tag.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: tag %s already exists", apperrors.ErrDuplicate, tag.Slug)
	}
	if err != nil {
		return fmt.Errorf("failed to insert tag: %w", err)
	}
	return nil
}

// ListTags returns all tags, most used first. AssetCount only counts live assets.
func (s *SQLiteStorage) ListTags(ctx context.Context) ([]*models.Tag, error) {
	return s.queryTags(ctx,
		`SELECT t.id, t.name, t.slug, t.color, t.created_at, COUNT(a.id)
		 FROM tags t
		 LEFT JOIN asset_tags at ON at.tag_id = t.id
		 LEFT JOIN assets a ON a.id = at.asset_id AND a.is_deleted = 0
		 GROUP BY t.id
		 ORDER BY COUNT(a.id) DESC, t.name`)
}

// GetTag returns one tag with its live asset count.
func (s *SQLiteStorage) GetTag(ctx context.Context, id string) (*models.Tag, error) {
	tags, err := s.queryTags(ctx,
		`SELECT t.id, t.name, t.slug, t.color, t.created_at, COUNT(a.id)
		 FROM tags t
		 LEFT JOIN asset_tags at ON at.tag_id = t.id
		 LEFT JOIN assets a ON a.id = at.asset_id AND a.is_deleted = 0
		 WHERE t.id = ?
		 GROUP BY t.id`, id)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, apperrors.NotFound("tag", id)
	}
	return tags[0], nil
}

// UpdateTag renames and/or recolors a tag. Empty values are left unchanged; a rename
// that collides with another tag's slug yields a duplicate error.
func (s *SQLiteStorage) UpdateTag(ctx context.Context, id, name, slug, color string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tags SET
			name = COALESCE(NULLIF(?, ''), name),
			slug = COALESCE(NULLIF(?, ''), slug),
			color = COALESCE(NULLIF(?, ''), color)
		 WHERE id = ?`, name, slug, color, id)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: tag %s already exists", apperrors.ErrDuplicate, slug)
	}
	if err != nil {
		return fmt.Errorf("failed to update tag: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFound("tag", id)
	}
	return nil
}

// TagAssets links every live asset in assetIDs to every tag in tagIDs in one
// transaction and returns the number of new links. Unknown IDs are skipped.
func (s *SQLiteStorage) TagAssets(ctx context.Context, assetIDs, tagIDs []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	added := 0
	for _, assetID := range assetIDs {
		for _, tagID := range tagIDs {
			result, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO asset_tags (asset_id, tag_id)
				 SELECT a.id, t.id FROM assets a, tags t
				 WHERE a.id = ? AND a.is_deleted = 0 AND t.id = ?`, assetID, tagID)
			if err != nil {
				return 0, fmt.Errorf("failed to tag asset: %w", err)
			}
			n, _ := result.RowsAffected()
			added += int(n)
		}
	}
	return added, tx.Commit()
}

// ListAssetTags returns the tags attached to an asset.
func (s *SQLiteStorage) ListAssetTags(ctx context.Context, assetID string) ([]*models.Tag, error) {
	return s.queryTags(ctx,
		`SELECT t.id, t.name, t.slug, t.color, t.created_at, 0
		 FROM tags t JOIN asset_tags at ON at.tag_id = t.id
		 WHERE at.asset_id = ?
		 ORDER BY t.name`, assetID)
}

func (s *SQLiteStorage) queryTags(ctx context.Context, query string, args ...any) ([]*models.Tag, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.Color, &t.CreatedAt, &t.AssetCount); err != nil {
			return nil, err
		}
		tags = append(tags, &t)
	}
	return tags, rows.Err()
}

// DeleteTag removes a tag and its asset links.
func (s *SQLiteStorage) DeleteTag(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM asset_tags WHERE tag_id = ?`, id); err != nil {
		return fmt.Errorf("failed to unlink tag: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFound("tag", id)
	}
	return tx.Commit()
}

// TagAsset links a tag to a live asset. Linking twice is a no-op.
func (s *SQLiteStorage) TagAsset(ctx context.Context, assetID, tagID string) error {
	if _, err := s.GetAsset(ctx, assetID); err != nil {
		return err
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tags WHERE id = ?`, tagID).Scan(&exists)
	if err == sql.ErrNoRows {
		return apperrors.NotFound("tag", tagID)
	}
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO asset_tags (asset_id, tag_id) VALUES (?, ?)`, assetID, tagID); err != nil {
		return fmt.Errorf("failed to tag asset: %w", err)
	}
	return nil
}

// UntagAsset removes a tag link. Removing a missing link is a no-op.
func (s *SQLiteStorage) UntagAsset(ctx context.Context, assetID, tagID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM asset_tags WHERE asset_id = ? AND tag_id = ?`, assetID, tagID); err != nil {
		return fmt.Errorf("failed to untag asset: %w", err)
	}
	return nil
}

// RecordUsage appends a history row and bumps the matching counter in one transaction.
func (s *SQLiteStorage) RecordUsage(ctx context.Context, rec *models.UsageRecord) error {
	rec.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	column := "use_count"
	if rec.ActionType == models.ActionView {
		column = "view_count"
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE assets SET `+column+` = `+column+` + 1 WHERE id = ? AND is_deleted = 0`, rec.AssetID)
	if err != nil {
		return fmt.Errorf("failed to bump %s: %w", column, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFound("asset", rec.AssetID)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO usage_history (id, asset_id, action_type, context, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.AssetID, rec.ActionType, rec.Context, rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return tx.Commit()
}

// ListUsage returns history rows newest first, optionally restricted to one action type.
func (s *SQLiteStorage) ListUsage(ctx context.Context, action string, offset, limit int) ([]*models.UsageRecord, error) {
	query := `SELECT h.id, h.asset_id, h.action_type, h.context, h.created_at
		 FROM usage_history h JOIN assets a ON a.id = h.asset_id AND a.is_deleted = 0`
	var args []any
	if action != "" {
		query += ` WHERE h.action_type = ?`
		args = append(args, action)
	}
	query += ` ORDER BY h.created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer rows.Close()

	var records []*models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		if err := rows.Scan(&r.ID, &r.AssetID, &r.ActionType, &r.Context, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// RecentAssetIDs returns up to limit distinct live asset IDs ordered by their latest usage.
func (s *SQLiteStorage) RecentAssetIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.asset_id FROM usage_history h
		 JOIN assets a ON a.id = h.asset_id AND a.is_deleted = 0
		 GROUP BY h.asset_id
		 ORDER BY MAX(h.created_at) DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent assets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats counts live assets by type and status, and stored frames.
func (s *SQLiteStorage) Stats(ctx context.Context) (*models.CatalogStats, error) {
	stats := &models.CatalogStats{
		ByType:   make(map[models.AssetType]int),
		ByStatus: make(map[models.VectorStatus]int),
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, vector_status, COUNT(*) FROM assets WHERE is_deleted = 0 GROUP BY type, vector_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ models.AssetType
		var status models.VectorStatus
		var n int
		if err := rows.Scan(&typ, &status, &n); err != nil {
			return nil, err
		}
		stats.ByType[typ] += n
		stats.ByStatus[status] += n
		stats.TotalAssets += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM video_frames`).Scan(&stats.TotalFrames); err != nil {
		return nil, fmt.Errorf("failed to count frames: %w", err)
	}
	return stats, nil
}
