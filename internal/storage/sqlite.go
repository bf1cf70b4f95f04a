package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private in-memory catalog.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = dbPath + "?_busy_timeout=5000&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		blob_key TEXT NOT NULL,
		thumbnail_key TEXT NOT NULL DEFAULT '',
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		vector_status TEXT NOT NULL DEFAULT 'pending',
		vector_id TEXT,
		view_count INTEGER NOT NULL DEFAULT 0,
		use_count INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_assets_live_hash ON assets(content_hash) WHERE is_deleted = 0;
	CREATE INDEX IF NOT EXISTS idx_assets_type ON assets(type);
	CREATE INDEX IF NOT EXISTS idx_assets_status ON assets(vector_status);
	CREATE INDEX IF NOT EXISTS idx_assets_created_at ON assets(created_at);

	CREATE TABLE IF NOT EXISTS video_frames (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL,
		frame_index INTEGER NOT NULL,
		timestamp_ms INTEGER NOT NULL,
		blob_key TEXT NOT NULL,
		vector_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (asset_id, frame_index),
		FOREIGN KEY (asset_id) REFERENCES assets(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		color TEXT NOT NULL DEFAULT '#6366f1',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS asset_tags (
		asset_id TEXT NOT NULL,
		tag_id TEXT NOT NULL,
		PRIMARY KEY (asset_id, tag_id),
		FOREIGN KEY (asset_id) REFERENCES assets(id) ON DELETE CASCADE,
		FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS usage_history (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (asset_id) REFERENCES assets(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_usage_created_at ON usage_history(created_at);

	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		parent_id TEXT REFERENCES collections(id) ON DELETE SET NULL,
		cover_asset_id TEXT REFERENCES assets(id) ON DELETE SET NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS collection_assets (
		collection_id TEXT NOT NULL,
		asset_id TEXT NOT NULL,
		added_at TIMESTAMP NOT NULL,
		PRIMARY KEY (collection_id, asset_id),
		FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE,
		FOREIGN KEY (asset_id) REFERENCES assets(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

const assetColumns = `id, name, description, type, mime_type, file_size, content_hash, blob_key,
	thumbnail_key, width, height, vector_status, vector_id, view_count, use_count, is_deleted,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*models.MediaAsset, error) {
	var a models.MediaAsset
	var vectorID sql.NullString
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Type, &a.MimeType, &a.FileSize,
		&a.ContentHash, &a.BlobKey, &a.ThumbnailKey, &a.Width, &a.Height, &a.VectorStatus,
		&vectorID, &a.ViewCount, &a.UseCount, &a.Deleted, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.VectorID = vectorID.String
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

// CreateAsset inserts an asset. A live asset with the same content hash yields a duplicate error.
func (s *SQLiteStorage) CreateAsset(ctx context.Context, asset *models.MediaAsset) error {
	now := time.Now().UTC()
	asset.CreatedAt = now
	asset.UpdatedAt = now
	if asset.VectorStatus == "" {
		asset.VectorStatus = models.StatusPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (`+assetColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 0, 0, 0, ?, ?)`,
		asset.ID, asset.Name, asset.Description, asset.Type, asset.MimeType, asset.FileSize,
		asset.ContentHash, asset.BlobKey, asset.ThumbnailKey, asset.Width, asset.Height,
		asset.VectorStatus, asset.CreatedAt, asset.UpdatedAt,
	)
	if isUniqueViolation(err) {
		existing, ferr := s.FindAssetByHash(ctx, asset.ContentHash)
		if ferr == nil && existing != nil {
			return apperrors.Duplicate(existing.ID, asset.ContentHash)
		}
		return apperrors.Duplicate("", asset.ContentHash)
	}
	if err != nil {
		return fmt.Errorf("failed to insert asset: %w", err)
	}
	return nil
}

// GetAsset returns a live asset by ID.
func (s *SQLiteStorage) GetAsset(ctx context.Context, id string) (*models.MediaAsset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = ? AND is_deleted = 0`, id)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("asset", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return a, nil
}

// GetAssets returns the live assets among ids, keyed by ID. Missing or deleted ids are absent.
func (s *SQLiteStorage) GetAssets(ctx context.Context, ids []string) (map[string]*models.MediaAsset, error) {
	out := make(map[string]*models.MediaAsset, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE is_deleted = 0 AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get assets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// FindAssetByHash returns the live asset with the given content hash, or nil when none exists.
func (s *SQLiteStorage) FindAssetByHash(ctx context.Context, hash string) (*models.MediaAsset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE content_hash = ? AND is_deleted = 0`, hash)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up hash: %w", err)
	}
	return a, nil
}

// ListAssets returns one page of live assets, newest first, and the total matching count.
func (s *SQLiteStorage) ListAssets(ctx context.Context, filter models.AssetFilter) ([]*models.MediaAsset, int, error) {
	filter.Normalize()

	where := []string{"is_deleted = 0"}
	var args []any
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		where = append(where, "vector_status = ?")
		args = append(args, filter.Status)
	}
	if len(filter.IDs) > 0 {
		where = append(where, "id IN ("+strings.TrimSuffix(strings.Repeat("?,", len(filter.IDs)), ",")+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count assets: %w", err)
	}

	pageArgs := append(append([]any(nil), args...), filter.PageSize, (filter.Page-1)*filter.PageSize)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE `+clause+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []*models.MediaAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, 0, err
		}
		assets = append(assets, a)
	}
	return assets, total, rows.Err()
}

// ClaimAsset takes the processing lease on an asset.
func (s *SQLiteStorage) ClaimAsset(ctx context.Context, id string, staleAfter time.Duration) (bool, error) {
	now := time.Now().UTC()
	var cutoff time.Time
	if staleAfter > 0 {
		cutoff = now.Add(-staleAfter)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE assets SET vector_status = ?, vector_id = NULL, updated_at = ?
		 WHERE id = ? AND is_deleted = 0
		   AND (vector_status IN (?, ?) OR (vector_status = ? AND updated_at < ?))`,
		models.StatusProcessing, now, id,
		models.StatusPending, models.StatusFailed,
		models.StatusProcessing, cutoff,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim asset: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

// SetVectorStatus records the vectorization outcome. vectorID is stored only for completed.
func (s *SQLiteStorage) SetVectorStatus(ctx context.Context, id string, status models.VectorStatus, vectorID string) error {
	var vid sql.NullString
	if status == models.StatusCompleted && vectorID != "" {
		vid = sql.NullString{String: vectorID, Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE assets SET vector_status = ?, vector_id = ?, updated_at = ? WHERE id = ?`,
		status, vid, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set vector status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("asset", id)
	}
	return nil
}

// SoftDeleteAsset hides an asset and frees its content hash for re-upload.
func (s *SQLiteStorage) SoftDeleteAsset(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE assets SET is_deleted = 1, updated_at = ? WHERE id = ? AND is_deleted = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("asset", id)
	}
	return nil
}

// InsertFrame writes a keyframe row. A second write for the same (asset, index) replaces the first.
func (s *SQLiteStorage) InsertFrame(ctx context.Context, frame *models.VideoFrame) error {
	frame.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO video_frames (id, asset_id, frame_index, timestamp_ms, blob_key, vector_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (asset_id, frame_index) DO UPDATE SET
		   id = excluded.id, timestamp_ms = excluded.timestamp_ms, blob_key = excluded.blob_key,
		   vector_id = excluded.vector_id, created_at = excluded.created_at`,
		frame.ID, frame.AssetID, frame.FrameIndex, frame.TimestampMs, frame.BlobKey, frame.VectorID, frame.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert frame: %w", err)
	}
	return nil
}

// ListFrames returns an asset's frames ordered by frame index.
func (s *SQLiteStorage) ListFrames(ctx context.Context, assetID string) ([]*models.VideoFrame, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, asset_id, frame_index, timestamp_ms, blob_key, vector_id, created_at
		 FROM video_frames WHERE asset_id = ? ORDER BY frame_index`, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	defer rows.Close()

	var frames []*models.VideoFrame
	for rows.Next() {
		var f models.VideoFrame
		if err := rows.Scan(&f.ID, &f.AssetID, &f.FrameIndex, &f.TimestampMs, &f.BlobKey, &f.VectorID, &f.CreatedAt); err != nil {
			return nil, err
		}
		frames = append(frames, &f)
	}
	return frames, rows.Err()
}

// DeleteFrames removes all frames of an asset.
func (s *SQLiteStorage) DeleteFrames(ctx context.Context, assetID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM video_frames WHERE asset_id = ?`, assetID); err != nil {
		return fmt.Errorf("failed to delete frames: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
