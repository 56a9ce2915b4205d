package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type PostgresStore struct {
	db PgxPool
}

func NewPostgresStore(db PgxPool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() PgxPool {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

const canvasColumns = `canvas_id, uid, title, state_storage_key, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCanvas(row rowScanner) (Canvas, error) {
	var item Canvas
	err := row.Scan(&item.CanvasID, &item.UID, &item.Title, &item.StateStorageKey, &item.CreatedAt, &item.UpdatedAt, &item.DeletedAt)
	return item, err
}

func (s *PostgresStore) ListCanvases(ctx context.Context, uid string, limit, offset int) ([]Canvas, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+canvasColumns+`
		FROM canvases
		WHERE uid = $1 AND deleted_at IS NULL
		ORDER BY updated_at DESC
		OFFSET $2 LIMIT $3
	`, uid, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list canvases: %w", err)
	}
	defer rows.Close()

	items := make([]Canvas, 0)
	for rows.Next() {
		item, err := scanCanvas(rows)
		if err != nil {
			return nil, fmt.Errorf("scan canvas: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canvases: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertCanvas(ctx context.Context, item Canvas) (Canvas, error) {
	created, err := scanCanvas(s.db.QueryRow(ctx, `
		INSERT INTO canvases (canvas_id, uid, title, state_storage_key)
		VALUES ($1, $2, $3, $4)
		RETURNING `+canvasColumns,
		item.CanvasID, item.UID, item.Title, item.StateStorageKey))
	if err != nil {
		return Canvas{}, fmt.Errorf("insert canvas: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetLiveCanvas(ctx context.Context, uid, canvasID string) (Canvas, error) {
	item, err := scanCanvas(s.db.QueryRow(ctx, `
		SELECT `+canvasColumns+`
		FROM canvases
		WHERE canvas_id = $1 AND uid = $2 AND deleted_at IS NULL
	`, canvasID, uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return Canvas{}, ErrNotFound
	}
	if err != nil {
		return Canvas{}, fmt.Errorf("get canvas: %w", err)
	}
	return item, nil
}

// UpdateCanvasTitle is a single conditional update; ErrNotFound means no live
// row matched the id and owner.
func (s *PostgresStore) UpdateCanvasTitle(ctx context.Context, uid, canvasID, title string) (Canvas, error) {
	item, err := scanCanvas(s.db.QueryRow(ctx, `
		UPDATE canvases
		SET title = $3, updated_at = NOW()
		WHERE canvas_id = $1 AND uid = $2 AND deleted_at IS NULL
		RETURNING `+canvasColumns,
		canvasID, uid, title))
	if errors.Is(err, pgx.ErrNoRows) {
		return Canvas{}, ErrNotFound
	}
	if err != nil {
		return Canvas{}, fmt.Errorf("update canvas: %w", err)
	}
	return item, nil
}

// SoftDeleteCanvas marks the row deleted. Already-deleted rows are left alone.
func (s *PostgresStore) SoftDeleteCanvas(ctx context.Context, canvasID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE canvases SET deleted_at = NOW()
		WHERE canvas_id = $1 AND deleted_at IS NULL
	`, canvasID)
	if err != nil {
		return fmt.Errorf("soft delete canvas: %w", err)
	}
	return nil
}

const staticFileColumns = `file_id, uid, entity_id, entity_type, storage_key, storage_size, content_type, original_name, created_at`

func scanStaticFile(row rowScanner) (StaticFile, error) {
	var item StaticFile
	err := row.Scan(&item.FileID, &item.UID, &item.EntityID, &item.EntityType, &item.StorageKey, &item.StorageSize, &item.ContentType, &item.OriginalName, &item.CreatedAt)
	return item, err
}

func (s *PostgresStore) InsertStaticFile(ctx context.Context, item StaticFile) (StaticFile, error) {
	created, err := scanStaticFile(s.db.QueryRow(ctx, `
		INSERT INTO static_files (file_id, uid, entity_id, entity_type, storage_key, storage_size, content_type, original_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+staticFileColumns,
		item.FileID, item.UID, item.EntityID, item.EntityType, item.StorageKey, item.StorageSize, item.ContentType, item.OriginalName))
	if err != nil {
		return StaticFile{}, fmt.Errorf("insert static file: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) ListStaticFiles(ctx context.Context, uid, entityID, entityType string) ([]StaticFile, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+staticFileColumns+`
		FROM static_files
		WHERE uid = $1 AND entity_id = $2 AND entity_type = $3
		ORDER BY created_at DESC
	`, uid, entityID, entityType)
	if err != nil {
		return nil, fmt.Errorf("list static files: %w", err)
	}
	defer rows.Close()

	items := make([]StaticFile, 0)
	for rows.Next() {
		item, err := scanStaticFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan static file: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate static files: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountStaticFiles(ctx context.Context, entityID, entityType string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM static_files WHERE entity_id = $1 AND entity_type = $2
	`, entityID, entityType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count static files: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeleteStaticFiles(ctx context.Context, entityID, entityType string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM static_files WHERE entity_id = $1 AND entity_type = $2
	`, entityID, entityType)
	if err != nil {
		return 0, fmt.Errorf("delete static files: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ComputeStorageUsage derives the usage figures for uid from live rows.
func (s *PostgresStore) ComputeStorageUsage(ctx context.Context, uid string) (StorageUsage, error) {
	usage := StorageUsage{UID: uid}
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM static_files WHERE uid = $1),
			(SELECT COALESCE(SUM(storage_size), 0)::BIGINT FROM static_files WHERE uid = $1),
			(SELECT COUNT(*) FROM canvases WHERE uid = $1 AND deleted_at IS NULL)
	`, uid).Scan(&usage.FileCount, &usage.FileBytes, &usage.CanvasCount)
	if err != nil {
		return StorageUsage{}, fmt.Errorf("compute storage usage: %w", err)
	}
	return usage, nil
}

// UpsertStorageUsage writes usage unless a newer sync already landed. The
// returned bool reports whether the row was written.
func (s *PostgresStore) UpsertStorageUsage(ctx context.Context, usage StorageUsage) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO storage_usage (uid, file_count, file_bytes, canvas_count, synced_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (uid) DO UPDATE SET
			file_count = EXCLUDED.file_count,
			file_bytes = EXCLUDED.file_bytes,
			canvas_count = EXCLUDED.canvas_count,
			synced_at = EXCLUDED.synced_at
		WHERE storage_usage.synced_at <= EXCLUDED.synced_at
	`, usage.UID, usage.FileCount, usage.FileBytes, usage.CanvasCount, usage.SyncedAt)
	if err != nil {
		return false, fmt.Errorf("upsert storage usage: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetStorageUsage(ctx context.Context, uid string) (StorageUsage, error) {
	var usage StorageUsage
	err := s.db.QueryRow(ctx, `
		SELECT uid, file_count, file_bytes, canvas_count, synced_at
		FROM storage_usage WHERE uid = $1
	`, uid).Scan(&usage.UID, &usage.FileCount, &usage.FileBytes, &usage.CanvasCount, &usage.SyncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StorageUsage{}, ErrNotFound
	}
	if err != nil {
		return StorageUsage{}, fmt.Errorf("get storage usage: %w", err)
	}
	return usage, nil
}
