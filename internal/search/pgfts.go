package search

import (
	"context"
	"fmt"
	"strings"

	"knowspace/api/internal/store"
)

// PgFTS searches canvas titles with PostgreSQL full-text search. It backs
// SearchCanvases whenever Meilisearch is missing or unhealthy.
type PgFTS struct {
	db store.PgxPool
}

func NewPgFTS(db store.PgxPool) *PgFTS {
	return &PgFTS{db: db}
}

// SearchCanvases matches live canvases of q.UID against q.Text, best rank first.
func (p *PgFTS) SearchCanvases(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := normalizeLimit(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := p.db.QueryRow(ctx, `
		SELECT count(*)
		FROM canvases
		WHERE uid = $1 AND deleted_at IS NULL
		  AND to_tsvector('simple', title) @@ plainto_tsquery('simple', $2)
	`, q.UID, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.Query(ctx, `
		SELECT canvas_id, title,
			ts_headline('simple', title, plainto_tsquery('simple', $2), 'StartSel=<mark>,StopSel=</mark>') AS snippet
		FROM canvases
		WHERE uid = $1 AND deleted_at IS NULL
		  AND to_tsvector('simple', title) @@ plainto_tsquery('simple', $2)
		ORDER BY ts_rank(to_tsvector('simple', title), plainto_tsquery('simple', $2)) DESC, updated_at DESC
		LIMIT $3 OFFSET $4
	`, q.UID, q.Text, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadCanvasRecords returns every live canvas for a full reindex.
func (p *PgFTS) LoadCanvasRecords(ctx context.Context) ([]CanvasRecord, error) {
	rows, err := p.db.Query(ctx, `
		SELECT canvas_id, uid, title, updated_at
		FROM canvases
		WHERE deleted_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("load canvases: %w", err)
	}
	defer rows.Close()

	canvases := make([]CanvasRecord, 0)
	for rows.Next() {
		var c store.Canvas
		if err := rows.Scan(&c.CanvasID, &c.UID, &c.Title, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan canvas: %w", err)
		}
		canvases = append(canvases, CanvasRecordFrom(c))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canvases: %w", err)
	}
	return canvases, nil
}

// CanvasRecordFrom converts a stored canvas into its index record.
func CanvasRecordFrom(c store.Canvas) CanvasRecord {
	return CanvasRecord{
		ID:        c.CanvasID,
		UID:       c.UID,
		Title:     c.Title,
		UpdatedAt: c.UpdatedAt.UnixMilli(),
	}
}

// FileRecordFrom converts a stored file into its index record.
func FileRecordFrom(f store.StaticFile) FileRecord {
	return FileRecord{
		ID:           f.FileID,
		UID:          f.UID,
		EntityID:     f.EntityID,
		EntityType:   f.EntityType,
		OriginalName: f.OriginalName,
		ContentType:  f.ContentType,
		StorageSize:  f.StorageSize,
	}
}
