package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"knowspace/api/internal/collab"
	"knowspace/api/internal/search"
	"knowspace/api/internal/store"
	"knowspace/api/internal/util"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	maxTitleLength  = 512
)

type CreateCanvasInput struct {
	Title string `json:"title"`
}

type UpdateCanvasInput struct {
	CanvasID string  `json:"canvasId"`
	Title    *string `json:"title"`
}

type DeleteCanvasInput struct {
	CanvasID string `json:"canvasId"`
}

func normalizePage(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return pageSize, (page - 1) * pageSize
}

// ListCanvases returns one page of the owner's live canvases, most recently
// updated first.
func (s *Service) ListCanvases(ctx context.Context, owner string, page, pageSize int) ([]store.Canvas, error) {
	limit, offset := normalizePage(page, pageSize)
	items, err := s.store.ListCanvases(ctx, owner, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []store.Canvas{}
	}
	return items, nil
}

// CreateCanvas inserts the canvas row, then seeds its collaborative document
// with the title and an empty node collection.
func (s *Service) CreateCanvas(ctx context.Context, owner string, in CreateCanvasInput) (store.Canvas, error) {
	if len([]rune(in.Title)) > maxTitleLength {
		return store.Canvas{}, errValidation(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}

	canvasID := util.NewID("c")
	row, err := s.store.InsertCanvas(ctx, store.Canvas{
		CanvasID:        canvasID,
		UID:             owner,
		Title:           in.Title,
		StateStorageKey: collab.StateKey(canvasID),
	})
	if err != nil {
		return store.Canvas{}, err
	}

	conn, err := s.collab.OpenDirectConnection(ctx, canvasID, collab.Context{
		User:       owner,
		Entity:     row,
		EntityType: EntityCanvas,
	})
	if err != nil {
		return store.Canvas{}, fmt.Errorf("open canvas document %s: %w", canvasID, err)
	}
	defer conn.Disconnect()

	if err := conn.Transact(ctx, func(tx *collab.Txn) {
		tx.InsertText(collab.TitleField, 0, in.Title)
		collab.WarmUp(tx)
	}); err != nil {
		return store.Canvas{}, fmt.Errorf("initialize canvas document %s: %w", canvasID, err)
	}

	if ce := s.logger.Check(zap.DebugLevel, "canvas document initialized"); ce != nil {
		ce.Write(zap.String("canvasId", canvasID), zap.Any("document", conn.Document().ToJSON()))
	}

	s.search.IndexCanvas(search.CanvasRecordFrom(row))
	return row, nil
}

// UpdateCanvas renames a live canvas. The collaborative document is left as is.
func (s *Service) UpdateCanvas(ctx context.Context, owner string, in UpdateCanvasInput) (store.Canvas, error) {
	title := ""
	if in.Title != nil {
		title = *in.Title
	}
	if len([]rune(title)) > maxTitleLength {
		return store.Canvas{}, errValidation(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}

	row, err := s.store.UpdateCanvasTitle(ctx, owner, in.CanvasID, title)
	if errors.Is(err, store.ErrNotFound) {
		return store.Canvas{}, ErrCanvasNotFound(in.CanvasID)
	}
	if err != nil {
		return store.Canvas{}, err
	}
	s.search.IndexCanvas(search.CanvasRecordFrom(row))
	return row, nil
}

// DeleteCanvas soft-deletes a live canvas and cleans up everything attached to
// it, then asks the worker to resync the owner's storage usage. Cleanup steps
// run concurrently; the first failure is returned and nothing is rolled back.
func (s *Service) DeleteCanvas(ctx context.Context, owner string, in DeleteCanvasInput) error {
	row, err := s.store.GetLiveCanvas(ctx, owner, in.CanvasID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrCanvasNotFound(in.CanvasID)
	}
	if err != nil {
		return err
	}

	// A live session would write the state object back after it is removed.
	s.collab.Close(row.CanvasID)

	ref := EntityRef{EntityID: row.CanvasID, EntityType: EntityCanvas}
	var g errgroup.Group
	g.Go(func() error {
		return s.store.SoftDeleteCanvas(ctx, row.CanvasID)
	})
	g.Go(func() error {
		// Objects are located through the StaticFile rows, so the rows go last.
		if err := s.files.RemoveFilesByEntity(ctx, owner, ref); err != nil {
			return err
		}
		n, err := s.store.CountStaticFiles(ctx, ref.EntityID, ref.EntityType)
		if err != nil {
			return err
		}
		if n > 0 {
			if _, err := s.store.DeleteStaticFiles(ctx, ref.EntityID, ref.EntityType); err != nil {
				return err
			}
		}
		return nil
	})
	if strings.TrimSpace(row.StateStorageKey) != "" {
		g.Go(func() error {
			return s.objects.RemoveObject(ctx, row.StateStorageKey)
		})
	}
	s.search.DeleteCanvas(row.CanvasID)

	if err := g.Wait(); err != nil {
		s.logger.Error("canvas cleanup failed",
			zap.String("canvasId", row.CanvasID),
			zap.String("uid", owner),
			zap.Error(err),
		)
		return err
	}

	if err := s.enqueueUsageSync(ctx, owner); err != nil {
		return fmt.Errorf("enqueue usage sync for %s: %w", owner, err)
	}
	s.logger.Info("canvas deleted", zap.String("canvasId", row.CanvasID), zap.String("uid", owner))
	return nil
}

// GetCanvasState returns the collaborative document of a live canvas.
func (s *Service) GetCanvasState(ctx context.Context, owner, canvasID string) (map[string]any, error) {
	row, err := s.store.GetLiveCanvas(ctx, owner, canvasID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCanvasNotFound(canvasID)
	}
	if err != nil {
		return nil, err
	}
	state, err := s.collab.Snapshot(ctx, row.CanvasID)
	if errors.Is(err, collab.ErrNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// SearchCanvases matches the owner's canvas titles.
func (s *Service) SearchCanvases(ctx context.Context, owner, text string, limit, offset int) search.Response {
	return s.search.SearchCanvases(ctx, search.Query{Text: text, UID: owner, Limit: limit, Offset: offset})
}
