package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"knowspace/api/internal/logging"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
// A nil Meili turns every index operation into a no-op.
type Service struct {
	meili  *Meili
	pgfts  *PgFTS
	logger *zap.Logger
}

// NewService creates a search service. meili and pgfts may be nil.
func NewService(meili *Meili, pgfts *PgFTS, logger *zap.Logger) *Service {
	return &Service{meili: meili, pgfts: pgfts, logger: logging.OrNop(logger).Named("search")}
}

func (s *Service) indexing() bool {
	return s != nil && s.meili != nil && s.meili.Healthy()
}

// SearchCanvases tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) SearchCanvases(ctx context.Context, q Query) Response {
	if s.indexing() {
		results, total, err := s.meili.SearchCanvases(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", zap.Error(err))
	}

	if s == nil || s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.pgfts.SearchCanvases(ctx, q)
	if err != nil {
		s.logger.Error("pgfts error", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexCanvas indexes a canvas (fire-and-forget to Meilisearch).
func (s *Service) IndexCanvas(c CanvasRecord) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.IndexCanvases([]CanvasRecord{c}); err != nil {
			s.logger.Warn("index canvas", zap.String("canvasId", c.ID), zap.Error(err))
		}
	}()
}

// DeleteCanvas removes a canvas from the search index (fire-and-forget).
func (s *Service) DeleteCanvas(id string) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.DeleteCanvas(id); err != nil {
			s.logger.Warn("delete canvas", zap.String("canvasId", id), zap.Error(err))
		}
	}()
}

// IndexFile indexes an uploaded file (fire-and-forget to Meilisearch).
func (s *Service) IndexFile(f FileRecord) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.IndexFiles([]FileRecord{f}); err != nil {
			s.logger.Warn("index file", zap.String("fileId", f.ID), zap.Error(err))
		}
	}()
}

// RemoveFilesByEntity drops every indexed file of one entity. It runs
// synchronously so the caller observes the failure.
func (s *Service) RemoveFilesByEntity(uid, entityID, entityType string) error {
	if !s.indexing() {
		return nil
	}
	if err := s.meili.DeleteFilesByEntity(uid, entityID, entityType); err != nil {
		return fmt.Errorf("remove indexed files for %s %s: %w", entityType, entityID, err)
	}
	return nil
}

// ReindexCanvasesFromPG pushes every live canvas from PostgreSQL into Meilisearch.
func (s *Service) ReindexCanvasesFromPG(ctx context.Context) {
	if !s.indexing() || s.pgfts == nil {
		return
	}
	canvases, err := s.pgfts.LoadCanvasRecords(ctx)
	if err != nil {
		s.logger.Error("reindex load failed", zap.Error(err))
		return
	}
	if err := s.meili.IndexCanvases(canvases); err != nil {
		s.logger.Error("reindex canvases", zap.Error(err))
		return
	}
	s.logger.Info("reindexed canvases", zap.Int("count", len(canvases)))
}

// Close stops the Meilisearch health monitor.
func (s *Service) Close() {
	if s != nil && s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
