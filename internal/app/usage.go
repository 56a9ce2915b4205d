package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"knowspace/api/internal/queue"
	"knowspace/api/internal/store"
)

// SyncStorageUsage recomputes the user's usage from live rows. A job older
// than the last recorded sync is skipped by the store.
func (s *Service) SyncStorageUsage(ctx context.Context, data queue.SyncStorageUsageJobData) error {
	if data.UID == "" {
		return errors.New("sync storage usage: uid is required")
	}
	usage, err := s.store.ComputeStorageUsage(ctx, data.UID)
	if err != nil {
		return err
	}
	usage.SyncedAt = data.Timestamp
	if usage.SyncedAt.IsZero() {
		usage.SyncedAt = s.now().UTC()
	}

	written, err := s.store.UpsertStorageUsage(ctx, usage)
	if err != nil {
		return err
	}
	if !written {
		s.logger.Debug("stale usage sync skipped", zap.String("uid", data.UID), zap.Time("timestamp", data.Timestamp))
		return nil
	}
	s.logger.Debug("storage usage synced",
		zap.String("uid", usage.UID),
		zap.Int64("fileCount", usage.FileCount),
		zap.Int64("fileBytes", usage.FileBytes),
		zap.Int64("canvasCount", usage.CanvasCount),
	)
	return nil
}

// HandleSyncStorageUsageJob adapts SyncStorageUsage to a queue.Handler.
func (s *Service) HandleSyncStorageUsageJob(ctx context.Context, job queue.Job) error {
	var data queue.SyncStorageUsageJobData
	if err := job.Decode(&data); err != nil {
		return err
	}
	if err := s.SyncStorageUsage(ctx, data); err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	return nil
}

// GetStorageUsage returns the last synced usage, or a zero row before the
// first sync.
func (s *Service) GetStorageUsage(ctx context.Context, uid string) (store.StorageUsage, error) {
	usage, err := s.store.GetStorageUsage(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return store.StorageUsage{UID: uid}, nil
	}
	if err != nil {
		return store.StorageUsage{}, err
	}
	return usage, nil
}
