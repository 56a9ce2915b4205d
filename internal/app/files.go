package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"knowspace/api/internal/logging"
	"knowspace/api/internal/objstore"
	"knowspace/api/internal/search"
	"knowspace/api/internal/store"
	"knowspace/api/internal/util"
)

// EntityRef is the weak reference from a StaticFile to the thing it belongs to.
type EntityRef struct {
	EntityID   string `json:"entityId"`
	EntityType string `json:"entityType"`
}

func (r EntityRef) validate() error {
	if strings.TrimSpace(r.EntityID) == "" {
		return errValidation("entityId is required")
	}
	switch r.EntityType {
	case EntityCanvas, EntityResource, EntityDocument:
		return nil
	default:
		return errValidation(fmt.Sprintf("unsupported entityType %q", r.EntityType))
	}
}

type UploadInput struct {
	Entity       EntityRef
	OriginalName string
	ContentType  string
	Data         []byte
}

type fileStore interface {
	InsertStaticFile(context.Context, store.StaticFile) (store.StaticFile, error)
	ListStaticFiles(ctx context.Context, uid, entityID, entityType string) ([]store.StaticFile, error)
}

// FileService owns the bytes behind StaticFile rows.
type FileService struct {
	store   fileStore
	objects objstore.Store
	index   SearchIndex
	logger  *zap.Logger
}

func NewFileService(st fileStore, objects objstore.Store, index SearchIndex, logger *zap.Logger) *FileService {
	if index == nil {
		index = (*search.Service)(nil)
	}
	return &FileService{store: st, objects: objects, index: index, logger: logging.OrNop(logger).Named("files")}
}

func staticStorageKey(fileID string) string {
	return "static/" + fileID
}

func cleanFileName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return "file"
	}
	base := path.Base(name)
	if base == "/" || base == "." {
		return "file"
	}
	return base
}

// Upload stores the bytes and records the StaticFile row. The object is
// removed again if the row cannot be written.
func (f *FileService) Upload(ctx context.Context, owner string, in UploadInput) (store.StaticFile, error) {
	if err := in.Entity.validate(); err != nil {
		return store.StaticFile{}, err
	}
	if len(in.Data) == 0 {
		return store.StaticFile{}, errValidation("file is empty")
	}

	fileID := util.NewID("f")
	key := staticStorageKey(fileID)
	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := f.objects.PutObject(ctx, key, in.Data, contentType); err != nil {
		return store.StaticFile{}, err
	}

	row, err := f.store.InsertStaticFile(ctx, store.StaticFile{
		FileID:       fileID,
		UID:          owner,
		EntityID:     in.Entity.EntityID,
		EntityType:   in.Entity.EntityType,
		StorageKey:   key,
		StorageSize:  int64(len(in.Data)),
		ContentType:  contentType,
		OriginalName: cleanFileName(in.OriginalName),
	})
	if err != nil {
		if rmErr := f.objects.RemoveObject(ctx, key); rmErr != nil {
			f.logger.Warn("remove orphaned upload", zap.String("storageKey", key), zap.Error(rmErr))
		}
		return store.StaticFile{}, err
	}

	f.index.IndexFile(search.FileRecordFrom(row))
	return row, nil
}

func (f *FileService) List(ctx context.Context, owner string, ref EntityRef) ([]store.StaticFile, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	items, err := f.store.ListStaticFiles(ctx, owner, ref.EntityID, ref.EntityType)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []store.StaticFile{}
	}
	return items, nil
}

// RemoveFilesByEntity deletes the stored objects of every file the owner
// attached to ref and drops them from the file index. The rows are left for
// the caller.
func (f *FileService) RemoveFilesByEntity(ctx context.Context, owner string, ref EntityRef) error {
	items, err := f.store.ListStaticFiles(ctx, owner, ref.EntityID, ref.EntityType)
	if err != nil {
		return fmt.Errorf("list files for %s %s: %w", ref.EntityType, ref.EntityID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, item := range items {
		key := item.StorageKey
		if key == "" {
			key = staticStorageKey(item.FileID)
		}
		g.Go(func() error {
			if err := f.objects.RemoveObject(gctx, key); err != nil && !errors.Is(err, objstore.ErrNotFound) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := f.index.RemoveFilesByEntity(owner, ref.EntityID, ref.EntityType); err != nil {
		return err
	}
	if len(items) > 0 {
		f.logger.Debug("removed entity files",
			zap.String("entityId", ref.EntityID),
			zap.String("entityType", ref.EntityType),
			zap.Int("count", len(items)),
		)
	}
	return nil
}

// UploadFile stores a file for owner. Canvas attachments must target a live
// canvas the owner holds.
func (s *Service) UploadFile(ctx context.Context, owner string, in UploadInput) (store.StaticFile, error) {
	if err := in.Entity.validate(); err != nil {
		return store.StaticFile{}, err
	}
	if in.Entity.EntityType == EntityCanvas {
		if _, err := s.store.GetLiveCanvas(ctx, owner, in.Entity.EntityID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.StaticFile{}, ErrCanvasNotFound(in.Entity.EntityID)
			}
			return store.StaticFile{}, err
		}
	}
	row, err := s.files.Upload(ctx, owner, in)
	if err != nil {
		return store.StaticFile{}, err
	}
	if err := s.enqueueUsageSync(ctx, owner); err != nil {
		s.logger.Warn("enqueue usage sync after upload", zap.String("uid", owner), zap.Error(err))
	}
	return row, nil
}

func (s *Service) ListFiles(ctx context.Context, owner string, ref EntityRef) ([]store.StaticFile, error) {
	return s.files.List(ctx, owner, ref)
}
