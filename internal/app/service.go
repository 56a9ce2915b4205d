package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"knowspace/api/internal/collab"
	"knowspace/api/internal/config"
	"knowspace/api/internal/logging"
	"knowspace/api/internal/marks"
	"knowspace/api/internal/objstore"
	"knowspace/api/internal/queue"
	"knowspace/api/internal/search"
	"knowspace/api/internal/store"
)

// Entity types a StaticFile can be attached to.
const (
	EntityCanvas   = "canvas"
	EntityResource = "resource"
	EntityDocument = "document"
)

type DataStore interface {
	Ping(context.Context) error
	ListCanvases(ctx context.Context, uid string, limit, offset int) ([]store.Canvas, error)
	InsertCanvas(context.Context, store.Canvas) (store.Canvas, error)
	GetLiveCanvas(ctx context.Context, uid, canvasID string) (store.Canvas, error)
	UpdateCanvasTitle(ctx context.Context, uid, canvasID, title string) (store.Canvas, error)
	SoftDeleteCanvas(ctx context.Context, canvasID string) error
	InsertStaticFile(context.Context, store.StaticFile) (store.StaticFile, error)
	ListStaticFiles(ctx context.Context, uid, entityID, entityType string) ([]store.StaticFile, error)
	CountStaticFiles(ctx context.Context, entityID, entityType string) (int, error)
	DeleteStaticFiles(ctx context.Context, entityID, entityType string) (int64, error)
	ComputeStorageUsage(ctx context.Context, uid string) (store.StorageUsage, error)
	UpsertStorageUsage(context.Context, store.StorageUsage) (bool, error)
	GetStorageUsage(ctx context.Context, uid string) (store.StorageUsage, error)
}

type CollabProvider interface {
	OpenDirectConnection(ctx context.Context, id string, cctx collab.Context) (*collab.Connection, error)
	Snapshot(ctx context.Context, id string) (map[string]any, error)
	Close(id string)
}

type SearchIndex interface {
	IndexCanvas(search.CanvasRecord)
	DeleteCanvas(id string)
	IndexFile(search.FileRecord)
	RemoveFilesByEntity(uid, entityID, entityType string) error
	SearchCanvases(ctx context.Context, q search.Query) search.Response
}

type JobQueue interface {
	Enqueue(ctx context.Context, name string, payload any) (queue.Job, error)
}

type MarkStore interface {
	Load(ctx context.Context, uid, pageURL string) (*marks.Set, error)
	Save(ctx context.Context, uid, pageURL string, set *marks.Set) error
}

// Deps are the collaborators a Service orchestrates. Search and Marks may be
// nil; the others are required.
type Deps struct {
	Store   DataStore
	Objects objstore.Store
	Collab  CollabProvider
	Search  SearchIndex
	Queue   JobQueue
	Marks   MarkStore
}

type Service struct {
	cfg     config.Config
	store   DataStore
	objects objstore.Store
	collab  CollabProvider
	search  SearchIndex
	queue   JobQueue
	marks   MarkStore
	files   *FileService
	logger  *zap.Logger
	now     func() time.Time
}

func New(cfg config.Config, deps Deps, logger *zap.Logger) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("app: store is required")
	case deps.Objects == nil:
		return nil, errors.New("app: object store is required")
	case deps.Collab == nil:
		return nil, errors.New("app: collab provider is required")
	case deps.Queue == nil:
		return nil, errors.New("app: queue is required")
	}
	index := deps.Search
	if index == nil {
		index = (*search.Service)(nil)
	}

	logger = logging.OrNop(logger)
	return &Service{
		cfg:     cfg,
		store:   deps.Store,
		objects: deps.Objects,
		collab:  deps.Collab,
		search:  index,
		queue:   deps.Queue,
		marks:   deps.Marks,
		files:   NewFileService(deps.Store, deps.Objects, index, logger),
		logger:  logger.Named("app"),
		now:     time.Now,
	}, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Files exposes the file service used for cascading cleanup.
func (s *Service) Files() *FileService {
	return s.files
}

func (s *Service) enqueueUsageSync(ctx context.Context, uid string) error {
	_, err := s.queue.Enqueue(ctx, queue.SyncStorageUsage, queue.SyncStorageUsageJobData{
		UID:       uid,
		Timestamp: s.now().UTC(),
	})
	return err
}
