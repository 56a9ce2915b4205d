package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"

	"knowspace/api/internal/collab"
	"knowspace/api/internal/config"
	"knowspace/api/internal/marks"
	"knowspace/api/internal/objstore"
	"knowspace/api/internal/queue"
	"knowspace/api/internal/search"
	"knowspace/api/internal/store"
)

// fakeStore keeps rows in memory. The xxxFn hooks, when set, replace the
// corresponding method.
type fakeStore struct {
	mu       sync.Mutex
	clock    time.Time
	canvases map[string]store.Canvas
	files    map[string]store.StaticFile
	usage    map[string]store.StorageUsage

	pingFn              func(context.Context) error
	listCanvasesFn      func(context.Context, string, int, int) ([]store.Canvas, error)
	softDeleteFn        func(context.Context, string) error
	computeUsageFn      func(context.Context, string) (store.StorageUsage, error)
	insertCanvasFn      func(context.Context, store.Canvas) (store.Canvas, error)
	deleteStaticFilesFn func(context.Context, string, string) (int64, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		canvases: make(map[string]store.Canvas),
		files:    make(map[string]store.StaticFile),
		usage:    make(map[string]store.StorageUsage),
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) ListCanvases(ctx context.Context, uid string, limit, offset int) ([]store.Canvas, error) {
	if f.listCanvasesFn != nil {
		return f.listCanvasesFn(ctx, uid, limit, offset)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Canvas
	for _, c := range f.canvases {
		if c.UID == uid && c.DeletedAt == nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if offset >= len(out) {
		return []store.Canvas{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) InsertCanvas(ctx context.Context, item store.Canvas) (store.Canvas, error) {
	if f.insertCanvasFn != nil {
		return f.insertCanvasFn(ctx, item)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.tick()
	item.CreatedAt, item.UpdatedAt = now, now
	f.canvases[item.CanvasID] = item
	return item, nil
}

func (f *fakeStore) GetLiveCanvas(_ context.Context, uid, canvasID string) (store.Canvas, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.canvases[canvasID]
	if !ok || c.UID != uid || c.DeletedAt != nil {
		return store.Canvas{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) UpdateCanvasTitle(_ context.Context, uid, canvasID, title string) (store.Canvas, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.canvases[canvasID]
	if !ok || c.UID != uid || c.DeletedAt != nil {
		return store.Canvas{}, store.ErrNotFound
	}
	c.Title = title
	c.UpdatedAt = f.tick()
	f.canvases[canvasID] = c
	return c, nil
}

func (f *fakeStore) SoftDeleteCanvas(ctx context.Context, canvasID string) error {
	if f.softDeleteFn != nil {
		return f.softDeleteFn(ctx, canvasID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.canvases[canvasID]
	if !ok || c.DeletedAt != nil {
		return nil
	}
	now := f.tick()
	c.DeletedAt = &now
	f.canvases[canvasID] = c
	return nil
}

func (f *fakeStore) InsertStaticFile(_ context.Context, item store.StaticFile) (store.StaticFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.CreatedAt = f.tick()
	f.files[item.FileID] = item
	return item, nil
}

func (f *fakeStore) ListStaticFiles(_ context.Context, uid, entityID, entityType string) ([]store.StaticFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.StaticFile
	for _, file := range f.files {
		if file.UID == uid && file.EntityID == entityID && file.EntityType == entityType {
			out = append(out, file)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out, nil
}

func (f *fakeStore) CountStaticFiles(_ context.Context, entityID, entityType string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, file := range f.files {
		if file.EntityID == entityID && file.EntityType == entityType {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DeleteStaticFiles(ctx context.Context, entityID, entityType string) (int64, error) {
	if f.deleteStaticFilesFn != nil {
		return f.deleteStaticFilesFn(ctx, entityID, entityType)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, file := range f.files {
		if file.EntityID == entityID && file.EntityType == entityType {
			delete(f.files, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ComputeStorageUsage(ctx context.Context, uid string) (store.StorageUsage, error) {
	if f.computeUsageFn != nil {
		return f.computeUsageFn(ctx, uid)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	usage := store.StorageUsage{UID: uid}
	for _, file := range f.files {
		if file.UID == uid {
			usage.FileCount++
			usage.FileBytes += file.StorageSize
		}
	}
	for _, c := range f.canvases {
		if c.UID == uid && c.DeletedAt == nil {
			usage.CanvasCount++
		}
	}
	return usage, nil
}

func (f *fakeStore) UpsertStorageUsage(_ context.Context, usage store.StorageUsage) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.usage[usage.UID]; ok && cur.SyncedAt.After(usage.SyncedAt) {
		return false, nil
	}
	f.usage[usage.UID] = usage
	return true, nil
}

func (f *fakeStore) GetStorageUsage(_ context.Context, uid string) (store.StorageUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	usage, ok := f.usage[uid]
	if !ok {
		return store.StorageUsage{}, store.ErrNotFound
	}
	return usage, nil
}

func (f *fakeStore) canvas(id string) store.Canvas {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canvases[id]
}

func (f *fakeStore) fileCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

// fakeObjects wraps the in-memory object store with failure hooks.
type fakeObjects struct {
	*objstore.Memory
	removeFn func(context.Context, string) error
}

func (f *fakeObjects) RemoveObject(ctx context.Context, key string) error {
	if f.removeFn != nil {
		if err := f.removeFn(ctx, key); err != nil {
			return err
		}
	}
	return f.Memory.RemoveObject(ctx, key)
}

type fakeQueue struct {
	mu        sync.Mutex
	jobs      []queue.Job
	enqueueFn func(context.Context, string, any) error
}

func (f *fakeQueue) Enqueue(ctx context.Context, name string, payload any) (queue.Job, error) {
	if f.enqueueFn != nil {
		if err := f.enqueueFn(ctx, name, payload); err != nil {
			return queue.Job{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := json.Marshal(payload)
	if err != nil {
		return queue.Job{}, err
	}
	job := queue.Job{ID: fmt.Sprintf("job-%d", len(f.jobs)+1), Name: name, Payload: raw}
	f.jobs = append(f.jobs, job)
	return job, nil
}

func (f *fakeQueue) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = nil
}

func (f *fakeQueue) usageJobsFor(uid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, job := range f.jobs {
		var data queue.SyncStorageUsageJobData
		if job.Name == queue.SyncStorageUsage && job.Decode(&data) == nil && data.UID == uid {
			n++
		}
	}
	return n
}

func (f *fakeQueue) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type fakeIndex struct {
	mu              sync.Mutex
	indexedCanvases []string
	deletedCanvases []string
	indexedFiles    []string
	removedEntities []string
	removeFilesFn   func(string, string, string) error
	searchFn        func(context.Context, search.Query) search.Response
}

func (f *fakeIndex) IndexCanvas(c search.CanvasRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexedCanvases = append(f.indexedCanvases, c.ID)
}

func (f *fakeIndex) DeleteCanvas(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedCanvases = append(f.deletedCanvases, id)
}

func (f *fakeIndex) IndexFile(r search.FileRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexedFiles = append(f.indexedFiles, r.ID)
}

func (f *fakeIndex) RemoveFilesByEntity(uid, entityID, entityType string) error {
	if f.removeFilesFn != nil {
		if err := f.removeFilesFn(uid, entityID, entityType); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedEntities = append(f.removedEntities, entityType+"/"+entityID)
	return nil
}

func (f *fakeIndex) SearchCanvases(ctx context.Context, q search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(ctx, q)
	}
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

type testEnv struct {
	svc     *Service
	store   *fakeStore
	objects *fakeObjects
	collab  *collab.Provider
	queue   *fakeQueue
	index   *fakeIndex
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	env := &testEnv{
		store:   newFakeStore(),
		objects: &fakeObjects{Memory: objstore.NewMemory()},
		queue:   &fakeQueue{},
		index:   &fakeIndex{},
	}
	env.collab = collab.NewProvider(env.objects, logger)

	mr := miniredis.RunT(t)
	markStore, err := marks.NewRedisStore("redis://"+mr.Addr(), 0)
	if err != nil {
		t.Fatalf("marks store: %v", err)
	}
	t.Cleanup(func() { _ = markStore.Close() })

	svc, err := New(config.Config{JWTSecret: testSecret, MaxUploadBytes: 1 << 20}, Deps{
		Store:   env.store,
		Objects: env.objects,
		Collab:  env.collab,
		Search:  env.index,
		Queue:   env.queue,
		Marks:   markStore,
	}, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.svc = svc
	return env
}

const testSecret = "test-secret"
