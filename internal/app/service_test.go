package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"knowspace/api/internal/collab"
	"knowspace/api/internal/config"
	"knowspace/api/internal/marks"
	"knowspace/api/internal/objstore"
	"knowspace/api/internal/queue"
	"knowspace/api/internal/store"
)

func requireCanvasNotFound(t *testing.T, err error) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != http.StatusNotFound || domainErr.Code != "CANVAS_NOT_FOUND" {
		t.Fatalf("expected 404 CANVAS_NOT_FOUND, got %d %s", domainErr.Status, domainErr.Code)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(config.Config{}, Deps{}, nil); err == nil {
		t.Fatal("expected error without store")
	}
	_, err := New(config.Config{}, Deps{
		Store:   newFakeStore(),
		Objects: objstore.NewMemory(),
		Collab:  collab.NewProvider(objstore.NewMemory(), nil),
		Queue:   &fakeQueue{},
	}, nil)
	if err != nil {
		t.Fatalf("search and marks are optional: %v", err)
	}
}

func TestCreateCanvasSeedsDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	row, err := env.svc.CreateCanvas(ctx, "u-1", CreateCanvasInput{Title: "Notes"})
	if err != nil {
		t.Fatalf("CreateCanvas() error = %v", err)
	}
	if !strings.HasPrefix(row.CanvasID, "c-") {
		t.Fatalf("unexpected canvas id %q", row.CanvasID)
	}
	if row.StateStorageKey != "state/"+row.CanvasID {
		t.Fatalf("expected state key state/%s, got %q", row.CanvasID, row.StateStorageKey)
	}
	if row.UID != "u-1" || row.Title != "Notes" || row.DeletedAt != nil {
		t.Fatalf("unexpected row %+v", row)
	}

	if !env.objects.Has(row.StateStorageKey) {
		t.Fatal("expected document snapshot persisted at the state key")
	}
	state, err := env.svc.GetCanvasState(ctx, "u-1", row.CanvasID)
	if err != nil {
		t.Fatalf("GetCanvasState() error = %v", err)
	}
	if state[collab.TitleField] != "Notes" {
		t.Fatalf("expected document title Notes, got %v", state[collab.TitleField])
	}
	nodes, ok := state[collab.NodesField].([]any)
	if !ok || len(nodes) != 0 {
		t.Fatalf("expected empty nodes, got %#v", state[collab.NodesField])
	}
	if env.collab.Sessions() != 0 {
		t.Fatalf("expected create to disconnect, %d sessions open", env.collab.Sessions())
	}
	if len(env.index.indexedCanvases) != 1 || env.index.indexedCanvases[0] != row.CanvasID {
		t.Fatalf("expected canvas indexed, got %v", env.index.indexedCanvases)
	}
}

func TestCreateCanvasPropagatesInsertFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.insertCanvasFn = func(context.Context, store.Canvas) (store.Canvas, error) {
		return store.Canvas{}, errors.New("db down")
	}
	if _, err := env.svc.CreateCanvas(context.Background(), "u-1", CreateCanvasInput{Title: "x"}); err == nil {
		t.Fatal("expected insert failure to propagate")
	}
	if env.collab.Sessions() != 0 {
		t.Fatal("no document session should be opened when the insert fails")
	}
}

func TestCreateCanvasRejectsLongTitle(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateCanvas(context.Background(), "u-1", CreateCanvasInput{Title: strings.Repeat("a", maxTitleLength+1)})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 validation error, got %v", err)
	}
}

func TestCreatedCanvasIsListedFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.CreateCanvas(ctx, "u-1", CreateCanvasInput{Title: "Older"}); err != nil {
		t.Fatalf("CreateCanvas() error = %v", err)
	}
	created, err := env.svc.CreateCanvas(ctx, "u-1", CreateCanvasInput{Title: "Notes"})
	if err != nil {
		t.Fatalf("CreateCanvas() error = %v", err)
	}

	items, err := env.svc.ListCanvases(ctx, "u-1", 1, 10)
	if err != nil {
		t.Fatalf("ListCanvases() error = %v", err)
	}
	if len(items) != 2 || items[0].CanvasID != created.CanvasID {
		t.Fatalf("expected %s first, got %+v", created.CanvasID, items)
	}

	others, err := env.svc.ListCanvases(ctx, "u-2", 1, 10)
	if err != nil {
		t.Fatalf("ListCanvases() error = %v", err)
	}
	if others == nil || len(others) != 0 {
		t.Fatalf("expected empty non-nil list for another owner, got %#v", others)
	}
}

func TestListCanvasesNormalizesPaging(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		page, pageSize        int
		wantLimit, wantOffset int
	}{
		{page: 1, pageSize: 10, wantLimit: 10, wantOffset: 0},
		{page: 3, pageSize: 5, wantLimit: 5, wantOffset: 10},
		{page: 0, pageSize: 0, wantLimit: defaultPageSize, wantOffset: 0},
		{page: -2, pageSize: 1000, wantLimit: maxPageSize, wantOffset: 0},
	}
	for _, tc := range cases {
		var gotLimit, gotOffset int
		env.store.listCanvasesFn = func(_ context.Context, _ string, limit, offset int) ([]store.Canvas, error) {
			gotLimit, gotOffset = limit, offset
			return nil, nil
		}
		items, err := env.svc.ListCanvases(context.Background(), "u-1", tc.page, tc.pageSize)
		if err != nil {
			t.Fatalf("ListCanvases() error = %v", err)
		}
		if items == nil {
			t.Fatal("expected non-nil empty slice")
		}
		if gotLimit != tc.wantLimit || gotOffset != tc.wantOffset {
			t.Fatalf("page=%d size=%d: got limit=%d offset=%d", tc.page, tc.pageSize, gotLimit, gotOffset)
		}
	}
}

func TestUpdateCanvas(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	row, _ := env.svc.CreateCanvas(ctx, "u-1", CreateCanvasInput{Title: "Draft"})

	title := "Final"
	updated, err := env.svc.UpdateCanvas(ctx, "u-1", UpdateCanvasInput{CanvasID: row.CanvasID, Title: &title})
	if err != nil {
		t.Fatalf("UpdateCanvas() error = %v", err)
	}
	if updated.Title != "Final" {
		t.Fatalf("expected Final, got %q", updated.Title)
	}

	state, _ := env.svc.GetCanvasState(ctx, "u-1", row.CanvasID)
	if state[collab.TitleField] != "Draft" {
		t.Fatalf("update must not touch the document, title is %v", state[collab.TitleField])
	}

	cleared, err := env.svc.UpdateCanvas(ctx, "u-1", UpdateCanvasInput{CanvasID: row.CanvasID})
	if err != nil {
		t.Fatalf("UpdateCanvas() without title error = %v", err)
	}
	if cleared.Title != "" {
		t.Fatalf("expected missing title to default to empty, got %q", cleared.Title)
	}
}

func TestUpdateCanvasNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	row, _ := env.svc.CreateCanvas(ctx, "u-1", CreateCanvasInput{Title: "Mine"})
	gone, _ := env.svc.CreateCanvas(ctx, "u-1", CreateCanvasInput{Title: "Gone"})
	if err := env.svc.DeleteCanvas(ctx, "u-1", DeleteCanvasInput{CanvasID: gone.CanvasID}); err != nil {
		t.Fatalf("DeleteCanvas() error = %v", err)
	}

	title := "Hijack"
	for name, in := range map[string]struct {
		owner, id string
	}{
		"missing": {owner: "u-1", id: "c-missing"},
		"foreign": {owner: "u-2", id: row.CanvasID},
		"deleted": {owner: "u-1", id: gone.CanvasID},
	} {
		_, err := env.svc.UpdateCanvas(ctx, in.owner, UpdateCanvasInput{CanvasID: in.id, Title: &title})
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		requireCanvasNotFound(t, err)
	}
	if got := env.store.canvas(row.CanvasID).Title; got != "Mine" {
		t.Fatalf("foreign update mutated the row: %q", got)
	}
	if got := env.store.canvas(gone.CanvasID).Title; got != "Gone" {
		t.Fatalf("update mutated a deleted row: %q", got)
	}
}

func TestDeleteCanvasCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	row, err := env.svc.CreateCanvas(ctx, "u-1", CreateCanvasInput{Title: "Board"})
	if err != nil {
		t.Fatalf("CreateCanvas() error = %v", err)
	}
	var keys []string
	for _, name := range []string{"a.png", "b.pdf"} {
		file, err := env.svc.UploadFile(ctx, "u-1", UploadInput{
			Entity:       EntityRef{EntityID: row.CanvasID, EntityType: EntityCanvas},
			OriginalName: name,
			Data:         []byte("bytes of " + name),
		})
		if err != nil {
			t.Fatalf("UploadFile() error = %v", err)
		}
		keys = append(keys, file.StorageKey)
	}
	env.queue.reset()

	if err := env.svc.DeleteCanvas(ctx, "u-1", DeleteCanvasInput{CanvasID: row.CanvasID}); err != nil {
		t.Fatalf("DeleteCanvas() error = %v", err)
	}

	if env.store.canvas(row.CanvasID).DeletedAt == nil {
		t.Fatal("expected deletedAt set")
	}
	if env.store.fileCount() != 0 {
		t.Fatalf("expected StaticFile rows removed, %d left", env.store.fileCount())
	}
	if env.objects.Has(row.StateStorageKey) {
		t.Fatal("expected state object removed")
	}
	for _, key := range keys {
		if env.objects.Has(key) {
			t.Fatalf("expected file object %s removed", key)
		}
	}
	if n := env.queue.usageJobsFor("u-1"); n != 1 || env.queue.count() != 1 {
		t.Fatalf("expected exactly one usage job for u-1, got %d of %d", n, env.queue.count())
	}
	if len(env.index.removedEntities) != 1 || env.index.removedEntities[0] != "canvas/"+row.CanvasID {
		t.Fatalf("expected file index cleanup, got %v", env.index.removedEntities)
	}
	if len(env.index.deletedCanvases) != 1 {
		t.Fatalf("expected canvas dropped from search index, got %v", env.index.deletedCanvases)
	}

	items, _ := env.svc.ListCanvases(ctx, "u-1", 1, 10)
	if len(items) != 0 {
		t.Fatalf("deleted canvas still listed: %+v", items)
	}
}

func TestDeleteCanvasTwiceIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	row, _ := env.svc.CreateCanvas(ctx, "u-1", CreateCanvasInput{Title: "Once"})

	if err := env.svc.DeleteCanvas(ctx, "u-1", DeleteCanvasInput{CanvasID: row.CanvasID}); err != nil {
		t.Fatalf("first DeleteCanvas() error = %v", err)
	}
	err := env.svc.DeleteCanvas(ctx, "u-1", DeleteCanvasInput{CanvasID: row.CanvasID})
	requireCanvasNotFound(t, err)
	if env.queue.usageJobsFor("u-1") != 1 {
		t.Fatalf("second delete must not enqueue, got %d jobs", env.queue.usageJobsFor("u-1"))
	}
}

func TestDeleteCanvasForeignOwnerHasNoSideEffects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	row, _ := env.svc.CreateCanvas(ctx, "u-1", CreateCanvasInput{Title: "Mine"})

	err := env.svc.DeleteCanvas(ctx, "u-2", DeleteCanvasInput{CanvasID: row.CanvasID})
	requireCanvasNotFound(t, err)
	if env.store.canvas(row.CanvasID).DeletedAt != nil {
		t.Fatal("foreign delete soft-deleted the row")
	}
	if !env.objects.Has(row.StateStorageKey) {
		t.Fatal("foreign delete removed the state object")
	}
	if env.queue.count() != 0 {
		t.Fatalf("foreign delete enqueued %d jobs", env.queue.count())
	}
}

func TestDeleteCanvasToleratesMissingStateObject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	row, _ := env.svc.CreateCanvas(ctx, "u-1", CreateCanvasInput{Title: "No state"})
	if err := env.objects.Memory.RemoveObject(ctx, row.StateStorageKey); err != nil {
		t.Fatalf("remove state: %v", err)
	}

	if err := env.svc.DeleteCanvas(ctx, "u-1", DeleteCanvasInput{CanvasID: row.CanvasID}); err != nil {
		t.Fatalf("DeleteCanvas() with absent state object error = %v", err)
	}
	if env.queue.usageJobsFor("u-1") != 1 {
		t.Fatal("expected usage job")
	}
}

func TestDeleteCanvasSkipsEmptyStateKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.canvases["c-legacy"] = store.Canvas{CanvasID: "c-legacy", UID: "u-1", Title: "Legacy"}
	removed := 0
	env.objects.removeFn = func(context.Context, string) error {
		removed++
		return nil
	}

	if err := env.svc.DeleteCanvas(ctx, "u-1", DeleteCanvasInput{CanvasID: "c-legacy"}); err != nil {
		t.Fatalf("DeleteCanvas() error = %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected no object removal for empty state key, got %d", removed)
	}
}

func TestDeleteCanvasPropagatesCleanupFailure(t *testing.T) {
	cases := map[string]func(env *testEnv){
		"soft delete": func(env *testEnv) {
			env.store.softDeleteFn = func(context.Context, string) error { return errors.New("db down") }
		},
		"object storage": func(env *testEnv) {
			env.objects.removeFn = func(context.Context, string) error { return errors.New("s3 down") }
		},
		"file index": func(env *testEnv) {
			env.index.removeFilesFn = func(string, string, string) error { return errors.New("meili down") }
		},
	}
	for name, breakIt := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			row, _ := env.svc.CreateCanvas(ctx, "u-1", CreateCanvasInput{Title: "Fragile"})
			breakIt(env)

			err := env.svc.DeleteCanvas(ctx, "u-1", DeleteCanvasInput{CanvasID: row.CanvasID})
			if err == nil {
				t.Fatal("expected cleanup failure to propagate")
			}
			var domainErr *DomainError
			if errors.As(err, &domainErr) {
				t.Fatalf("infrastructure failure surfaced as domain error %v", domainErr)
			}
			if env.queue.count() != 0 {
				t.Fatal("usage job must not be enqueued after a failed cleanup")
			}
		})
	}
}

func TestDeleteCanvasEnqueueFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	row, _ := env.svc.CreateCanvas(ctx, "u-1", CreateCanvasInput{Title: "x"})
	env.queue.enqueueFn = func(context.Context, string, any) error { return errors.New("redis down") }

	if err := env.svc.DeleteCanvas(ctx, "u-1", DeleteCanvasInput{CanvasID: row.CanvasID}); err == nil {
		t.Fatal("expected enqueue failure to propagate")
	}
	if env.store.canvas(row.CanvasID).DeletedAt == nil {
		t.Fatal("cleanup is not rolled back when the enqueue fails")
	}
}

func TestDeleteCanvasClosesLiveSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	row, _ := env.svc.CreateCanvas(ctx, "u-1", CreateCanvasInput{Title: "Live"})

	conn, err := env.collab.OpenDirectConnection(ctx, row.CanvasID, collab.Context{User: "u-1", EntityType: EntityCanvas})
	if err != nil {
		t.Fatalf("OpenDirectConnection() error = %v", err)
	}
	if err := env.svc.DeleteCanvas(ctx, "u-1", DeleteCanvasInput{CanvasID: row.CanvasID}); err != nil {
		t.Fatalf("DeleteCanvas() error = %v", err)
	}
	if err := conn.Transact(ctx, func(tx *collab.Txn) { tx.InsertText(collab.TitleField, 0, "late ") }); !errors.Is(err, collab.ErrClosed) {
		t.Fatalf("expected ErrClosed after delete, got %v", err)
	}
	if env.objects.Has(row.StateStorageKey) {
		t.Fatal("state object came back after delete")
	}
}

func TestGetCanvasStateNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.GetCanvasState(context.Background(), "u-1", "c-missing")
	requireCanvasNotFound(t, err)
}

func TestUploadFileValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.UploadFile(ctx, "u-1", UploadInput{
		Entity: EntityRef{EntityID: "c-missing", EntityType: EntityCanvas},
		Data:   []byte("x"),
	})
	requireCanvasNotFound(t, err)

	for _, ref := range []EntityRef{{EntityID: "", EntityType: EntityCanvas}, {EntityID: "r-1", EntityType: "folder"}} {
		_, err := env.svc.UploadFile(ctx, "u-1", UploadInput{Entity: ref, Data: []byte("x")})
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Status != http.StatusBadRequest {
			t.Fatalf("expected 400 for %+v, got %v", ref, err)
		}
	}

	_, err = env.svc.UploadFile(ctx, "u-1", UploadInput{Entity: EntityRef{EntityID: "r-1", EntityType: EntityResource}})
	if err == nil {
		t.Fatal("expected empty upload rejected")
	}
}

func TestUploadFileStoresAndIndexes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	file, err := env.svc.UploadFile(ctx, "u-1", UploadInput{
		Entity:       EntityRef{EntityID: "r-1", EntityType: EntityResource},
		OriginalName: `C:\Users\me\report.txt`,
		Data:         []byte("hello"),
	})
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if file.StorageKey != "static/"+file.FileID || file.StorageSize != 5 {
		t.Fatalf("unexpected file row %+v", file)
	}
	if file.OriginalName != "report.txt" {
		t.Fatalf("expected base name, got %q", file.OriginalName)
	}
	if file.ContentType != "application/octet-stream" {
		t.Fatalf("expected default content type, got %q", file.ContentType)
	}
	if !env.objects.Has(file.StorageKey) {
		t.Fatal("expected object stored")
	}
	if len(env.index.indexedFiles) != 1 {
		t.Fatalf("expected file indexed, got %v", env.index.indexedFiles)
	}
	if env.queue.usageJobsFor("u-1") != 1 {
		t.Fatal("expected usage resync after upload")
	}

	listed, err := env.svc.ListFiles(ctx, "u-1", EntityRef{EntityID: "r-1", EntityType: EntityResource})
	if err != nil || len(listed) != 1 {
		t.Fatalf("ListFiles = %v, %v", listed, err)
	}
}

func TestSyncStorageUsage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.CreateCanvas(ctx, "u-1", CreateCanvasInput{Title: "One"}); err != nil {
		t.Fatalf("CreateCanvas() error = %v", err)
	}
	if _, err := env.svc.UploadFile(ctx, "u-1", UploadInput{
		Entity: EntityRef{EntityID: "r-1", EntityType: EntityResource},
		Data:   []byte("12345678"),
	}); err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}

	fresh := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := env.svc.SyncStorageUsage(ctx, queue.SyncStorageUsageJobData{UID: "u-1", Timestamp: fresh}); err != nil {
		t.Fatalf("SyncStorageUsage() error = %v", err)
	}
	usage, err := env.svc.GetStorageUsage(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetStorageUsage() error = %v", err)
	}
	if usage.FileCount != 1 || usage.FileBytes != 8 || usage.CanvasCount != 1 || !usage.SyncedAt.Equal(fresh) {
		t.Fatalf("unexpected usage %+v", usage)
	}

	env.store.computeUsageFn = func(context.Context, string) (store.StorageUsage, error) {
		return store.StorageUsage{UID: "u-1", FileCount: 99}, nil
	}
	stale := fresh.Add(-time.Hour)
	if err := env.svc.SyncStorageUsage(ctx, queue.SyncStorageUsageJobData{UID: "u-1", Timestamp: stale}); err != nil {
		t.Fatalf("stale SyncStorageUsage() error = %v", err)
	}
	usage, _ = env.svc.GetStorageUsage(ctx, "u-1")
	if usage.FileCount != 1 {
		t.Fatalf("stale job overwrote usage: %+v", usage)
	}

	if err := env.svc.SyncStorageUsage(ctx, queue.SyncStorageUsageJobData{}); err == nil {
		t.Fatal("expected error without uid")
	}
}

func TestHandleSyncStorageUsageJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.queue.Enqueue(ctx, queue.SyncStorageUsage, queue.SyncStorageUsageJobData{UID: "u-9", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := env.svc.HandleSyncStorageUsageJob(ctx, job); err != nil {
		t.Fatalf("HandleSyncStorageUsageJob() error = %v", err)
	}
	usage, _ := env.svc.GetStorageUsage(ctx, "u-9")
	if usage.SyncedAt.IsZero() {
		t.Fatal("expected usage row written")
	}

	if err := env.svc.HandleSyncStorageUsageJob(ctx, queue.Job{ID: "bad", Name: queue.SyncStorageUsage, Payload: []byte("{")}); err == nil {
		t.Fatal("expected malformed payload error")
	}
}

func TestGetStorageUsageBeforeFirstSync(t *testing.T) {
	env := newTestEnv(t)
	usage, err := env.svc.GetStorageUsage(context.Background(), "u-new")
	if err != nil {
		t.Fatalf("GetStorageUsage() error = %v", err)
	}
	if usage.UID != "u-new" || usage.FileCount != 0 || !usage.SyncedAt.IsZero() {
		t.Fatalf("expected zero usage row, got %+v", usage)
	}
}

func TestSyncMarks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	page := "https://example.com/post"

	add := marks.SyncMarkEvent{Type: marks.EventAdd, Mark: &marks.Mark{
		Type: marks.TypeExtensionWeblinkSelection, Scope: marks.ScopeInline, XPath: "/p[1]", Data: "quote",
	}}
	items, err := env.svc.SyncMarks(ctx, "u-1", page, add)
	if err != nil {
		t.Fatalf("SyncMarks() error = %v", err)
	}
	if len(items) != 1 || items[0].Data != "quote" {
		t.Fatalf("unexpected marks %+v", items)
	}

	listed, err := env.svc.ListMarks(ctx, "u-1", page)
	if err != nil || len(listed) != 1 {
		t.Fatalf("ListMarks = %v, %v", listed, err)
	}

	_, err = env.svc.SyncMarks(ctx, "u-1", page, marks.SyncMarkEvent{Type: "explode"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "INVALID_MARK_EVENT" {
		t.Fatalf("expected INVALID_MARK_EVENT, got %v", err)
	}

	if _, err := env.svc.SyncMarks(ctx, "u-1", " ", add); err == nil {
		t.Fatal("expected pageUrl validation error")
	}

	items, err = env.svc.SyncMarks(ctx, "u-1", page, marks.SyncMarkEvent{Type: marks.EventReset})
	if err != nil || len(items) != 0 {
		t.Fatalf("reset = %v, %v", items, err)
	}
}

func TestSyncMarksUnavailable(t *testing.T) {
	svc, err := New(config.Config{}, Deps{
		Store:   newFakeStore(),
		Objects: objstore.NewMemory(),
		Collab:  collab.NewProvider(objstore.NewMemory(), nil),
		Queue:   &fakeQueue{},
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = svc.ListMarks(context.Background(), "u-1", "https://example.com")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}
}
