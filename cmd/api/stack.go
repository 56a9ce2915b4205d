package main

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"knowspace/api/internal/app"
	"knowspace/api/internal/collab"
	"knowspace/api/internal/config"
	"knowspace/api/internal/marks"
	"knowspace/api/internal/objstore"
	"knowspace/api/internal/queue"
	"knowspace/api/internal/search"
	"knowspace/api/internal/store"
)

// stack holds the long-lived clients shared by serve and worker.
type stack struct {
	service *app.Service
	queue   *queue.RedisQueue
	search  *search.Service
	closers []func()
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildStack(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stack, error) {
	st := &stack{}
	fail := func(err error) (*stack, error) {
		st.Close()
		return nil, err
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(err)
	}
	st.closers = append(st.closers, db.Close)
	if err := store.ApplyMigrations(ctx, cfg.DatabaseURL); err != nil {
		return fail(err)
	}

	objects, err := objstore.New(ctx, cfg.ObjectStore, logger)
	if err != nil {
		return fail(err)
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	st.search = search.NewService(meiliClient, search.NewPgFTS(db), logger)
	st.closers = append(st.closers, st.search.Close)

	if strings.TrimSpace(cfg.RedisURL) == "" {
		return fail(errors.New("redis url is required for the job queue"))
	}
	st.queue, err = queue.NewRedisQueue(cfg.RedisURL)
	if err != nil {
		return fail(err)
	}
	st.closers = append(st.closers, func() { _ = st.queue.Close() })

	markStore, err := marks.NewRedisStore(cfg.RedisURL, cfg.MarksTTL)
	if err != nil {
		return fail(err)
	}
	st.closers = append(st.closers, func() { _ = markStore.Close() })

	st.service, err = app.New(cfg, app.Deps{
		Store:   store.NewPostgresStore(db),
		Objects: objects,
		Collab:  collab.NewProvider(objects, logger),
		Search:  st.search,
		Queue:   st.queue,
		Marks:   markStore,
	}, logger)
	if err != nil {
		return fail(err)
	}
	return st, nil
}

func (s *stack) newWorker(logger *zap.Logger) *queue.Worker {
	worker := queue.NewWorker(s.queue.Client(), logger)
	worker.Handle(queue.SyncStorageUsage, s.service.HandleSyncStorageUsageJob)
	return worker
}
