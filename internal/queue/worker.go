package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"knowspace/api/internal/logging"
)

// Handler processes one job. A returned error is logged and the job dropped.
type Handler func(ctx context.Context, job Job) error

// Worker pops jobs from the queues it has handlers for.
type Worker struct {
	client      *redis.Client
	logger      *zap.Logger
	prefix      string
	pollTimeout time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewWorker(client *redis.Client, logger *zap.Logger) *Worker {
	return &Worker{
		client:      client,
		logger:      logging.OrNop(logger).Named("worker"),
		prefix:      "queue:",
		pollTimeout: 5 * time.Second,
		handlers:    make(map[string]Handler),
	}
}

// Handle registers h for queue name, replacing any earlier handler.
func (w *Worker) Handle(name string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = h
}

func (w *Worker) keys() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	keys := make([]string, 0, len(w.handlers))
	for name := range w.handlers {
		keys = append(keys, w.prefix+name)
	}
	sort.Strings(keys)
	return keys
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	keys := w.keys()
	if len(keys) == 0 {
		return errors.New("worker has no handlers")
	}
	w.logger.Info("worker started", zap.Strings("queues", keys))

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}
		_, err := w.ProcessOne(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}
		w.logger.Error("poll queue", zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
}

// ProcessOne waits up to the poll timeout for a job and handles it. It
// reports whether a job was popped; handler failures are logged, not returned.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	res, err := w.client.BRPop(ctx, w.pollTimeout, w.keys()...).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("brpop: %w", err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("brpop: unexpected reply %v", res)
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		w.logger.Error("drop malformed job", zap.String("queue", res[0]), zap.Error(err))
		return true, nil
	}

	w.mu.RLock()
	h, ok := w.handlers[job.Name]
	w.mu.RUnlock()
	if !ok {
		w.logger.Warn("drop job without handler", zap.String("queue", res[0]), zap.String("job", job.Name))
		return true, nil
	}

	start := time.Now()
	if err := h(ctx, job); err != nil {
		w.logger.Error("job failed",
			zap.String("job", job.Name),
			zap.String("jobId", job.ID),
			zap.Error(err),
		)
		return true, nil
	}
	w.logger.Debug("job done",
		zap.String("job", job.Name),
		zap.String("jobId", job.ID),
		zap.Duration("took", time.Since(start)),
	)
	return true, nil
}
