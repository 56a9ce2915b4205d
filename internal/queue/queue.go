// Package queue is a small Redis-backed job queue: producers LPUSH JSON jobs
// onto queue:<name>, workers BRPOP them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"knowspace/api/internal/util"
)

// SyncStorageUsage is the queue that recomputes a user's storage usage.
const SyncStorageUsage = "syncStorageUsage"

// SyncStorageUsageJobData is the payload of a SyncStorageUsage job.
type SyncStorageUsageJobData struct {
	UID       string    `json:"uid"`
	Timestamp time.Time `json:"timestamp"`
}

// Job is the envelope stored in Redis.
type Job struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s job %s: %w", j.Name, j.ID, err)
	}
	return nil
}

// RedisQueue enqueues jobs.
type RedisQueue struct {
	client *redis.Client
	prefix string
}

// NewRedisQueue connects to redisURL and verifies the connection.
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisQueueWithClient(client), nil
}

// NewRedisQueueWithClient creates a queue from an existing Redis client.
func NewRedisQueueWithClient(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, prefix: "queue:"}
}

func (q *RedisQueue) key(name string) string {
	return q.prefix + name
}

// Client exposes the underlying connection so a Worker can share it.
func (q *RedisQueue) Client() *redis.Client {
	return q.client
}

// Enqueue encodes payload as a Job on queue name.
func (q *RedisQueue) Enqueue(ctx context.Context, name string, payload any) (Job, error) {
	if name == "" {
		return Job{}, errors.New("queue name is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	job := Job{
		ID:         util.NewID("job"),
		Name:       name,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return Job{}, fmt.Errorf("marshal %s job: %w", name, err)
	}
	if err := q.client.LPush(ctx, q.key(name), data).Err(); err != nil {
		return Job{}, fmt.Errorf("enqueue %s: %w", name, err)
	}
	return job, nil
}

// Len returns the number of pending jobs on queue name.
func (q *RedisQueue) Len(ctx context.Context, name string) (int64, error) {
	n, err := q.client.LLen(ctx, q.key(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length %s: %w", name, err)
	}
	return n, nil
}

// Ping checks if Redis is reachable
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
