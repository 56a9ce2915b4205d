package marks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 7 * 24 * time.Hour

// RedisStore keeps one mark set per (user, page) with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-backed mark store
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
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
	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, prefix: "marks:", ttl: ttl}
}

// key hashes the page URL so arbitrary URLs make safe, bounded keys.
func (s *RedisStore) key(uid, pageURL string) string {
	sum := sha256.Sum256([]byte(pageURL))
	return s.prefix + uid + ":" + hex.EncodeToString(sum[:])
}

// Load returns the stored set, or an empty one if none exists or it expired.
func (s *RedisStore) Load(ctx context.Context, uid, pageURL string) (*Set, error) {
	raw, err := s.client.Get(ctx, s.key(uid, pageURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load marks: %w", err)
	}

	var items []Mark
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unmarshal marks: %w", err)
	}
	return NewSet(items...), nil
}

// Save stores set and refreshes its TTL. An empty set deletes the key.
func (s *RedisStore) Save(ctx context.Context, uid, pageURL string, set *Set) error {
	key := s.key(uid, pageURL)
	if set == nil || set.Len() == 0 {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("clear marks: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(set.Marks())
	if err != nil {
		return fmt.Errorf("marshal marks: %w", err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save marks: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
