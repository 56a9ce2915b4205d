// Package objstore stores opaque blobs (canvas state snapshots, uploaded
// files) by key.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"knowspace/api/internal/config"
)

// ErrNotFound is returned by GetObject for a missing key.
var ErrNotFound = errors.New("object not found")

// Store is implemented by every backend. RemoveObject on a missing key
// returns nil.
type Store interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	RemoveObject(ctx context.Context, key string) error
}

// New builds the backend named by cfg.Driver.
func New(ctx context.Context, cfg config.ObjectStoreConfig, logger *zap.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "minio":
		return NewMinio(ctx, cfg, logger)
	case "s3":
		return NewS3(ctx, cfg)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown object store driver %q", cfg.Driver)
	}
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("object key is required")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}
