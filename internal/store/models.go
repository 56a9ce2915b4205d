package store

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Canvas is a user-owned collaborative document container. A row with a
// non-nil DeletedAt is soft-deleted and invisible to its owner.
type Canvas struct {
	CanvasID        string     `json:"canvasId"`
	UID             string     `json:"uid"`
	Title           string     `json:"title"`
	StateStorageKey string     `json:"stateStorageKey"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	DeletedAt       *time.Time `json:"deletedAt"`
}

// StaticFile is a stored file attached to an owning entity by (EntityID, EntityType).
type StaticFile struct {
	FileID       string    `json:"fileId"`
	UID          string    `json:"uid"`
	EntityID     string    `json:"entityId"`
	EntityType   string    `json:"entityType"`
	StorageKey   string    `json:"storageKey"`
	StorageSize  int64     `json:"storageSize"`
	ContentType  string    `json:"contentType"`
	OriginalName string    `json:"originalName"`
	CreatedAt    time.Time `json:"createdAt"`
}

type StorageUsage struct {
	UID         string    `json:"uid"`
	FileCount   int64     `json:"fileCount"`
	FileBytes   int64     `json:"fileBytes"`
	CanvasCount int64     `json:"canvasCount"`
	SyncedAt    time.Time `json:"syncedAt"`
}
