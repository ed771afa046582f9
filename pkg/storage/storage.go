package storage

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidPath is returned for object paths that escape the store root or are empty.
var ErrInvalidPath = errors.New("invalid object path")

// Object describes a stored blob.
type Object struct {
	Path    string
	Size    int64
	Updated time.Time
}

// BlobStore is the narrow surface the contribution engine needs from blob storage.
// Delete of a missing object is not an error.
type BlobStore interface {
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]Object, error)
}
