package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore checks and removes uploaded audio in a Cloud Storage bucket.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	timeout time.Duration
}

// NewGCSStore opens a storage client with read/write scope for bucket.
func NewGCSStore(ctx context.Context, bucket string, timeout time.Duration, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GCSStore{client: client, bucket: bucket, timeout: timeout}, nil
}

// Exists reports whether the object is present in the bucket.
func (s *GCSStore) Exists(ctx context.Context, objectPath string) (bool, error) {
	if objectPath == "" {
		return false, ErrInvalidPath
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.client.Bucket(s.bucket).Object(objectPath).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch gcs object attrs %q: %w", objectPath, err)
	}
	return true, nil
}

// Delete removes the object; a missing object counts as already deleted.
func (s *GCSStore) Delete(ctx context.Context, objectPath string) error {
	if objectPath == "" {
		return ErrInvalidPath
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.client.Bucket(s.bucket).Object(objectPath).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete gcs object %q in bucket %q: %w", objectPath, s.bucket, err)
	}
	return nil
}

// List walks every object under prefix.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]Object, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := make([]Object, 0)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gcs objects: %w", err)
		}
		out = append(out, Object{Path: attrs.Name, Size: attrs.Size, Updated: attrs.Updated})
	}
	return out, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
