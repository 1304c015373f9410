package blobstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FS is a filesystem-backed Store, used for local development and tests.
// Blobs live under <root>/<bucket>/<key>.
type FS struct {
	root   string
	bucket string
}

// NewFS creates a filesystem store rooted at root for the given bucket.
func NewFS(root, bucket string) *FS {
	return &FS{root: root, bucket: bucket}
}

func (s *FS) path(key string) string {
	return filepath.Join(s.root, s.bucket, filepath.FromSlash(key))
}

// Put stores data under key, creating parent directories as needed.
func (s *FS) Put(ctx context.Context, key string, data []byte) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0644)
}

// Get returns the blob stored under key.
func (s *FS) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
