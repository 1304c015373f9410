// Package blobstore provides named-key blob storage under a fixed bucket.
//
// Keys are POSIX-style relative paths ("mast/<uuid>/manifest.txt"). The
// orchestrator stages computation unit inputs through a Store and fetches
// result tables back through the same interface; the worker image reaches the
// same bucket from the other side.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist in the bucket.
var ErrNotFound = errors.New("blobstore: key not found")

// Store is a named-key byte store scoped to one bucket.
type Store interface {
	// Put stores data under key, overwriting any existing blob.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}
