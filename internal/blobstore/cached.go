package blobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// Cached wraps a Store with an in-memory read cache. Staged blobs are
// immutable once written, so serving repeated Gets (result fetch at collect
// time, re-read at export time) from cache is safe.
type Cached struct {
	inner Store
	cache *bigcache.BigCache
}

// CachedConfig contains read cache settings.
type CachedConfig struct {
	SizeMB int
	TTL    time.Duration
}

// NewCached creates a read-through cache in front of inner.
func NewCached(inner Store, cfg CachedConfig) (*Cached, error) {
	bcConfig := bigcache.Config{
		Shards:             256,
		LifeWindow:         cfg.TTL,
		CleanWindow:        cfg.TTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       1024 * 1024, // staged tables can run to ~1MB
		HardMaxCacheSize:   cfg.SizeMB,
		Verbose:            false,
	}

	cache, err := bigcache.New(context.Background(), bcConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob cache: %w", err)
	}

	return &Cached{inner: inner, cache: cache}, nil
}

// Put writes through to the underlying store and primes the cache.
func (c *Cached) Put(ctx context.Context, key string, data []byte) error {
	if err := c.inner.Put(ctx, key, data); err != nil {
		return err
	}
	c.cache.Set(key, data)
	return nil
}

// Get serves from cache when possible, falling back to the underlying store.
func (c *Cached) Get(ctx context.Context, key string) ([]byte, error) {
	if data, err := c.cache.Get(key); err == nil {
		return data, nil
	}
	data, err := c.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, data)
	return data, nil
}

// Close releases the cache.
func (c *Cached) Close() error {
	return c.cache.Close()
}
