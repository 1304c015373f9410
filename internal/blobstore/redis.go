package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a redis-backed Store for deployments where the worker image and
// the orchestrator share a redis instance instead of an object store.
// Each blob is a plain string value under "<bucket>/<key>".
type Redis struct {
	rdb    *redis.Client
	bucket string
}

// NewRedis creates a redis store for the given bucket.
func NewRedis(rdb *redis.Client, bucket string) *Redis {
	return &Redis{rdb: rdb, bucket: bucket}
}

func (s *Redis) key(key string) string {
	return fmt.Sprintf("%s/%s", s.bucket, key)
}

// Put stores data under key. Staged blobs have no TTL; cleanup is the
// operator's concern, same as for the filesystem backend.
func (s *Redis) Put(ctx context.Context, key string, data []byte) error {
	return s.rdb.Set(ctx, s.key(key), data, 0).Err()
}

// Get returns the blob stored under key.
func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
