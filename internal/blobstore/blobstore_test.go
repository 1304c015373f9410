package blobstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFS_PutGet(t *testing.T) {
	s := NewFS(t.TempDir(), "scratch")
	ctx := context.Background()

	if err := s.Put(ctx, "mast/abc/manifest.txt", []byte("WORKSPACE=x\n")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	data, err := s.Get(ctx, "mast/abc/manifest.txt")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(data) != "WORKSPACE=x\n" {
		t.Errorf("unexpected data: %q", data)
	}
}

func TestFS_GetMissing(t *testing.T) {
	s := NewFS(t.TempDir(), "scratch")

	_, err := s.Get(context.Background(), "mast/missing/out.csv")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFS_Overwrite(t *testing.T) {
	s := NewFS(t.TempDir(), "scratch")
	ctx := context.Background()

	if err := s.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := s.Put(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	data, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(data) != "v2" {
		t.Errorf("expected overwritten value, got %q", data)
	}
}

// flakyStore counts Gets so the cache hit path is observable.
type flakyStore struct {
	inner Store
	gets  int
}

func (f *flakyStore) Put(ctx context.Context, key string, data []byte) error {
	return f.inner.Put(ctx, key, data)
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.gets++
	return f.inner.Get(ctx, key)
}

func TestCached_ServesRepeatReadsFromCache(t *testing.T) {
	inner := &flakyStore{inner: NewFS(t.TempDir(), "scratch")}
	c, err := NewCached(inner, CachedConfig{SizeMB: 8, TTL: time.Minute})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Put(ctx, "mast/x/out.csv", []byte("a,b\n1,2\n")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		data, err := c.Get(ctx, "mast/x/out.csv")
		if err != nil {
			t.Fatalf("get %d failed: %v", i, err)
		}
		if string(data) != "a,b\n1,2\n" {
			t.Errorf("get %d: unexpected data %q", i, data)
		}
	}

	if inner.gets != 0 {
		t.Errorf("expected all reads served from cache, saw %d underlying gets", inner.gets)
	}
}

func TestCached_MissFallsThrough(t *testing.T) {
	fs := NewFS(t.TempDir(), "scratch")
	ctx := context.Background()
	if err := fs.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	inner := &flakyStore{inner: fs}
	c, err := NewCached(inner, CachedConfig{SizeMB: 8, TTL: time.Minute})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer c.Close()

	if _, err := c.Get(ctx, "k"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if inner.gets != 1 {
		t.Errorf("expected one underlying get, saw %d", inner.gets)
	}
	// Second read is a hit.
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if inner.gets != 1 {
		t.Errorf("expected cache hit on second read, saw %d underlying gets", inner.gets)
	}
}
