package payloadcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache, s
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	if _, err := NewRedisCache("not a url", time.Minute); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSetAndGet(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()
	url := "https://www.reddit.com/comments/abc.json"

	if err := cache.Set(ctx, url, []byte(`[{"kind":"Listing"}]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	body, ok, err := cache.Get(ctx, url)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(body) != `[{"kind":"Listing"}]` {
		t.Errorf("unexpected body %q", body)
	}
}

func TestGetMiss(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)

	body, ok, err := cache.Get(context.Background(), "https://www.reddit.com/.json")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok || body != nil {
		t.Fatalf("expected miss, got %q", body)
	}
}

func TestEntriesExpire(t *testing.T) {
	cache, s := setupTestCache(t, time.Second)
	ctx := context.Background()
	url := "https://www.reddit.com/r/golang/.json"

	if err := cache.Set(ctx, url, []byte(`{}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.FastForward(2 * time.Second)

	if _, ok, err := cache.Get(ctx, url); err != nil || ok {
		t.Fatalf("expected expired entry, got ok=%v err=%v", ok, err)
	}
}

func TestInvalidate(t *testing.T) {
	cache, _ := setupTestCache(t, 0)
	ctx := context.Background()
	url := "https://www.reddit.com/comments/xyz.json"

	if err := cache.Set(ctx, url, []byte(`[]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := cache.Invalidate(ctx, url); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, url); ok {
		t.Fatal("expected entry to be gone")
	}
}

func TestClosedServerSurfacesErrors(t *testing.T) {
	cache, s := setupTestCache(t, time.Minute)
	s.Close()

	if _, _, err := cache.Get(context.Background(), "https://www.reddit.com/.json"); err == nil {
		t.Fatal("expected get to fail once redis is gone")
	}
	if err := cache.Invalidate(context.Background(), "https://www.reddit.com/.json"); err == nil {
		t.Fatal("expected invalidate to fail once redis is gone")
	}
}
