// Package payloadcache keeps recently fetched content service payloads in Redis.
package payloadcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 5 * time.Minute

// Entry is the value stored for one payload URL.
type Entry struct {
	URL       string    `json:"url"`
	Body      []byte    `json:"body"`
	FetchedAt time.Time `json:"fetched_at"`
}

// RedisCache stores raw payloads keyed by request URL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{
		client: client,
		prefix: "payload:",
		ttl:    ttl,
	}
}

func (c *RedisCache) key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Get returns the cached body for url. The boolean is false on a miss.
func (c *RedisCache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, c.key(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get payload: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal payload entry: %w", err)
	}
	if entry.URL != url {
		return nil, false, nil
	}
	return entry.Body, true, nil
}

// Set stores body for url with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, url string, body []byte) error {
	raw, err := json.Marshal(Entry{URL: url, Body: body, FetchedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal payload entry: %w", err)
	}
	if err := c.client.Set(ctx, c.key(url), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("save payload: %w", err)
	}
	return nil
}

// Invalidate drops the cached body for url.
func (c *RedisCache) Invalidate(ctx context.Context, url string) error {
	if err := c.client.Del(ctx, c.key(url)).Err(); err != nil {
		return fmt.Errorf("invalidate payload: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
