package ingest

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const defaultRegistrySize = 4096

// UserEnsurer creates a user on first sight and returns its id.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, username, password string) (string, error)
}

// Registry maps usernames to user ids for the lifetime of a pipeline so each
// author is created once. Concurrent lookups of one name share a single call.
type Registry struct {
	users    UserEnsurer
	password string
	cache    *lru.Cache[string, string]
	group    singleflight.Group
}

func NewRegistry(users UserEnsurer, password string, size int) (*Registry, error) {
	if size <= 0 {
		size = defaultRegistrySize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create user registry: %w", err)
	}
	return &Registry{users: users, password: password, cache: cache}, nil
}

// Anonymous reports whether username carries no real author.
func Anonymous(username string) bool {
	username = strings.TrimSpace(username)
	return username == "" || username == "[deleted]" || username == "[removed]"
}

// Resolve returns the id for username. Anonymous authors resolve to "".
func (r *Registry) Resolve(ctx context.Context, username string) (string, error) {
	username = strings.TrimSpace(username)
	if Anonymous(username) {
		return "", nil
	}
	if id, ok := r.cache.Get(username); ok {
		return id, nil
	}

	value, err, _ := r.group.Do(username, func() (any, error) {
		if id, ok := r.cache.Get(username); ok {
			return id, nil
		}
		id, err := r.users.EnsureUser(ctx, username, r.password)
		if err != nil {
			return "", err
		}
		r.cache.Add(username, id)
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// ResolveAll resolves every distinct author in names.
func (r *Registry) ResolveAll(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		if _, done := out[name]; done || Anonymous(name) {
			continue
		}
		id, err := r.Resolve(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve author %s: %w", name, err)
		}
		out[name] = id
	}
	return out, nil
}

// Len reports how many authors are cached.
func (r *Registry) Len() int {
	return r.cache.Len()
}
