// Package archive keeps raw content service payloads in object storage so a
// thread can be re-normalized later without refetching it.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var ErrNotFound = errors.New("archived payload not found")

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Store is the object storage backing an Archiver.
type Store interface {
	Put(ctx context.Context, key string, content []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Archiver files payloads under payloads/{kind}/{date}/{id}.json.
type Archiver struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Archiver {
	return &Archiver{store: store, now: time.Now}
}

// Key returns the object key for a payload fetched at the given time.
func Key(kind, id string, at time.Time) string {
	return path.Join("payloads", clean(kind), at.UTC().Format("2006-01-02"), clean(id)+".json")
}

// Save writes payload and returns its key.
func (a *Archiver) Save(ctx context.Context, kind, id string, payload []byte) (string, error) {
	if a == nil || a.store == nil {
		return "", fmt.Errorf("archive is not configured")
	}
	if strings.TrimSpace(kind) == "" || strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("archive payload: kind and id are required")
	}
	key := Key(kind, id, a.now())
	if err := a.store.Put(ctx, key, payload); err != nil {
		return "", fmt.Errorf("archive payload %s: %w", key, err)
	}
	return key, nil
}

// Load reads an archived payload by key.
func (a *Archiver) Load(ctx context.Context, key string) ([]byte, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("archive is not configured")
	}
	data, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load archived payload %s: %w", key, err)
	}
	return data, nil
}

// Keys lists archived payload keys of one kind, optionally narrowed to a day.
func (a *Archiver) Keys(ctx context.Context, kind, day string) ([]string, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("archive is not configured")
	}
	prefix := path.Join("payloads", clean(kind))
	if day != "" {
		prefix = path.Join(prefix, clean(day))
	}
	keys, err := a.store.List(ctx, prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list archived payloads: %w", err)
	}
	return keys, nil
}

func clean(part string) string {
	part = unsafeKeyChars.ReplaceAllString(strings.TrimSpace(part), "_")
	if part == "" {
		return "_"
	}
	return part
}
