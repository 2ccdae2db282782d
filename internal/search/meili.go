package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxPosts    = "threadloom_posts"
	idxComments = "threadloom_comments"

	defaultLimit   = 20
	indexBatchSize = 1000
	healthInterval = 10 * time.Second
)

var errUnhealthy = errors.New("meilisearch unhealthy")

// indexSpec describes one Meilisearch index and how its hits become results.
type indexSpec struct {
	uid        string
	kind       ResultType
	filterable []string
	searchable []string
	decode     func(hit meili.Hit, r *Result)
}

var indexSpecs = []indexSpec{
	{
		uid:        idxPosts,
		kind:       ResultPost,
		filterable: []string{"subredditId"},
		searchable: []string{"title", "url"},
		decode: func(hit meili.Hit, r *Result) {
			r.Title = highlighted(hit, "title")
			r.Snippet = hitString(hit, "url")
			r.PostID = r.ID
		},
	},
	{
		uid:        idxComments,
		kind:       ResultComment,
		filterable: []string{"subredditId", "postId"},
		searchable: []string{"body", "postTitle"},
		decode: func(hit meili.Hit, r *Result) {
			r.Title = highlighted(hit, "postTitle")
			r.Snippet = highlighted(hit, "body")
			r.PostID = hitString(hit, "postId")
		},
	},
}

func specFor(uid string) (indexSpec, bool) {
	for _, spec := range indexSpecs {
		if spec.uid == uid {
			return spec, true
		}
	}
	return indexSpec{}, false
}

// Meili searches posts and comments in Meilisearch. A background probe flips
// it between healthy and unhealthy; indexes are reconfigured on recovery.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

func NewMeili(url, apiKey string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
	}
	if err := m.probe(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
	}
	go m.watch(healthInterval)
	return m
}

// probe records the current health and configures indexes on every
// transition to healthy.
func (m *Meili) probe() error {
	_, err := m.client.Health()
	wasHealthy := m.healthy.Swap(err == nil)
	if err == nil && !wasHealthy {
		m.configureIndexes()
	}
	return err
}

func (m *Meili) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			wasHealthy := m.healthy.Load()
			if err := m.probe(); err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered")
			}
		}
	}
}

func (m *Meili) configureIndexes() {
	for _, spec := range indexSpecs {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: spec.uid, PrimaryKey: "id"}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", spec.uid, err)
		}
		index := m.client.Index(spec.uid)
		filterable := make([]interface{}, 0, len(spec.filterable))
		for _, attr := range spec.filterable {
			filterable = append(filterable, attr)
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("search: filterable attributes for %s: %v", spec.uid, err)
		}
		searchable := spec.searchable
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			log.Printf("search: searchable attributes for %s: %v", spec.uid, err)
		}
	}
}

func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search runs one multi-search across the indexes the query allows and
// concatenates the hits, posts first.
func (m *Meili) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, errUnhealthy
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	queries := buildMultiSearch(q)
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		kind := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, kind))
		}
	}
	return results, total, nil
}

func buildMultiSearch(q Query) []*meili.SearchRequest {
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := int64(q.Offset)
	if offset < 0 {
		offset = 0
	}

	var queries []*meili.SearchRequest
	for _, spec := range indexSpecs {
		if q.FilterType != "" && q.FilterType != spec.kind {
			continue
		}
		req := &meili.SearchRequest{
			IndexUID:              spec.uid,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                offset,
			AttributesToHighlight: spec.searchable,
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		}
		if q.FilterSubredditID != "" {
			req.Filter = []string{fmt.Sprintf("subredditId = %q", q.FilterSubredditID)}
		}
		queries = append(queries, req)
	}
	return queries
}

func indexToResultType(uid string) ResultType {
	spec, ok := specFor(uid)
	if !ok {
		return ""
	}
	return spec.kind
}

func hitToResult(hit meili.Hit, kind ResultType) Result {
	r := Result{
		Type:        kind,
		ID:          hitString(hit, "id"),
		SubredditID: hitString(hit, "subredditId"),
	}
	for _, spec := range indexSpecs {
		if spec.kind == kind {
			spec.decode(hit, &r)
			break
		}
	}
	return r
}

func hitString(hit meili.Hit, key string) string {
	var s string
	if raw, ok := hit[key]; ok && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

// highlighted prefers the highlighted form of key and falls back to the raw
// attribute.
func highlighted(hit meili.Hit, key string) string {
	if raw, ok := hit["_formatted"]; ok {
		var formatted map[string]string
		if json.Unmarshal(raw, &formatted) == nil {
			if value := strings.TrimSpace(formatted[key]); value != "" {
				return value
			}
		}
	}
	return hitString(hit, key)
}

func (m *Meili) IndexPosts(posts []PostRecord) error {
	index := m.client.Index(idxPosts)
	return addInBatches(posts, func(batch []PostRecord) error {
		_, err := index.AddDocuments(batch, nil)
		return err
	})
}

func (m *Meili) IndexComments(comments []CommentRecord) error {
	index := m.client.Index(idxComments)
	return addInBatches(comments, func(batch []CommentRecord) error {
		_, err := index.AddDocuments(batch, nil)
		return err
	})
}

func addInBatches[T any](docs []T, add func(batch []T) error) error {
	for start := 0; start < len(docs); start += indexBatchSize {
		end := min(start+indexBatchSize, len(docs))
		if err := add(docs[start:end]); err != nil {
			return fmt.Errorf("add documents %d-%d: %w", start, end, err)
		}
	}
	return nil
}
