// Package ingest copies subreddits, posts and comment threads from the
// content service into the relational store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"threadloom/api/internal/reddit"
	"threadloom/api/internal/search"
	"threadloom/api/internal/store"
	"threadloom/api/internal/thread"
	"threadloom/api/internal/util"
)

var ErrNotImportable = errors.New("post has no content service id")

// Store is the persistence the pipeline writes to.
type Store interface {
	CreateSubreddit(ctx context.Context, item store.Subreddit) (string, error)
	FindSubredditByName(ctx context.Context, name string) (store.Subreddit, error)
	CreatePost(ctx context.Context, item store.Post) (string, error)
	GetPost(ctx context.Context, postID string) (store.Post, error)
	FindPostByRedditName(ctx context.Context, name string) (store.Post, error)
	ImportComments(ctx context.Context, postID string, records []thread.Record, authors map[string]string) (store.ImportResult, error)
}

// Source is the content service the pipeline reads from.
type Source interface {
	Subreddits(ctx context.Context) ([]string, error)
	Posts(ctx context.Context, subreddit string) ([]reddit.PostSummary, error)
	CommentThread(ctx context.Context, postName string) ([]byte, error)
}

// Indexer receives everything the pipeline writes.
type Indexer interface {
	IndexPost(post search.PostRecord)
	IndexComments(comments []search.CommentRecord)
}

// Archive reads payloads saved by the content client.
type Archive interface {
	Keys(ctx context.Context, kind, day string) ([]string, error)
	Load(ctx context.Context, key string) ([]byte, error)
}

type Options struct {
	// Subreddits overrides the front page listing when set.
	Subreddits  []string
	Concurrency int
	// WithComments also imports the comment thread of every post.
	WithComments bool
}

// Summary counts what one run wrote.
type Summary struct {
	RunID      string   `json:"runId"`
	Subreddits int      `json:"subreddits"`
	Posts      int      `json:"posts"`
	Comments   int      `json:"comments"`
	Skipped    int      `json:"skipped"`
	Failures   []string `json:"failures"`
}

type Pipeline struct {
	store    Store
	source   Source
	registry *Registry
	indexer  Indexer
}

func NewPipeline(store Store, source Source, registry *Registry, indexer Indexer) *Pipeline {
	return &Pipeline{store: store, source: source, registry: registry, indexer: indexer}
}

// Run ingests every subreddit with at most opts.Concurrency in flight. A
// failing subreddit is recorded in the summary and does not stop the others.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Summary, error) {
	summary := Summary{RunID: util.NewShortID("run"), Failures: []string{}}
	names := opts.Subreddits
	if len(names) == 0 {
		listed, err := p.source.Subreddits(ctx)
		if err != nil {
			return summary, fmt.Errorf("list subreddits: %w", err)
		}
		names = listed
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, name := range names {
		name := strings.TrimSpace(name)
		if name == "" {
			continue
		}
		g.Go(func() error {
			part, err := p.ingestSubreddit(gctx, name, opts.WithComments)
			mu.Lock()
			defer mu.Unlock()
			summary.add(part)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Printf("ingest: run %s subreddit %s failed: %v", summary.RunID, name, err)
				summary.Failures = append(summary.Failures, name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, fmt.Errorf("ingest run: %w", err)
	}
	log.Printf("ingest: run %s complete subreddits=%d posts=%d comments=%d failures=%d",
		summary.RunID, summary.Subreddits, summary.Posts, summary.Comments, len(summary.Failures))
	return summary, nil
}

func (s *Summary) add(part Summary) {
	s.Subreddits += part.Subreddits
	s.Posts += part.Posts
	s.Comments += part.Comments
	s.Skipped += part.Skipped
}

func (p *Pipeline) ingestSubreddit(ctx context.Context, name string, withComments bool) (Summary, error) {
	var part Summary
	subredditID, err := p.ensureSubreddit(ctx, name)
	if err != nil {
		return part, err
	}
	part.Subreddits++

	posts, err := p.source.Posts(ctx, name)
	if err != nil {
		return part, err
	}
	for _, post := range posts {
		userID, err := p.registry.Resolve(ctx, post.Author)
		if err != nil {
			return part, fmt.Errorf("resolve author of %s: %w", post.Name, err)
		}
		postID, err := p.store.CreatePost(ctx, store.Post{
			RedditName:    post.Name,
			SubredditID:   subredditID,
			UserID:        userID,
			Title:         post.Title,
			URL:           post.URL,
			PermanentLink: post.Permalink,
		})
		if err != nil {
			return part, fmt.Errorf("create post %s: %w", post.Name, err)
		}
		part.Posts++
		if p.indexer != nil {
			p.indexer.IndexPost(search.PostRecord{ID: postID, Title: post.Title, URL: post.URL, SubredditID: subredditID})
		}

		if !withComments || post.Name == "" {
			continue
		}
		result, err := p.ImportThread(ctx, postID)
		if err != nil {
			return part, err
		}
		part.Comments += result.Inserted
		part.Skipped += result.Skipped
	}
	return part, nil
}

func (p *Pipeline) ensureSubreddit(ctx context.Context, name string) (string, error) {
	id, err := p.store.CreateSubreddit(ctx, store.Subreddit{Name: name})
	if errors.Is(err, store.ErrDuplicate) {
		existing, findErr := p.store.FindSubredditByName(ctx, name)
		if findErr != nil {
			return "", fmt.Errorf("find subreddit %s: %w", name, findErr)
		}
		return existing.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("create subreddit %s: %w", name, err)
	}
	return id, nil
}

// ImportThread fetches the comment thread of a stored post, normalizes it and
// persists the comments under the post. Already imported comments are skipped.
func (p *Pipeline) ImportThread(ctx context.Context, postID string) (store.ImportResult, error) {
	post, err := p.store.GetPost(ctx, postID)
	if err != nil {
		return store.ImportResult{}, err
	}
	if post.RedditName == "" {
		return store.ImportResult{}, fmt.Errorf("import post %s: %w", postID, ErrNotImportable)
	}

	body, err := p.source.CommentThread(ctx, post.RedditName)
	if err != nil {
		return store.ImportResult{}, err
	}
	return p.importPayload(ctx, post, body)
}

// Replay re-imports the comment threads archived on day, or on every day when
// day is empty, without contacting the content service. A thread whose post
// is not stored, or whose payload does not form a tree, is recorded as a
// failure by its archive key.
func (p *Pipeline) Replay(ctx context.Context, archived Archive, day string) (Summary, error) {
	summary := Summary{RunID: util.NewShortID("run"), Failures: []string{}}
	keys, err := archived.Keys(ctx, reddit.KindThread, day)
	if err != nil {
		return summary, fmt.Errorf("list archived threads: %w", err)
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := p.replayKey(ctx, archived, key)
		if err != nil {
			log.Printf("ingest: run %s replay %s failed: %v", summary.RunID, key, err)
			summary.Failures = append(summary.Failures, key)
			continue
		}
		summary.Posts++
		summary.Comments += result.Inserted
		summary.Skipped += result.Skipped
	}
	log.Printf("ingest: run %s replayed %d threads comments=%d failures=%d",
		summary.RunID, summary.Posts, summary.Comments, len(summary.Failures))
	return summary, nil
}

func (p *Pipeline) replayKey(ctx context.Context, archived Archive, key string) (store.ImportResult, error) {
	name := strings.TrimSuffix(path.Base(key), ".json")
	post, err := p.store.FindPostByRedditName(ctx, name)
	if err != nil {
		return store.ImportResult{}, err
	}
	body, err := archived.Load(ctx, key)
	if err != nil {
		return store.ImportResult{}, err
	}
	return p.importPayload(ctx, post, body)
}

func (p *Pipeline) importPayload(ctx context.Context, post store.Post, body []byte) (store.ImportResult, error) {
	records := thread.Normalize(thread.ParsePayload(body))
	if _, err := thread.Build(records); err != nil {
		return store.ImportResult{}, fmt.Errorf("import post %s: %w", post.ID, err)
	}

	names := make([]string, 0, len(records))
	for _, rec := range records {
		names = append(names, rec.Author)
	}
	authors, err := p.registry.ResolveAll(ctx, names)
	if err != nil {
		return store.ImportResult{}, err
	}

	result, err := p.store.ImportComments(ctx, post.ID, records, authors)
	if err != nil {
		return store.ImportResult{}, fmt.Errorf("import post %s: %w", post.ID, err)
	}

	if p.indexer != nil && result.Inserted > 0 {
		docs := make([]search.CommentRecord, 0, len(records))
		for _, rec := range records {
			docs = append(docs, search.CommentRecord{
				ID:          result.LocalIDs[rec.ID],
				Body:        rec.Body,
				PostID:      post.ID,
				PostTitle:   post.Title,
				SubredditID: post.SubredditID,
			})
		}
		p.indexer.IndexComments(docs)
	}
	return result, nil
}
