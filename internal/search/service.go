package search

import (
	"context"
	"log"
	"sync"
)

// Service answers queries from Meilisearch while it is healthy and from
// PostgreSQL full-text search otherwise. Indexing only ever targets Meili;
// the PG side reads the live tables.
type Service struct {
	meili   *Meili
	pgfts   Searcher
	pending sync.WaitGroup
}

// NewService accepts a nil meili when Meilisearch is not configured.
func NewService(meili *Meili, pgfts Searcher) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	for _, backend := range s.backends() {
		results, total, err := backend.Search(ctx, q)
		if err != nil {
			log.Printf("search: %T failed for %q: %v", backend, q.Text, err)
			continue
		}
		return Response{Results: nonNil(results), Total: total, Query: q.Text}
	}
	return Response{Results: []Result{}, Query: q.Text}
}

// backends lists the searchers to try, in order.
func (s *Service) backends() []Searcher {
	var out []Searcher
	if s.meiliReady() {
		out = append(out, s.meili)
	}
	if s.pgfts != nil {
		out = append(out, s.pgfts)
	}
	return out
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

func (s *Service) IndexPost(post PostRecord) {
	if !s.meiliReady() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.meili.IndexPosts([]PostRecord{post}); err != nil {
			log.Printf("search: index post %s: %v", post.ID, err)
		}
	}()
}

func (s *Service) IndexComments(comments []CommentRecord) {
	if len(comments) == 0 || !s.meiliReady() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.meili.IndexComments(comments); err != nil {
			log.Printf("search: index %d comments: %v", len(comments), err)
		}
	}()
}

// Wait blocks until every indexing call started so far has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// ReindexAllFromPG copies every stored post and comment into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context, source *PgFTS) {
	if !s.meiliReady() || source == nil {
		return
	}
	posts, comments, err := source.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexPosts(posts); err != nil {
		log.Printf("search: reindex posts: %v", err)
	}
	if err := s.meili.IndexComments(comments); err != nil {
		log.Printf("search: reindex comments: %v", err)
	}
	log.Printf("search: reindexed %d posts and %d comments", len(posts), len(comments))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
