package app

import (
	"context"
	"strconv"
	"sync"
	"time"

	"threadloom/api/internal/account"
	"threadloom/api/internal/config"
	"threadloom/api/internal/ingest"
	"threadloom/api/internal/search"
	"threadloom/api/internal/store"
	"threadloom/api/internal/thread"
)

type fakeStore struct {
	mu         sync.Mutex
	posts      map[string]store.Post
	listings   []store.PostListing
	comments   []store.Comment
	votes      []store.Vote
	subreddits []store.Subreddit
	users      []store.User
	seq        int
	pingErr    error
	fetchFn    func(ctx context.Context, postID string, parents thread.Frontier) ([]thread.Row, error)
	fetchCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{posts: map[string]store.Post{}}
}

func (f *fakeStore) nextID() string {
	f.seq++
	return strconv.Itoa(f.seq)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeStore) ListTopPosts(ctx context.Context, limit int) ([]store.PostListing, error) {
	return f.listings, nil
}

func (f *fakeStore) GetPost(ctx context.Context, postID string) (store.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[postID]
	if !ok {
		return store.Post{}, store.ErrNotFound
	}
	return post, nil
}

func (f *fakeStore) CreatePost(ctx context.Context, item store.Post) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ID = f.nextID()
	f.posts[item.ID] = item
	return item.ID, nil
}

func (f *fakeStore) CreateVote(ctx context.Context, vote store.Vote) error {
	if vote.VoteDirection < -1 || vote.VoteDirection > 1 {
		return store.ErrInvalidInput
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.votes = append(f.votes, vote)
	return nil
}

func (f *fakeStore) CreateComment(ctx context.Context, item store.Comment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ID = f.nextID()
	f.comments = append(f.comments, item)
	return item.ID, nil
}

func (f *fakeStore) ListSubreddits(ctx context.Context) ([]store.Subreddit, error) {
	return f.subreddits, nil
}

func (f *fakeStore) CreateSubreddit(ctx context.Context, item store.Subreddit) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.subreddits {
		if existing.Name == item.Name {
			return "", store.ErrDuplicate
		}
	}
	item.ID = f.nextID()
	f.subreddits = append(f.subreddits, item)
	return item.ID, nil
}

func (f *fakeStore) ListUsers(ctx context.Context) ([]store.User, error) {
	return f.users, nil
}

func (f *fakeStore) FetchChildren(ctx context.Context, postID string, parents thread.Frontier) ([]thread.Row, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.mu.Unlock()
	if f.fetchFn != nil {
		return f.fetchFn(ctx, postID, parents)
	}
	return nil, nil
}

type fakeAccounts struct {
	users map[string]string
}

func (f *fakeAccounts) CreateUser(ctx context.Context, username, password string) (string, error) {
	if username == "" {
		return "", account.ErrInvalidUsername
	}
	if f.users == nil {
		f.users = map[string]string{}
	}
	if _, ok := f.users[username]; ok {
		return "", account.ErrUsernameTaken
	}
	f.users[username] = password
	return strconv.Itoa(len(f.users)), nil
}

func (f *fakeAccounts) Authenticate(ctx context.Context, username, password string) (store.User, error) {
	if f.users[username] != password || password == "" {
		return store.User{}, account.ErrBadCredentials
	}
	return store.User{ID: "1", Username: username}, nil
}

type fakeImporter struct {
	opts      ingest.Options
	summary   ingest.Summary
	importErr error
	imported  []string
}

func (f *fakeImporter) Run(ctx context.Context, opts ingest.Options) (ingest.Summary, error) {
	f.opts = opts
	return f.summary, nil
}

func (f *fakeImporter) ImportThread(ctx context.Context, postID string) (store.ImportResult, error) {
	if f.importErr != nil {
		return store.ImportResult{}, f.importErr
	}
	f.imported = append(f.imported, postID)
	return store.ImportResult{Inserted: 3, Skipped: 1}, nil
}

type fakeSearch struct {
	mu       sync.Mutex
	query    search.Query
	posts    []search.PostRecord
	comments []search.CommentRecord
}

func (f *fakeSearch) Search(ctx context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = q
	return search.Response{Results: []search.Result{{Type: search.ResultComment, ID: "9", PostID: "1"}}, Total: 1, Query: q.Text}
}

func (f *fakeSearch) IndexPost(post search.PostRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post)
}

func (f *fakeSearch) IndexComments(comments []search.CommentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, comments...)
}

type testHarness struct {
	store    *fakeStore
	accounts *fakeAccounts
	importer *fakeImporter
	search   *fakeSearch
	service  *Service
	server   *HTTPServer
}

func newHarness() *testHarness {
	h := &testHarness{
		store:    newFakeStore(),
		accounts: &fakeAccounts{},
		importer: &fakeImporter{},
		search:   &fakeSearch{},
	}
	cfg := config.Config{
		SyncToken:         "sync-secret",
		SessionSecret:     "session-secret",
		SessionTTL:        time.Hour,
		CrawlMaxLevels:    5,
		FetchTimeout:      time.Second,
		IngestConcurrency: 3,
	}
	h.service = newService(cfg, h.store, h.accounts, h.importer, h.search)
	h.server = NewHTTPServer(h.service, "*")
	return h
}

func ptr(s string) *string {
	return &s
}
