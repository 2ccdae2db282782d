package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"threadloom/api/internal/account"
	"threadloom/api/internal/auth"
	"threadloom/api/internal/config"
	"threadloom/api/internal/ingest"
	"threadloom/api/internal/search"
	"threadloom/api/internal/store"
	"threadloom/api/internal/thread"
)

const (
	topPostsLimit = 25
	maxTreeLevels = 50
)

type CreatePostInput struct {
	SubredditID string `json:"subredditId"`
	UserID      string `json:"userId"`
	Title       string `json:"title"`
	URL         string `json:"url"`
}

type CreateCommentInput struct {
	ParentID *string `json:"parentId"`
	UserID   string  `json:"userId"`
	Text     string  `json:"text"`
}

type VoteInput struct {
	UserID        string `json:"userId"`
	VoteDirection int    `json:"voteDirection"`
}

type CreateSubredditInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CredentialsInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type IngestInput struct {
	Subreddits   []string `json:"subreddits"`
	WithComments bool     `json:"withComments"`
}

type SessionView struct {
	User  UserView `json:"user"`
	Token string   `json:"token"`
}

type UserView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type SubredditView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type PostView struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	URL           string         `json:"url"`
	PermanentLink string         `json:"permanentLink,omitempty"`
	SubredditID   string         `json:"subredditId"`
	UserID        string         `json:"userId,omitempty"`
	VoteScore     *int           `json:"voteScore,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	User          *UserView      `json:"user,omitempty"`
	Subreddit     *SubredditView `json:"subreddit,omitempty"`
}

type dataStore interface {
	thread.Fetcher
	Ping(ctx context.Context) error
	ListTopPosts(ctx context.Context, limit int) ([]store.PostListing, error)
	GetPost(ctx context.Context, postID string) (store.Post, error)
	CreatePost(ctx context.Context, item store.Post) (string, error)
	CreateVote(ctx context.Context, vote store.Vote) error
	CreateComment(ctx context.Context, item store.Comment) (string, error)
	ListSubreddits(ctx context.Context) ([]store.Subreddit, error)
	CreateSubreddit(ctx context.Context, item store.Subreddit) (string, error)
	ListUsers(ctx context.Context) ([]store.User, error)
}

type accountService interface {
	CreateUser(ctx context.Context, username, password string) (string, error)
	Authenticate(ctx context.Context, username, password string) (store.User, error)
}

type importer interface {
	Run(ctx context.Context, opts ingest.Options) (ingest.Summary, error)
	ImportThread(ctx context.Context, postID string) (store.ImportResult, error)
}

type searchService interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexPost(post search.PostRecord)
	IndexComments(comments []search.CommentRecord)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	accounts accountService
	importer importer
	search   searchService
	tokens   *auth.Issuer
	crawler  *thread.Crawler
}

func New(cfg config.Config, dataStore *store.PostgresStore, accounts *account.Service, pipeline *ingest.Pipeline, searchSvc *search.Service) *Service {
	return newService(cfg, dataStore, accounts, pipeline, searchSvc)
}

func newService(cfg config.Config, dataStore dataStore, accounts accountService, pipeline importer, searchSvc searchService) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		accounts: accounts,
		importer: pipeline,
		search:   searchSvc,
		tokens:   auth.NewIssuer(cfg.SessionSecret, cfg.SessionTTL),
		crawler:  thread.NewCrawler(dataStore, cfg.FetchTimeout),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SyncToken() string {
	return s.cfg.SyncToken
}

func (s *Service) ListPosts(ctx context.Context) ([]PostView, error) {
	listings, err := s.store.ListTopPosts(ctx, topPostsLimit)
	if err != nil {
		return nil, err
	}
	out := make([]PostView, 0, len(listings))
	for _, listing := range listings {
		view := postView(listing.Post)
		score := listing.VoteScore
		view.VoteScore = &score
		subreddit := subredditView(listing.Subreddit)
		view.Subreddit = &subreddit
		if listing.User.ID != "" {
			user := userView(listing.User)
			view.User = &user
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *Service) GetPost(ctx context.Context, postID string) (PostView, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return PostView{}, err
	}
	return postView(post), nil
}

func (s *Service) CreatePost(ctx context.Context, input CreatePostInput) (string, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return "", validationError("title is required")
	}
	if strings.TrimSpace(input.SubredditID) == "" {
		return "", validationError("subredditId is required")
	}
	id, err := s.store.CreatePost(ctx, store.Post{
		SubredditID: input.SubredditID,
		UserID:      input.UserID,
		Title:       title,
		URL:         strings.TrimSpace(input.URL),
	})
	if err != nil {
		return "", err
	}
	s.search.IndexPost(search.PostRecord{ID: id, Title: title, URL: input.URL, SubredditID: input.SubredditID})
	return id, nil
}

// CommentTree loads up to levels levels of comments under a post, one batched
// query per level. A non-positive levels uses the configured default.
func (s *Service) CommentTree(ctx context.Context, postID string, levels int) ([]thread.Node, error) {
	if levels <= 0 {
		levels = s.cfg.CrawlMaxLevels
	}
	if levels > maxTreeLevels {
		return nil, validationError("levels must be at most %d", maxTreeLevels)
	}
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	tree, err := s.crawler.Crawl(ctx, postID, levels)
	if err != nil {
		return nil, err
	}
	return thread.Serialize(tree), nil
}

func (s *Service) CreateComment(ctx context.Context, postID string, input CreateCommentInput) (string, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return "", validationError("text is required")
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return "", err
	}
	id, err := s.store.CreateComment(ctx, store.Comment{
		ParentID: input.ParentID,
		UserID:   input.UserID,
		PostID:   post.ID,
		Text:     text,
	})
	if err != nil {
		return "", err
	}
	s.search.IndexComments([]search.CommentRecord{{
		ID:          id,
		Body:        text,
		PostID:      post.ID,
		PostTitle:   post.Title,
		SubredditID: post.SubredditID,
	}})
	return id, nil
}

func (s *Service) Vote(ctx context.Context, postID string, input VoteInput) error {
	if strings.TrimSpace(input.UserID) == "" {
		return validationError("userId is required")
	}
	return s.store.CreateVote(ctx, store.Vote{UserID: input.UserID, PostID: postID, VoteDirection: input.VoteDirection})
}

func (s *Service) ListSubreddits(ctx context.Context) ([]SubredditView, error) {
	items, err := s.store.ListSubreddits(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SubredditView, 0, len(items))
	for _, item := range items {
		out = append(out, subredditView(item))
	}
	return out, nil
}

func (s *Service) CreateSubreddit(ctx context.Context, input CreateSubredditInput) (string, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return "", validationError("name is required")
	}
	id, err := s.store.CreateSubreddit(ctx, store.Subreddit{Name: name, Description: input.Description})
	if errors.Is(err, store.ErrDuplicate) {
		return "", conflictError("DUPLICATE_SUBREDDIT", "A subreddit with this name already exists")
	}
	return id, err
}

func (s *Service) ListUsers(ctx context.Context) ([]UserView, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserView, 0, len(users))
	for _, user := range users {
		out = append(out, userView(user))
	}
	return out, nil
}

func (s *Service) CreateUser(ctx context.Context, input CredentialsInput) (string, error) {
	id, err := s.accounts.CreateUser(ctx, input.Username, input.Password)
	switch {
	case errors.Is(err, account.ErrUsernameTaken):
		return "", conflictError("DUPLICATE_USERNAME", err.Error())
	case errors.Is(err, account.ErrInvalidUsername), errors.Is(err, account.ErrInvalidPassword):
		return "", validationError("%s", err)
	}
	return id, err
}

func (s *Service) Login(ctx context.Context, input CredentialsInput) (SessionView, error) {
	user, err := s.accounts.Authenticate(ctx, input.Username, input.Password)
	if err != nil {
		return SessionView{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}
	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return SessionView{}, err
	}
	return SessionView{User: userView(user), Token: token}, nil
}

// SessionUser returns the user id carried by a session token.
func (s *Service) SessionUser(token string) (string, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return "", domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired session", nil)
	}
	return claims.Subject, nil
}

// NormalizeThread turns a raw content service payload into a comment tree
// without touching storage.
func (s *Service) NormalizeThread(payload []byte) ([]thread.Node, error) {
	tree, err := thread.Build(thread.Normalize(thread.ParsePayload(payload)))
	if err != nil {
		return nil, err
	}
	return thread.Serialize(tree), nil
}

func (s *Service) RunIngest(ctx context.Context, input IngestInput) (ingest.Summary, error) {
	return s.importer.Run(ctx, ingest.Options{
		Subreddits:   input.Subreddits,
		Concurrency:  s.cfg.IngestConcurrency,
		WithComments: input.WithComments,
	})
}

func (s *Service) ImportThread(ctx context.Context, postID string) (store.ImportResult, error) {
	result, err := s.importer.ImportThread(ctx, postID)
	if errors.Is(err, ingest.ErrNotImportable) {
		return store.ImportResult{}, domainError(http.StatusUnprocessableEntity, "NOT_IMPORTABLE", "Post was not ingested from the content service", nil)
	}
	return result, err
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}

func postView(post store.Post) PostView {
	return PostView{
		ID:            post.ID,
		Title:         post.Title,
		URL:           post.URL,
		PermanentLink: post.PermanentLink,
		SubredditID:   post.SubredditID,
		UserID:        post.UserID,
		CreatedAt:     post.CreatedAt,
		UpdatedAt:     post.UpdatedAt,
	}
}

func subredditView(item store.Subreddit) SubredditView {
	return SubredditView{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func userView(user store.User) UserView {
	return UserView{
		ID:        user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
