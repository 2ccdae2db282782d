// Package reddit reads subreddit listings and comment threads from the
// public JSON endpoints of the content service.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status from content service")
	ErrPayloadTooLarge  = errors.New("payload exceeds size limit")
)

const defaultMaxPayloadBytes = 16 << 20

// Archive kinds. Threads are archived under their post fullname.
const (
	KindListing = "listing"
	KindThread  = "thread"
)

// Cache stores raw payload bodies by request URL.
type Cache interface {
	Get(ctx context.Context, url string) ([]byte, bool, error)
	Set(ctx context.Context, url string, body []byte) error
	Invalidate(ctx context.Context, url string) error
}

// Archiver keeps a copy of every fetched payload.
type Archiver interface {
	Save(ctx context.Context, kind, id string, payload []byte) (string, error)
}

// PostSummary is the subset of a listing entry the crawler persists.
type PostSummary struct {
	Name      string
	Subreddit string
	Title     string
	URL       string
	Author    string
	Permalink string
}

type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
	archive    Archiver
	maxPayload int64
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

func WithArchive(archive Archiver) Option {
	return func(c *Client) { c.archive = archive }
}

// WithMaxPayloadBytes caps the size of a response body. Larger bodies fail
// with ErrPayloadTooLarge.
func WithMaxPayloadBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPayload = n
		}
	}
}

// NewClient builds a client that issues at most requestsPerSecond requests.
// A non-positive rate disables limiting.
func NewClient(baseURL, userAgent string, requestsPerSecond float64, opts ...Option) *Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(limit, 1),
		maxPayload: defaultMaxPayloadBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string      `json:"kind"`
			Data listingItem `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type listingItem struct {
	Name      string `json:"name"`
	Subreddit string `json:"subreddit"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Author    string `json:"author"`
	Permalink string `json:"permalink"`
	IsSelf    bool   `json:"is_self"`
}

// Subreddits returns the names of the subreddits on the front page, in
// order of first appearance.
func (c *Client) Subreddits(ctx context.Context) ([]string, error) {
	var front listing
	if err := c.getJSON(ctx, "/.json", KindListing, "front", &front); err != nil {
		return nil, fmt.Errorf("fetch front page: %w", err)
	}

	seen := make(map[string]bool, len(front.Data.Children))
	names := make([]string, 0, len(front.Data.Children))
	for _, child := range front.Data.Children {
		name := strings.TrimSpace(child.Data.Subreddit)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// Posts returns the link posts on a subreddit's first page. Self posts are
// skipped.
func (c *Client) Posts(ctx context.Context, subreddit string) ([]PostSummary, error) {
	subreddit = strings.TrimSpace(subreddit)
	if subreddit == "" {
		return nil, fmt.Errorf("subreddit name is required")
	}
	var page listing
	if err := c.getJSON(ctx, "/r/"+url.PathEscape(subreddit)+"/.json", KindListing, "r_"+subreddit, &page); err != nil {
		return nil, fmt.Errorf("fetch posts for %s: %w", subreddit, err)
	}

	posts := make([]PostSummary, 0, len(page.Data.Children))
	for _, child := range page.Data.Children {
		item := child.Data
		if item.IsSelf {
			continue
		}
		posts = append(posts, PostSummary{
			Name:      item.Name,
			Subreddit: subreddit,
			Title:     item.Title,
			URL:       item.URL,
			Author:    item.Author,
			Permalink: item.Permalink,
		})
	}
	return posts, nil
}

// CommentThread returns the raw payload of a post's comment thread.
// postName may be a fullname ("t3_abc") or a bare id.
func (c *Client) CommentThread(ctx context.Context, postName string) ([]byte, error) {
	id := strings.TrimPrefix(strings.TrimSpace(postName), "t3_")
	if id == "" {
		return nil, fmt.Errorf("post name is required")
	}
	body, err := c.get(ctx, "/comments/"+url.PathEscape(id)+".json", KindThread, "t3_"+id)
	if err != nil {
		return nil, fmt.Errorf("fetch comment thread %s: %w", id, err)
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, path, kind, id string, out any) error {
	body, err := c.get(ctx, path, kind, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		if c.cache != nil {
			if cacheErr := c.cache.Invalidate(ctx, c.baseURL+path); cacheErr != nil {
				log.Printf("reddit: cache invalidate failed for %s: %v", path, cacheErr)
			}
		}
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path, kind, id string) ([]byte, error) {
	endpoint := c.baseURL + path
	if c.cache != nil {
		body, ok, err := c.cache.Get(ctx, endpoint)
		if err != nil {
			log.Printf("reddit: cache lookup failed for %s: %v", endpoint, err)
		} else if ok {
			return body, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxPayload+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxPayload {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrPayloadTooLarge, endpoint, c.maxPayload)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, endpoint, body); err != nil {
			log.Printf("reddit: cache store failed for %s: %v", endpoint, err)
		}
	}
	if c.archive != nil {
		if _, err := c.archive.Save(ctx, kind, id, body); err != nil {
			log.Printf("reddit: archive failed for %s: %v", endpoint, err)
		}
	}
	return body, nil
}
