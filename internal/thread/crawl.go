package thread

import (
	"context"
	"fmt"
	"time"
)

// Row is a flat comment row as returned by the relational store.
type Row struct {
	ID        string
	ParentID  *string
	UserID    string
	PostID    string
	Text      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Record wraps the row for the assembler.
func (r Row) Record() Record {
	return Record{
		ID:        r.ID,
		ParentID:  r.ParentID,
		PostID:    r.PostID,
		Author:    r.UserID,
		Body:      r.Text,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// Frontier is the set of comment ids whose children are requested next.
// A nil Frontier asks for the root comments of the post.
type Frontier []string

// Fetcher returns, in one batched call, the children of every id in parents.
type Fetcher interface {
	FetchChildren(ctx context.Context, postID string, parents Frontier) ([]Row, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context, postID string, parents Frontier) ([]Row, error)

func (f FetchFunc) FetchChildren(ctx context.Context, postID string, parents Frontier) ([]Row, error) {
	return f(ctx, postID, parents)
}

// Crawler expands a comment tree one level per round trip.
type Crawler struct {
	fetcher      Fetcher
	levelTimeout time.Duration
}

// NewCrawler builds a crawler. A positive levelTimeout bounds each round trip.
func NewCrawler(fetcher Fetcher, levelTimeout time.Duration) *Crawler {
	return &Crawler{fetcher: fetcher, levelTimeout: levelTimeout}
}

// Crawl fetches up to maxLevels levels of comments for postID and returns
// them as a tree. It stops early at the first empty level. Any fetch error
// aborts the crawl and is returned as a *FetchError with a nil tree.
func (c *Crawler) Crawl(ctx context.Context, postID string, maxLevels int) (Tree, error) {
	tree := Tree{}
	var frontier Frontier
	for level := 0; level < maxLevels; level++ {
		rows, err := c.fetchLevel(ctx, postID, frontier)
		if err != nil {
			return nil, &FetchError{PostID: postID, Level: level, Err: err}
		}
		if len(rows) == 0 {
			break
		}

		delta := make([]Record, 0, len(rows))
		next := make(Frontier, 0, len(rows))
		for _, row := range rows {
			delta = append(delta, row.Record())
			next = append(next, row.ID)
		}
		tree, err = Merge(tree, delta)
		if err != nil {
			return nil, fmt.Errorf("merge level %d of post %s: %w", level, postID, err)
		}
		frontier = next
	}
	return tree, nil
}

func (c *Crawler) fetchLevel(ctx context.Context, postID string, frontier Frontier) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.levelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.levelTimeout)
		defer cancel()
	}
	return c.fetcher.FetchChildren(ctx, postID, frontier)
}
