package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

// buildQuery returns the count and page queries for q plus their arguments.
func buildQuery(q Query) (string, string, []any) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const tsQuery = "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	subredditFilter := ""
	if q.FilterSubredditID != "" {
		args = append(args, q.FilterSubredditID)
		subredditFilter = " AND p.subreddit_id::text = $2"
	}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultPost {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'post'::text AS type, p.id::text AS id, p.title,
				p.url AS snippet,
				p.id::text AS post_id, p.subreddit_id::text AS subreddit_id,
				ts_rank(p.fts, %s) AS rank
			FROM posts p
			WHERE p.fts @@ %s%s`, tsQuery, tsQuery, subredditFilter))
	}
	if q.FilterType == "" || q.FilterType == ResultComment {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, c.id::text AS id, p.title,
				ts_headline('english', c.text, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.id::text AS post_id, p.subreddit_id::text AS subreddit_id,
				ts_rank(c.fts, %s) AS rank
			FROM comments c
			JOIN posts p ON p.id = c.post_id
			WHERE c.fts @@ %s%s`, tsQuery, tsQuery, tsQuery, subredditFilter))
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, post_id, subreddit_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset)
	return countSQL, dataSQL, args
}

// Search runs plainto_tsquery over post titles and comment text, ranked by ts_rank.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	countSQL, dataSQL, args := buildQuery(q)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r   Result
			typ string
		)
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.PostID, &r.SubredditID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every post and comment for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PostRecord, []CommentRecord, error) {
	postRows, err := p.db.QueryContext(ctx, `
		SELECT id::text, title, url, subreddit_id::text
		FROM posts
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load posts: %w", err)
	}
	defer postRows.Close()

	posts := make([]PostRecord, 0)
	for postRows.Next() {
		var r PostRecord
		if err := postRows.Scan(&r.ID, &r.Title, &r.URL, &r.SubredditID); err != nil {
			return nil, nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, r)
	}
	if err := postRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate posts: %w", err)
	}

	commentRows, err := p.db.QueryContext(ctx, `
		SELECT c.id::text, c.text, p.id::text, p.title, p.subreddit_id::text
		FROM comments c
		JOIN posts p ON p.id = c.post_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	comments := make([]CommentRecord, 0)
	for commentRows.Next() {
		var r CommentRecord
		if err := commentRows.Scan(&r.ID, &r.Body, &r.PostID, &r.PostTitle, &r.SubredditID); err != nil {
			return nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, r)
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate comments: %w", err)
	}
	return posts, comments, nil
}
