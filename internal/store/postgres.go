package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"threadloom/api/internal/thread"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertUser creates a user and fails with ErrDuplicate when the username is taken.
func (s *PostgresStore) InsertUser(ctx context.Context, username, passwordHash string) (string, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id
	`, username, passwordHash).Scan(&id)
	if isUniqueViolation(err) {
		return "", fmt.Errorf("insert user %s: %w", username, ErrDuplicate)
	}
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	return formatID(id), nil
}

// EnsureUser returns the id of username, creating the user when missing.
func (s *PostgresStore) EnsureUser(ctx context.Context, username, passwordHash string) (string, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET updated_at=NOW()
		RETURNING id
	`, username, passwordHash).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("ensure user: %w", err)
	}
	return formatID(id), nil
}

func (s *PostgresStore) FindUserByName(ctx context.Context, username string) (User, error) {
	var (
		user User
		id   int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at, updated_at
		FROM users
		WHERE username=$1
	`, username).Scan(&id, &user.Username, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, notFound(err, "find user")
	}
	user.ID = formatID(id)
	return user, nil
}

func (s *PostgresStore) CreateSubreddit(ctx context.Context, item Subreddit) (string, error) {
	if strings.TrimSpace(item.Name) == "" {
		return "", fmt.Errorf("%w: subreddit name is required", ErrInvalidInput)
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO subreddits (reddit_name, name, description)
		VALUES ($1, $2, $3)
		RETURNING id
	`, nullString(item.RedditName), item.Name, item.Description).Scan(&id)
	if isUniqueViolation(err) {
		return "", fmt.Errorf("insert subreddit %s: %w", item.Name, ErrDuplicate)
	}
	if err != nil {
		return "", fmt.Errorf("insert subreddit: %w", err)
	}
	return formatID(id), nil
}

func (s *PostgresStore) FindSubredditByName(ctx context.Context, name string) (Subreddit, error) {
	var (
		item       Subreddit
		id         int64
		redditName sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, reddit_name, name, description, created_at, updated_at
		FROM subreddits
		WHERE name=$1
	`, name).Scan(&id, &redditName, &item.Name, &item.Description, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Subreddit{}, notFound(err, "find subreddit")
	}
	item.ID = formatID(id)
	item.RedditName = redditName.String
	return item, nil
}

func (s *PostgresStore) ListSubreddits(ctx context.Context) ([]Subreddit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reddit_name, name, description, created_at, updated_at
		FROM subreddits
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list subreddits: %w", err)
	}
	defer rows.Close()

	items := make([]Subreddit, 0)
	for rows.Next() {
		var (
			item       Subreddit
			id         int64
			redditName sql.NullString
		)
		if err := rows.Scan(&id, &redditName, &item.Name, &item.Description, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan subreddit: %w", err)
		}
		item.ID = formatID(id)
		item.RedditName = redditName.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subreddits: %w", err)
	}
	return items, nil
}

// CreatePost inserts a post. Posts carrying a RedditName are upserted on it so
// repeated ingest runs refresh rather than duplicate them.
func (s *PostgresStore) CreatePost(ctx context.Context, item Post) (string, error) {
	if item.SubredditID == "" {
		return "", fmt.Errorf("%w: subreddit id is required", ErrInvalidInput)
	}
	subredditID, err := parseID(item.SubredditID)
	if err != nil {
		return "", err
	}
	userID, err := optionalID(item.UserID)
	if err != nil {
		return "", err
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO posts (reddit_name, subreddit_id, user_id, title, url, permanent_link)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (reddit_name) DO UPDATE
			SET title=EXCLUDED.title, url=EXCLUDED.url, permanent_link=EXCLUDED.permanent_link, updated_at=NOW()
		RETURNING id
	`, nullString(item.RedditName), subredditID, userID, item.Title, item.URL, item.PermanentLink).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert post: %w", err)
	}
	return formatID(id), nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID string) (Post, error) {
	id, err := parseID(postID)
	if err != nil {
		return Post{}, fmt.Errorf("get post: %w", ErrNotFound)
	}
	var (
		item       Post
		redditName sql.NullString
		subreddit  int64
		userID     sql.NullInt64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, reddit_name, subreddit_id, user_id, title, url, permanent_link, created_at, updated_at
		FROM posts
		WHERE id=$1
	`, id).Scan(&id, &redditName, &subreddit, &userID, &item.Title, &item.URL, &item.PermanentLink, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Post{}, notFound(err, "get post")
	}
	item.ID = formatID(id)
	item.RedditName = redditName.String
	item.SubredditID = formatID(subreddit)
	if userID.Valid {
		item.UserID = formatID(userID.Int64)
	}
	return item, nil
}

// FindPostByRedditName looks a post up by its content service fullname.
func (s *PostgresStore) FindPostByRedditName(ctx context.Context, name string) (Post, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Post{}, fmt.Errorf("find post: %w", ErrNotFound)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM posts WHERE reddit_name=$1`, name).Scan(&id); err != nil {
		return Post{}, notFound(err, "find post")
	}
	return s.GetPost(ctx, formatID(id))
}

// ListTopPosts returns posts ordered by vote score with subreddit and author joined.
func (s *PostgresStore) ListTopPosts(ctx context.Context, limit int) ([]PostListing, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.reddit_name, p.title, p.url, p.permanent_link, p.created_at, p.updated_at,
			COALESCE(SUM(v.vote_direction), 0) AS vote_score,
			s.id, s.reddit_name, s.name, s.description, s.created_at, s.updated_at,
			u.id, u.username, u.created_at, u.updated_at
		FROM posts p
		JOIN subreddits s ON s.id = p.subreddit_id
		LEFT JOIN users u ON u.id = p.user_id
		LEFT JOIN votes v ON v.post_id = p.id
		GROUP BY p.id, s.id, u.id
		ORDER BY vote_score DESC, p.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list top posts: %w", err)
	}
	defer rows.Close()

	items := make([]PostListing, 0)
	for rows.Next() {
		var (
			item                     PostListing
			postID, subredditID      int64
			postReddit, subReddit    sql.NullString
			userID                   sql.NullInt64
			username                 sql.NullString
			userCreated, userUpdated sql.NullTime
		)
		if err := rows.Scan(
			&postID, &postReddit, &item.Title, &item.URL, &item.PermanentLink, &item.CreatedAt, &item.UpdatedAt,
			&item.VoteScore,
			&subredditID, &subReddit, &item.Subreddit.Name, &item.Subreddit.Description, &item.Subreddit.CreatedAt, &item.Subreddit.UpdatedAt,
			&userID, &username, &userCreated, &userUpdated,
		); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		item.ID = formatID(postID)
		item.RedditName = postReddit.String
		item.SubredditID = formatID(subredditID)
		item.Subreddit.ID = item.SubredditID
		item.Subreddit.RedditName = subReddit.String
		if userID.Valid {
			item.UserID = formatID(userID.Int64)
			item.User = User{ID: item.UserID, Username: username.String, CreatedAt: userCreated.Time, UpdatedAt: userUpdated.Time}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return items, nil
}

// CreateVote records or replaces a user's vote on a post.
func (s *PostgresStore) CreateVote(ctx context.Context, vote Vote) error {
	switch vote.VoteDirection {
	case -1, 0, 1:
	default:
		return fmt.Errorf("%w: vote direction must be -1, 0 or 1", ErrInvalidInput)
	}
	userID, err := parseID(vote.UserID)
	if err != nil {
		return err
	}
	postID, err := parseID(vote.PostID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO votes (user_id, post_id, vote_direction)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, post_id) DO UPDATE SET vote_direction=EXCLUDED.vote_direction, updated_at=NOW()
	`, userID, postID, vote.VoteDirection)
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

// CreateComment inserts one comment. A parent must belong to the same post.
func (s *PostgresStore) CreateComment(ctx context.Context, item Comment) (string, error) {
	postID, err := parseID(item.PostID)
	if err != nil {
		return "", err
	}
	userID, err := optionalID(item.UserID)
	if err != nil {
		return "", err
	}
	var parentID sql.NullInt64
	if item.ParentID != nil {
		parentID, err = optionalID(*item.ParentID)
		if err != nil {
			return "", err
		}
		var parentPost int64
		err = s.db.QueryRowContext(ctx, `SELECT post_id FROM comments WHERE id=$1`, parentID.Int64).Scan(&parentPost)
		if err != nil {
			return "", notFound(err, "find parent comment")
		}
		if parentPost != postID {
			return "", fmt.Errorf("%w: parent comment belongs to another post", ErrInvalidInput)
		}
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO comments (source_id, parent_id, user_id, post_id, text)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, nullString(item.SourceID), parentID, userID, postID, item.Text).Scan(&id)
	if isUniqueViolation(err) {
		return "", fmt.Errorf("insert comment %s: %w", item.SourceID, ErrDuplicate)
	}
	if err != nil {
		return "", fmt.Errorf("insert comment: %w", err)
	}
	return formatID(id), nil
}

// FetchChildren loads one tree level in a single query: the root comments of
// the post for a nil frontier, otherwise the children of every frontier id.
func (s *PostgresStore) FetchChildren(ctx context.Context, postID string, parents thread.Frontier) ([]thread.Row, error) {
	post, err := parseID(postID)
	if err != nil {
		return nil, err
	}

	const columns = `SELECT id, parent_id, user_id, post_id, text, created_at, updated_at FROM comments`
	var rows *sql.Rows
	if parents == nil {
		rows, err = s.db.QueryContext(ctx, columns+`
			WHERE post_id=$1 AND parent_id IS NULL
			ORDER BY created_at DESC, id DESC
		`, post)
	} else {
		ids := make([]int64, 0, len(parents))
		for _, parent := range parents {
			id, err := parseID(parent)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		rows, err = s.db.QueryContext(ctx, columns+`
			WHERE post_id=$1 AND parent_id = ANY($2)
			ORDER BY created_at DESC, id DESC
		`, post, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch comment level: %w", err)
	}
	defer rows.Close()

	items := make([]thread.Row, 0)
	for rows.Next() {
		var (
			item             thread.Row
			id, postRef      int64
			parentID, userID sql.NullInt64
		)
		if err := rows.Scan(&id, &parentID, &userID, &postRef, &item.Text, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		item.ID = formatID(id)
		item.ParentID = nullableID(parentID)
		item.PostID = formatID(postRef)
		if userID.Valid {
			item.UserID = formatID(userID.Int64)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// ImportComments persists normalized records under postID in one
// transaction. Records must be in level-major order so every parent is
// written before its children; source ids already present are skipped and
// reused as parents. authors maps usernames to user ids.
func (s *PostgresStore) ImportComments(ctx context.Context, postID string, records []thread.Record, authors map[string]string) (ImportResult, error) {
	result := ImportResult{LocalIDs: make(map[string]string, len(records))}
	post, err := parseID(postID)
	if err != nil {
		return result, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin import tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range records {
		var parentID sql.NullInt64
		if !rec.IsRoot() {
			local, ok := result.LocalIDs[*rec.ParentID]
			if !ok {
				var existing int64
				err := tx.QueryRowContext(ctx, `SELECT id FROM comments WHERE source_id=$1 AND post_id=$2`, *rec.ParentID, post).Scan(&existing)
				if errors.Is(err, sql.ErrNoRows) {
					return ImportResult{}, fmt.Errorf("import comment %s: %w", rec.ID, thread.ErrOrphanRecord)
				}
				if err != nil {
					return ImportResult{}, fmt.Errorf("resolve parent %s: %w", *rec.ParentID, err)
				}
				local = formatID(existing)
				result.LocalIDs[*rec.ParentID] = local
			}
			parentID, _ = optionalID(local)
		}
		userID, err := optionalID(authors[rec.Author])
		if err != nil {
			return ImportResult{}, err
		}

		var id int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO comments (source_id, parent_id, user_id, post_id, text)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (source_id) DO NOTHING
			RETURNING id
		`, rec.ID, parentID, userID, post, rec.Body).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			err := tx.QueryRowContext(ctx, `SELECT id FROM comments WHERE source_id=$1 AND post_id=$2`, rec.ID, post).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				return ImportResult{}, fmt.Errorf("%w: comment %s is stored under another post", ErrInvalidInput, rec.ID)
			}
			if err != nil {
				return ImportResult{}, fmt.Errorf("load existing comment %s: %w", rec.ID, err)
			}
			result.Skipped++
		} else if err != nil {
			return ImportResult{}, fmt.Errorf("insert comment %s: %w", rec.ID, err)
		} else {
			result.Inserted++
		}
		result.LocalIDs[rec.ID] = formatID(id)
	}

	if err := tx.Commit(); err != nil {
		return ImportResult{}, fmt.Errorf("commit import: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, created_at, updated_at
		FROM users
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var (
			user User
			id   int64
		)
		if err := rows.Scan(&id, &user.Username, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.ID = formatID(id)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}
