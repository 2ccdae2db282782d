package store

import "time"

type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Subreddit struct {
	ID          string
	RedditName  string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Post struct {
	ID            string
	RedditName    string
	SubredditID   string
	UserID        string
	Title         string
	URL           string
	PermanentLink string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PostListing is a post joined with its subreddit, author and vote score.
type PostListing struct {
	Post
	VoteScore int
	Subreddit Subreddit
	User      User
}

type Vote struct {
	UserID        string
	PostID        string
	VoteDirection int
}

type Comment struct {
	ID       string
	SourceID string
	ParentID *string
	UserID   string
	PostID   string
	Text     string
}

// ImportResult reports what ImportComments wrote.
type ImportResult struct {
	Inserted int
	Skipped  int
	// LocalIDs maps source comment ids to comments.id values.
	LocalIDs map[string]string
}
