// Package thread rebuilds nested comment trees from flat rows or from the
// irregular nested payloads served by the content service.
package thread

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformed is the class of errors raised for input that cannot form a tree.
	ErrMalformed = errors.New("malformed thread input")
	// ErrCycleDetected reports a record that would become its own ancestor.
	ErrCycleDetected = fmt.Errorf("%w: parent cycle detected", ErrMalformed)
	// ErrOrphanRecord reports a record whose parent is not present in the tree.
	ErrOrphanRecord = fmt.Errorf("%w: parent not found", ErrMalformed)
)

// Record is a single comment with explicit parent linkage.
// A nil ParentID means the comment hangs directly off the post.
type Record struct {
	ID        string
	ParentID  *string
	PostID    string
	Author    string
	Body      string
	Depth     int
	CreatedAt time.Time
	UpdatedAt time.Time
	Children  []Record
}

// IsRoot reports whether the record is attached to the post itself.
func (r Record) IsRoot() bool {
	return r.ParentID == nil
}

// Tree is the ordered list of root comments of one post.
type Tree []Record

// Count returns the number of records in the tree, at every depth.
func (t Tree) Count() int {
	total := 0
	for _, node := range t {
		total += 1 + Tree(node.Children).Count()
	}
	return total
}

// Flatten returns the records of the tree in level-major order with their
// Children cleared.
func (t Tree) Flatten() []Record {
	out := make([]Record, 0, len(t))
	level := []Record(t)
	for len(level) > 0 {
		var next []Record
		for _, node := range level {
			next = append(next, node.Children...)
			node.Children = nil
			out = append(out, node)
		}
		level = next
	}
	return out
}

// FetchError aborts a crawl. No partial tree accompanies it.
type FetchError struct {
	PostID string
	Level  int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch comments for post %s at level %d: %v", e.PostID, e.Level, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func strPtr(s string) *string {
	return &s
}
