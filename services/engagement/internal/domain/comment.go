package domain

import "time"

// Comment is one node of a post's discussion. PostID and ParentID never
// change after creation. Seq increases with insertion order.
type Comment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	ParentID   *string   `json:"parent_id,omitempty"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	Seq        int64     `json:"-"`
	Tally
}

// IsRoot reports whether c was posted directly on the post.
func (c Comment) IsRoot() bool { return c.ParentID == nil || *c.ParentID == "" }

// NewComment is the input to CommentStore.Create.
type NewComment struct {
	PostID   string
	AuthorID string
	Text     string
	ParentID *string
}

// Node is a comment with its ordered replies.
type Node struct {
	Comment
	Replies []Node `json:"replies"`
}

// DeleteResult lists every comment removed by a cascade delete.
type DeleteResult struct {
	DeletedIDs []string `json:"deleted_ids"`
}

// Post is the slice of a post the engagement subsystem reads.
type Post struct {
	ID             string
	AuthorID       string
	IsDraft        bool
	CommentsLocked bool
}

// AllowsComments reports whether new comments may be attached.
func (p Post) AllowsComments() bool { return !p.IsDraft && !p.CommentsLocked }
