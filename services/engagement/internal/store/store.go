// Package store persists engagement state: vote sets and counters, comments,
// and the read side of posts owned by the content service.
//
// Every contract has an in-memory implementation (development and tests)
// and a Postgres one; votes can also live in Redis.
package store

import (
	"context"
	"errors"

	"github.com/example/forum-platform/services/engagement/internal/domain"
)

// VoteLedger records who voted which way on each target and returns counters
// derived from those sets. Toggle is atomic per target.
type VoteLedger interface {
	Toggle(ctx context.Context, target domain.Target, voterID string, dir domain.Direction) (domain.Tally, error)
	// Tallies returns counters for ids; UserState reflects viewerID when set.
	// Unknown ids map to a zero tally.
	Tallies(ctx context.Context, typ domain.TargetType, ids []string, viewerID string) (map[string]domain.Tally, error)
	// Forget drops the vote sets of removed targets. Safe to repeat.
	Forget(ctx context.Context, typ domain.TargetType, ids []string) error
}

// CascadePlan receives the comment being deleted and the flat list of its
// post, read inside the store's consistency boundary, and returns the ids to
// remove. Returning an error aborts the delete without removing anything.
type CascadePlan func(target domain.Comment, postComments []domain.Comment) ([]string, error)

// CommentStore keeps comments flat, tagged with post id and parent id.
type CommentStore interface {
	// Create fails with domain.ErrInvalidParent when ParentID does not name a
	// comment of the same post. Post existence is the caller's concern.
	Create(ctx context.Context, in domain.NewComment) (domain.Comment, error)
	Get(ctx context.Context, id string) (domain.Comment, error)
	ListByPost(ctx context.Context, postID string) ([]domain.Comment, error)
	ListChildren(ctx context.Context, parentID string) ([]domain.Comment, error)
	DeleteCascade(ctx context.Context, commentID string, plan CascadePlan) ([]string, error)
}

// PostDirectory answers existence, ownership and comment permission for
// posts. Post returns domain.ErrNotFound for unknown ids.
type PostDirectory interface {
	Post(ctx context.Context, postID string) (domain.Post, error)
}

// TargetChecker reports whether a votable exists.
type TargetChecker interface {
	TargetExists(ctx context.Context, target domain.Target) (bool, error)
}

// Targets resolves votables through the post directory and comment store.
type Targets struct {
	Posts    PostDirectory
	Comments CommentStore
}

func (t Targets) TargetExists(ctx context.Context, target domain.Target) (bool, error) {
	var err error
	switch target.Type {
	case domain.TargetPost:
		_, err = t.Posts.Post(ctx, target.ID)
	case domain.TargetComment:
		_, err = t.Comments.Get(ctx, target.ID)
	default:
		return false, domain.ErrInvalidTarget
	}
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
