package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/forum-platform/services/engagement/internal/domain"
)

// InMemoryCommentStore is a development-only in-memory implementation.
type InMemoryCommentStore struct {
	mu       sync.RWMutex
	comments map[string]domain.Comment // id -> comment
	seq      int64
	now      func() time.Time
}

func NewInMemoryCommentStore() *InMemoryCommentStore {
	return &InMemoryCommentStore{
		comments: make(map[string]domain.Comment),
		now:      time.Now,
	}
}

func (s *InMemoryCommentStore) Create(ctx context.Context, in domain.NewComment) (domain.Comment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Comment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.ParentID != nil {
		parent, ok := s.comments[*in.ParentID]
		if !ok || parent.PostID != in.PostID {
			return domain.Comment{}, domain.ErrInvalidParent
		}
	}

	s.seq++
	c := domain.Comment{
		ID:        uuid.NewString(),
		PostID:    in.PostID,
		ParentID:  in.ParentID,
		AuthorID:  in.AuthorID,
		Text:      in.Text,
		CreatedAt: s.now().UTC(),
		Seq:       s.seq,
		Tally:     domain.NewTally(0, 0, domain.StateNone),
	}
	s.comments[c.ID] = c
	return c, nil
}

func (s *InMemoryCommentStore) Get(_ context.Context, id string) (domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[id]
	if !ok {
		return domain.Comment{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *InMemoryCommentStore) ListByPost(_ context.Context, postID string) ([]domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(func(c domain.Comment) bool { return c.PostID == postID }), nil
}

func (s *InMemoryCommentStore) ListChildren(_ context.Context, parentID string) ([]domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(func(c domain.Comment) bool { return c.ParentID != nil && *c.ParentID == parentID }), nil
}

// filter must be called with s.mu held.
func (s *InMemoryCommentStore) filter(keep func(domain.Comment) bool) []domain.Comment {
	out := make([]domain.Comment, 0)
	for _, c := range s.comments {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// DeleteCascade runs plan and the removal under the write lock, so no reply
// can be attached to a comment that is being removed.
func (s *InMemoryCommentStore) DeleteCascade(ctx context.Context, commentID string, plan CascadePlan) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.comments[commentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	ids, err := plan(target, s.filter(func(c domain.Comment) bool { return c.PostID == target.PostID }))
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		delete(s.comments, id)
	}
	return ids, nil
}
