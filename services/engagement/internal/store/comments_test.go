package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/forum-platform/services/engagement/internal/domain"
)

var (
	_ CommentStore = (*InMemoryCommentStore)(nil)
	_ CommentStore = (*PostgresCommentStore)(nil)

	_ PostDirectory = (*InMemoryPostDirectory)(nil)
	_ PostDirectory = (*PostgresPostDirectory)(nil)
)

func ptr(s string) *string { return &s }

func TestInMemoryCommentStore_CreateAndGet(t *testing.T) {
	s := NewInMemoryCommentStore()
	ctx := context.Background()

	c, err := s.Create(ctx, domain.NewComment{PostID: "P", AuthorID: "U1", Text: "hello"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() || c.Seq != 1 {
		t.Fatalf("expected generated id, timestamp and seq, got %+v", c)
	}

	got, err := s.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != "hello" || got.AuthorID != "U1" {
		t.Fatalf("unexpected comment: %+v", got)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryCommentStore_InvalidParent(t *testing.T) {
	s := NewInMemoryCommentStore()
	ctx := context.Background()

	other, _ := s.Create(ctx, domain.NewComment{PostID: "Q", AuthorID: "U1", Text: "elsewhere"})

	_, err := s.Create(ctx, domain.NewComment{PostID: "P", AuthorID: "U1", Text: "x", ParentID: ptr("missing")})
	if !errors.Is(err, domain.ErrInvalidParent) {
		t.Fatalf("expected ErrInvalidParent for missing parent, got %v", err)
	}
	_, err = s.Create(ctx, domain.NewComment{PostID: "P", AuthorID: "U1", Text: "x", ParentID: &other.ID})
	if !errors.Is(err, domain.ErrInvalidParent) {
		t.Fatalf("expected ErrInvalidParent for cross-post parent, got %v", err)
	}
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatal("invalid parent must also match ErrInvalidInput")
	}
}

func TestInMemoryCommentStore_ListByPostAndChildren(t *testing.T) {
	s := NewInMemoryCommentStore()
	ctx := context.Background()

	a, _ := s.Create(ctx, domain.NewComment{PostID: "P", AuthorID: "U1", Text: "A"})
	_, _ = s.Create(ctx, domain.NewComment{PostID: "P", AuthorID: "U2", Text: "B", ParentID: &a.ID})
	_, _ = s.Create(ctx, domain.NewComment{PostID: "P", AuthorID: "U3", Text: "C", ParentID: &a.ID})
	_, _ = s.Create(ctx, domain.NewComment{PostID: "Q", AuthorID: "U1", Text: "other post"})

	all, err := s.ListByPost(ctx, "P")
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 comments on P, got %d (%v)", len(all), err)
	}
	children, err := s.ListChildren(ctx, a.ID)
	if err != nil || len(children) != 2 {
		t.Fatalf("expected 2 children of A, got %d (%v)", len(children), err)
	}
	empty, _ := s.ListByPost(ctx, "none")
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", empty)
	}
}

func TestInMemoryCommentStore_SeqOrdersEqualTimestamps(t *testing.T) {
	s := NewInMemoryCommentStore()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	first, _ := s.Create(context.Background(), domain.NewComment{PostID: "P", AuthorID: "U1", Text: "1"})
	second, _ := s.Create(context.Background(), domain.NewComment{PostID: "P", AuthorID: "U1", Text: "2"})
	if !first.CreatedAt.Equal(second.CreatedAt) || second.Seq <= first.Seq {
		t.Fatalf("expected increasing seq on equal timestamps: %d then %d", first.Seq, second.Seq)
	}
}

func TestInMemoryCommentStore_DeleteCascade(t *testing.T) {
	s := NewInMemoryCommentStore()
	ctx := context.Background()

	a, _ := s.Create(ctx, domain.NewComment{PostID: "P", AuthorID: "U1", Text: "A"})
	b, _ := s.Create(ctx, domain.NewComment{PostID: "P", AuthorID: "U2", Text: "B", ParentID: &a.ID})
	keep, _ := s.Create(ctx, domain.NewComment{PostID: "P", AuthorID: "U2", Text: "keep"})

	var seen int
	ids, err := s.DeleteCascade(ctx, a.ID, func(target domain.Comment, post []domain.Comment) ([]string, error) {
		if target.ID != a.ID {
			t.Fatalf("plan got wrong target %s", target.ID)
		}
		seen = len(post)
		return []string{a.ID, b.ID}, nil
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if seen != 3 || len(ids) != 2 {
		t.Fatalf("expected plan to see 3 comments and delete 2, saw %d deleted %d", seen, len(ids))
	}
	if _, err := s.Get(ctx, b.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("expected reply removed")
	}
	if _, err := s.Get(ctx, keep.ID); err != nil {
		t.Fatal("unrelated comment must survive")
	}
}

func TestInMemoryCommentStore_DeleteCascadeAbortsOnPlanError(t *testing.T) {
	s := NewInMemoryCommentStore()
	ctx := context.Background()
	a, _ := s.Create(ctx, domain.NewComment{PostID: "P", AuthorID: "U1", Text: "A"})

	_, err := s.DeleteCascade(ctx, a.ID, func(domain.Comment, []domain.Comment) ([]string, error) {
		return nil, domain.ErrUnauthorized
	})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected plan error, got %v", err)
	}
	if _, err := s.Get(ctx, a.ID); err != nil {
		t.Fatal("nothing may be removed when the plan fails")
	}

	_, err = s.DeleteCascade(ctx, "missing", func(domain.Comment, []domain.Comment) ([]string, error) {
		t.Fatal("plan must not run for missing comment")
		return nil, nil
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTargets_TargetExists(t *testing.T) {
	ctx := context.Background()
	comments := NewInMemoryCommentStore()
	c, _ := comments.Create(ctx, domain.NewComment{PostID: "P", AuthorID: "U1", Text: "x"})
	targets := Targets{Posts: NewInMemoryPostDirectory(domain.Post{ID: "P"}), Comments: comments}

	cases := []struct {
		target domain.Target
		want   bool
	}{
		{domain.Target{Type: domain.TargetPost, ID: "P"}, true},
		{domain.Target{Type: domain.TargetPost, ID: "nope"}, false},
		{domain.Target{Type: domain.TargetComment, ID: c.ID}, true},
		{domain.Target{Type: domain.TargetComment, ID: "nope"}, false},
	}
	for _, tc := range cases {
		got, err := targets.TargetExists(ctx, tc.target)
		if err != nil || got != tc.want {
			t.Fatalf("%s: expected %v, got %v (%v)", tc.target, tc.want, got, err)
		}
	}
	if _, err := targets.TargetExists(ctx, domain.Target{Type: "user", ID: "x"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid target error, got %v", err)
	}
}
