package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/example/forum-platform/services/engagement/internal/domain"
	"github.com/example/forum-platform/services/engagement/internal/store"
	"github.com/example/forum-platform/services/engagement/internal/users"
)

type fixture struct {
	svc      *Service
	posts    *store.InMemoryPostDirectory
	comments *store.InMemoryCommentStore
	ledger   *store.InMemoryVoteLedger
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	posts := store.NewInMemoryPostDirectory(
		domain.Post{ID: "P", AuthorID: "U0"},
		domain.Post{ID: "Q", AuthorID: "U0"},
		domain.Post{ID: "draft", AuthorID: "U0", IsDraft: true},
		domain.Post{ID: "locked", AuthorID: "U0", CommentsLocked: true},
	)
	comments := store.NewInMemoryCommentStore()
	ledger := store.NewInMemoryVoteLedger(store.Targets{Posts: posts, Comments: comments})
	svc := New(Deps{
		Ledger:   ledger,
		Comments: comments,
		Posts:    posts,
		Users:    users.StaticDirectory{"U1": "Ada", "U2": "Grace"},
	}, opts...)
	return fixture{svc: svc, posts: posts, comments: comments, ledger: ledger}
}

func (f fixture) add(t *testing.T, author, post, text string, parent *string) domain.Comment {
	t.Helper()
	c, err := f.svc.AddComment(context.Background(), author, post, text, parent)
	if err != nil {
		t.Fatalf("add comment %q: %v", text, err)
	}
	return c
}

func TestVote_PostScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := domain.Target{Type: domain.TargetPost, ID: "P"}

	steps := []struct {
		dir       domain.Direction
		up, down  int
		wantState domain.VoteState
	}{
		{domain.Up, 1, 0, domain.StateUp},
		{domain.Up, 0, 0, domain.StateNone},
		{domain.Down, 0, 1, domain.StateDown},
		{domain.Up, 1, 0, domain.StateUp},
	}
	for i, st := range steps {
		got, err := f.svc.Vote(ctx, "U1", p, st.dir)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got.UpVotes != st.up || got.DownVotes != st.down || got.UserState != st.wantState {
			t.Fatalf("step %d (%s): expected (%d,%d,%s), got %+v", i, st.dir, st.up, st.down, st.wantState, got)
		}
	}
}

func TestVote_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Vote(ctx, "", domain.Target{Type: domain.TargetPost, ID: "P"}, domain.Up)
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	_, err = f.svc.Vote(ctx, "U1", domain.Target{Type: domain.TargetPost, ID: "missing"}, domain.Up)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err = f.svc.Vote(ctx, "U1", domain.Target{Type: domain.TargetPost, ID: "P"}, "sideways")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	_, err = f.svc.Vote(ctx, "U1", domain.Target{Type: "user", ID: "P"}, domain.Up)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad target, got %v", err)
	}
}

func TestVote_OnComment(t *testing.T) {
	f := newFixture(t)
	c := f.add(t, "U1", "P", "hello", nil)

	got, err := f.svc.Vote(context.Background(), "U2", domain.Target{Type: domain.TargetComment, ID: c.ID}, domain.Down)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if got.DownVotes != 1 || got.Score != -1 || got.UserState != domain.StateDown {
		t.Fatalf("unexpected tally %+v", got)
	}
}

func TestTally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := domain.Target{Type: domain.TargetPost, ID: "P"}
	_, _ = f.svc.Vote(ctx, "U1", p, domain.Up)
	_, _ = f.svc.Vote(ctx, "U2", p, domain.Up)

	got, err := f.svc.Tally(ctx, "U1", p)
	if err != nil || got.UpVotes != 2 || got.UserState != domain.StateUp {
		t.Fatalf("unexpected tally %+v (%v)", got, err)
	}
	anon, _ := f.svc.Tally(ctx, "", p)
	if anon.UserState != domain.StateNone {
		t.Fatalf("anonymous viewer should see none, got %s", anon.UserState)
	}
	if _, err := f.svc.Tally(ctx, "", domain.Target{Type: domain.TargetComment, ID: "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddComment_EnrichesAuthorName(t *testing.T) {
	f := newFixture(t)
	c := f.add(t, "U1", "P", "  first!  ", nil)

	if c.AuthorName != "Ada" {
		t.Fatalf("expected author name Ada, got %q", c.AuthorName)
	}
	if c.Text != "first!" {
		t.Fatalf("expected trimmed text, got %q", c.Text)
	}
	if c.UserState != domain.StateNone {
		t.Fatalf("new comment should have user state none, got %q", c.UserState)
	}

	anon := f.add(t, "U404", "P", "who am I", nil)
	if anon.AuthorName != "" {
		t.Fatalf("unknown author should have empty name, got %q", anon.AuthorName)
	}
}

func TestAddComment_Errors(t *testing.T) {
	f := newFixture(t, WithMaxCommentLength(10))
	ctx := context.Background()
	onQ := f.add(t, "U1", "Q", "on Q", nil)
	empty := ""

	cases := []struct {
		name   string
		author string
		post   string
		text   string
		parent *string
		want   error
	}{
		{"unauthenticated", "", "P", "hi", nil, domain.ErrUnauthenticated},
		{"unknown post", "U1", "nope", "hi", nil, domain.ErrNotFound},
		{"draft", "U1", "draft", "hi", nil, domain.ErrCommentingDisabled},
		{"locked", "U1", "locked", "hi", nil, domain.ErrCommentingDisabled},
		{"missing parent", "U1", "P", "hi", strPtr("ghost"), domain.ErrInvalidParent},
		{"cross-post parent", "U1", "P", "hi", &onQ.ID, domain.ErrInvalidParent},
		{"blank text", "U1", "P", "   ", nil, domain.ErrInvalidInput},
		{"too long", "U1", "P", strings.Repeat("é", 11), nil, domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AddComment(ctx, tc.author, tc.post, tc.text, tc.parent)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := f.svc.AddComment(ctx, "U1", "P", strings.Repeat("é", 10), &empty); err != nil {
		t.Fatalf("text at the limit with empty parent should pass: %v", err)
	}
}

func strPtr(s string) *string { return &s }

// seedABCD builds A (root), B and C replying to A, D replying to B.
func seedABCD(t *testing.T, f fixture) (a, b, c, d domain.Comment) {
	t.Helper()
	a = f.add(t, "U1", "P", "A", nil)
	b = f.add(t, "U2", "P", "B", &a.ID)
	c = f.add(t, "U2", "P", "C", &a.ID)
	d = f.add(t, "U1", "P", "D", &b.ID)
	return
}

func TestThread_BuildsForestWithTallies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c, d := seedABCD(t, f)
	e := f.add(t, "U2", "P", "E", nil)

	if _, err := f.svc.Vote(ctx, "U2", domain.Target{Type: domain.TargetComment, ID: d.ID}, domain.Up); err != nil {
		t.Fatalf("vote: %v", err)
	}

	forest, err := f.svc.Thread(ctx, "U2", "P")
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if len(forest) != 2 || forest[0].ID != e.ID || forest[1].ID != a.ID {
		t.Fatalf("expected roots [E A], got %d roots", len(forest))
	}
	root := forest[1]
	if len(root.Replies) != 2 || root.Replies[0].ID != c.ID || root.Replies[1].ID != b.ID {
		t.Fatal("expected A replies [C B]")
	}
	dNode := root.Replies[1].Replies[0]
	if dNode.ID != d.ID || dNode.UpVotes != 1 || dNode.UserState != domain.StateUp {
		t.Fatalf("expected D with one up vote by viewer, got %+v", dNode.Comment)
	}
	if root.AuthorName != "Ada" || root.Replies[0].AuthorName != "Grace" {
		t.Fatal("expected author names on thread nodes")
	}

	if _, err := f.svc.Thread(ctx, "", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	empty, err := f.svc.Thread(ctx, "", "Q")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty thread, got %d (%v)", len(empty), err)
	}
}

func TestReplies_OneLevel(t *testing.T) {
	f := newFixture(t)
	a, b, c, _ := seedABCD(t, f)

	replies, err := f.svc.Replies(context.Background(), "", a.ID)
	if err != nil {
		t.Fatalf("replies: %v", err)
	}
	if len(replies) != 2 || replies[0].ID != c.ID || replies[1].ID != b.ID {
		t.Fatalf("expected [C B], got %d replies", len(replies))
	}
	if replies[1].AuthorName != "Grace" {
		t.Fatalf("expected decorated replies, got %q", replies[1].AuthorName)
	}

	if _, err := f.svc.Replies(context.Background(), "", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteComment_CascadesSubtree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c, d := seedABCD(t, f)
	other := f.add(t, "U2", "P", "other root", nil)
	_, _ = f.svc.Vote(ctx, "U2", domain.Target{Type: domain.TargetComment, ID: d.ID}, domain.Up)

	res, err := f.svc.DeleteComment(ctx, "U1", a.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	got := append([]string(nil), res.DeletedIDs...)
	sort.Strings(got)
	want := []string{a.ID, b.ID, c.ID, d.ID}
	sort.Strings(want)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected deleted %v, got %v", want, got)
	}
	if res.DeletedIDs[0] != a.ID {
		t.Fatalf("expected the requested comment first, got %v", res.DeletedIDs)
	}

	forest, _ := f.svc.Thread(ctx, "", "P")
	if len(forest) != 1 || forest[0].ID != other.ID {
		t.Fatal("only the unrelated root should remain")
	}
	tallies, _ := f.ledger.Tallies(ctx, domain.TargetComment, []string{d.ID}, "U2")
	if tallies[d.ID].UpVotes != 0 {
		t.Fatal("votes of deleted comments must be forgotten")
	}
}

func TestDeleteComment_Subtree(t *testing.T) {
	f := newFixture(t)
	a, b, c, d := seedABCD(t, f)

	res, err := f.svc.DeleteComment(context.Background(), "U2", b.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(res.DeletedIDs) != 2 || res.DeletedIDs[0] != b.ID || res.DeletedIDs[1] != d.ID {
		t.Fatalf("expected [B D], got %v", res.DeletedIDs)
	}
	replies, _ := f.svc.Replies(context.Background(), "", a.ID)
	if len(replies) != 1 || replies[0].ID != c.ID {
		t.Fatal("expected only C left under A")
	}
}

func TestDeleteComment_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _, _, _ := seedABCD(t, f)

	_, err := f.svc.DeleteComment(ctx, "U2", a.ID)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	forest, _ := f.svc.Thread(ctx, "", "P")
	if len(forest) != 1 || len(forest[0].Replies) != 2 {
		t.Fatal("nothing may be deleted by a non-author")
	}

	if _, err := f.svc.DeleteComment(ctx, "", a.ID); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := f.svc.DeleteComment(ctx, "U1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteComment_RacingRepliesLeaveNoOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.add(t, "U1", "P", "root", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AddComment(ctx, "U2", "P", "reply", &root.ID)
			if err != nil && !errors.Is(err, domain.ErrInvalidParent) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := f.svc.DeleteComment(ctx, "U1", root.ID); err != nil {
			t.Errorf("delete: %v", err)
		}
	}()
	wg.Wait()

	left, _ := f.comments.ListByPost(ctx, "P")
	if len(left) != 0 {
		t.Fatalf("expected no surviving replies of a deleted root, found %d", len(left))
	}
}
