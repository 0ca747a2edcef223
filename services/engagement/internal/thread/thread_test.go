package thread

import (
	"sort"
	"testing"
	"time"

	"github.com/example/forum-platform/services/engagement/internal/domain"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr(s string) *string { return &s }

func comment(id string, parent *string, minute int, seq int64) domain.Comment {
	return domain.Comment{
		ID:        id,
		PostID:    "P",
		ParentID:  parent,
		AuthorID:  "U1",
		Text:      "text " + id,
		CreatedAt: base.Add(time.Duration(minute) * time.Minute),
		Seq:       seq,
	}
}

// abcd is the canonical fixture: A root; B and C reply to A; D replies to B.
func abcd() []domain.Comment {
	return []domain.Comment{
		comment("A", nil, 1, 1),
		comment("B", ptr("A"), 2, 2),
		comment("C", ptr("A"), 3, 3),
		comment("D", ptr("B"), 4, 4),
	}
}

func ids(nodes []domain.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuild_NestedReplies(t *testing.T) {
	forest := Build(abcd())

	if got := ids(forest); !equal(got, []string{"A"}) {
		t.Fatalf("expected single root A, got %v", got)
	}
	a := forest[0]
	if got := ids(a.Replies); !equal(got, []string{"C", "B"}) {
		t.Fatalf("expected A replies [C B] newest first, got %v", got)
	}
	b := a.Replies[1]
	if got := ids(b.Replies); !equal(got, []string{"D"}) {
		t.Fatalf("expected B replies [D], got %v", got)
	}
	if len(a.Replies[0].Replies) != 0 || a.Replies[0].Replies == nil {
		t.Fatal("leaf replies must be an empty, non-nil slice")
	}
}

func TestBuild_DanglingParentBecomesRoot(t *testing.T) {
	cs := append(abcd(), comment("E", ptr("X"), 5, 5))
	forest := Build(cs)

	if got := ids(forest); !equal(got, []string{"E", "A"}) {
		t.Fatalf("expected roots [E A], got %v", got)
	}
}

func TestBuild_DepthThreeChain(t *testing.T) {
	cs := []domain.Comment{
		comment("r", nil, 1, 1),
		comment("c1", ptr("r"), 2, 2),
		comment("c2", ptr("c1"), 3, 3),
		comment("c3", ptr("c2"), 4, 4),
	}
	forest := Build(cs)
	if len(forest) != 1 {
		t.Fatalf("expected one root, got %d", len(forest))
	}
	n := forest[0]
	for _, want := range []string{"c1", "c2", "c3"} {
		if len(n.Replies) != 1 || n.Replies[0].ID != want {
			t.Fatalf("expected single reply %s under %s, got %v", want, n.ID, ids(n.Replies))
		}
		n = n.Replies[0]
	}
}

func TestBuild_TiesBrokenByInsertion(t *testing.T) {
	cs := []domain.Comment{
		comment("x", nil, 1, 10),
		comment("y", nil, 1, 11),
		comment("z", nil, 1, 9),
	}
	if got := ids(Build(cs)); !equal(got, []string{"y", "x", "z"}) {
		t.Fatalf("expected later insertion first on equal timestamps, got %v", got)
	}
}

func TestBuild_CycleMembersPromoted(t *testing.T) {
	cs := []domain.Comment{
		comment("root", nil, 1, 1),
		comment("p", ptr("q"), 2, 2),
		comment("q", ptr("p"), 3, 3),
	}
	forest := Build(cs)

	count := 0
	var walk func(ns []domain.Node)
	walk = func(ns []domain.Node) {
		for _, n := range ns {
			count++
			walk(n.Replies)
		}
	}
	walk(forest)
	if count != 3 {
		t.Fatalf("expected every comment exactly once, counted %d", count)
	}
	if got := ids(forest); !equal(got, []string{"q", "root"}) {
		t.Fatalf("expected newest cycle member promoted, got %v", got)
	}
}

func TestBuild_SelfParentIsRoot(t *testing.T) {
	forest := Build([]domain.Comment{comment("s", ptr("s"), 1, 1)})
	if got := ids(forest); !equal(got, []string{"s"}) {
		t.Fatalf("expected self-parented comment as root, got %v", got)
	}
}

func TestBuild_Empty(t *testing.T) {
	forest := Build(nil)
	if forest == nil || len(forest) != 0 {
		t.Fatalf("expected empty non-nil forest, got %#v", forest)
	}
}

func TestChildren_OneLevelOnly(t *testing.T) {
	cs := abcd()
	got := Children(cs, "A")
	names := make([]string, len(got))
	for i, c := range got {
		names[i] = c.ID
	}
	if !equal(names, []string{"C", "B"}) {
		t.Fatalf("expected [C B], got %v", names)
	}
	if len(Children(cs, "C")) != 0 {
		t.Fatal("leaf should have no children")
	}
}

func TestSubtree(t *testing.T) {
	cs := abcd()

	all := Subtree(cs, "A")
	sort.Strings(all)
	if !equal(all, []string{"A", "B", "C", "D"}) {
		t.Fatalf("expected whole tree, got %v", all)
	}

	if got := Subtree(cs, "B"); !equal(got, []string{"B", "D"}) {
		t.Fatalf("expected [B D], got %v", got)
	}
	if got := Subtree(cs, "missing"); got != nil {
		t.Fatalf("expected nil for unknown root, got %v", got)
	}
}

func TestIndex_GroupsByEffectiveParent(t *testing.T) {
	ix := newIndex(abcd())
	if _, ok := ix.byID["D"]; !ok {
		t.Fatal("expected D indexed")
	}
	if len(ix.children["B"]) != 1 {
		t.Fatal("expected one child under B")
	}
	if len(ix.children[rootKey]) != 1 {
		t.Fatal("expected A as the only root")
	}
}
