// Package thread turns a post's flat comment list into reply trees.
//
// Comments are indexed by id and grouped by parent id; children are found
// by lookup, never by pointers stored on the comment. A comment whose parent
// is missing from the list is treated as a root, so partially deleted or
// inconsistent data never breaks reconstruction.
package thread

import (
	"sort"

	"github.com/example/forum-platform/services/engagement/internal/domain"
)

const rootKey = ""

// index is a read-only view of one post's comments keyed for traversal.
type index struct {
	byID     map[string]domain.Comment
	children map[string][]domain.Comment
}

// newIndex groups comments by effective parent and orders every sibling list.
func newIndex(comments []domain.Comment) *index {
	ix := &index{
		byID:     make(map[string]domain.Comment, len(comments)),
		children: make(map[string][]domain.Comment),
	}
	for _, c := range comments {
		ix.byID[c.ID] = c
	}
	for _, c := range ix.byID {
		key := ix.parentKey(c)
		ix.children[key] = append(ix.children[key], c)
	}
	for _, siblings := range ix.children {
		Sort(siblings)
	}
	return ix
}

func (ix *index) parentKey(c domain.Comment) string {
	if c.IsRoot() || *c.ParentID == c.ID {
		return rootKey
	}
	if _, ok := ix.byID[*c.ParentID]; !ok {
		return rootKey
	}
	return *c.ParentID
}

// Build returns the forest of the post: roots newest first, each with its
// replies resolved recursively. Every comment appears exactly once; members
// of a parent cycle, unreachable from any root, are promoted to roots.
func Build(comments []domain.Comment) []domain.Node {
	ix := newIndex(comments)
	visited := make(map[string]bool, len(ix.byID))

	forest := make([]domain.Node, 0, len(ix.children[rootKey]))
	for _, root := range ix.children[rootKey] {
		forest = append(forest, ix.node(root, visited))
	}

	if len(visited) < len(ix.byID) {
		var stranded []domain.Comment
		for id, c := range ix.byID {
			if !visited[id] {
				stranded = append(stranded, c)
			}
		}
		Sort(stranded)
		for _, c := range stranded {
			if !visited[c.ID] {
				forest = append(forest, ix.node(c, visited))
			}
		}
		sort.SliceStable(forest, func(i, j int) bool { return less(forest[i].Comment, forest[j].Comment) })
	}
	return forest
}

func (ix *index) node(c domain.Comment, visited map[string]bool) domain.Node {
	visited[c.ID] = true
	n := domain.Node{Comment: c, Replies: []domain.Node{}}
	for _, child := range ix.children[c.ID] {
		if visited[child.ID] {
			continue
		}
		n.Replies = append(n.Replies, ix.node(child, visited))
	}
	return n
}

// Children returns the direct replies of parentID in sibling order.
// It is the lazy counterpart of Build and never descends further.
func Children(comments []domain.Comment, parentID string) []domain.Comment {
	out := make([]domain.Comment, 0)
	for _, c := range comments {
		if c.ParentID != nil && *c.ParentID == parentID && c.ID != parentID {
			out = append(out, c)
		}
	}
	Sort(out)
	return out
}

// Subtree returns rootID followed by every transitive reply, breadth first.
// It returns nil when rootID is not among comments.
func Subtree(comments []domain.Comment, rootID string) []string {
	ix := newIndex(comments)
	if _, ok := ix.byID[rootID]; !ok {
		return nil
	}
	seen := map[string]bool{rootID: true}
	ids := []string{rootID}
	for i := 0; i < len(ids); i++ {
		for _, child := range ix.children[ids[i]] {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			ids = append(ids, child.ID)
		}
	}
	return ids
}

// Sort orders siblings newest first. Equal timestamps fall back to the
// later insertion, then to the larger id.
func Sort(cs []domain.Comment) {
	sort.SliceStable(cs, func(i, j int) bool { return less(cs[i], cs[j]) })
}

func less(a, b domain.Comment) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if a.Seq != b.Seq {
		return a.Seq > b.Seq
	}
	return a.ID > b.ID
}
