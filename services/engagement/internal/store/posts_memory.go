package store

import (
	"context"
	"sync"

	"github.com/example/forum-platform/services/engagement/internal/domain"
)

// InMemoryPostDirectory mirrors the posts the content service would own.
// Used in development and tests; Put seeds it.
type InMemoryPostDirectory struct {
	mu    sync.RWMutex
	posts map[string]domain.Post
}

func NewInMemoryPostDirectory(posts ...domain.Post) *InMemoryPostDirectory {
	d := &InMemoryPostDirectory{posts: make(map[string]domain.Post, len(posts))}
	for _, p := range posts {
		d.posts[p.ID] = p
	}
	return d
}

func (d *InMemoryPostDirectory) Put(p domain.Post) {
	d.mu.Lock()
	d.posts[p.ID] = p
	d.mu.Unlock()
}

func (d *InMemoryPostDirectory) Post(_ context.Context, postID string) (domain.Post, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.posts[postID]
	if !ok {
		return domain.Post{}, domain.ErrNotFound
	}
	return p, nil
}
