package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/forum-platform/services/engagement/internal/domain"
)

// PostgresPostDirectory reads the content service's posts table.
type PostgresPostDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresPostDirectory(pool *pgxpool.Pool) *PostgresPostDirectory {
	return &PostgresPostDirectory{pool: pool}
}

func (d *PostgresPostDirectory) Post(ctx context.Context, postID string) (domain.Post, error) {
	const q = `SELECT id, author_id, is_draft, comments_locked FROM posts WHERE id = $1`
	var p domain.Post
	err := d.pool.QueryRow(ctx, q, postID).Scan(&p.ID, &p.AuthorID, &p.IsDraft, &p.CommentsLocked)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Post{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Post{}, domain.StorageError("posts.get", err)
	}
	return p, nil
}
