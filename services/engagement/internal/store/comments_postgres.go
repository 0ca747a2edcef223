package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/forum-platform/services/engagement/internal/domain"
)

const (
	pgForeignKeyViolation = "23503"

	commentColumns = `id, post_id, parent_id, author_id, body, created_at, seq`
)

// PostgresCommentStore persists comments in Postgres.
type PostgresCommentStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCommentStore creates a store backed by Postgres.
func NewPostgresCommentStore(pool *pgxpool.Pool) *PostgresCommentStore {
	return &PostgresCommentStore{pool: pool}
}

// Create inserts only when the parent, if any, belongs to the same post.
// A parent removed concurrently surfaces as a foreign key violation.
func (s *PostgresCommentStore) Create(ctx context.Context, in domain.NewComment) (domain.Comment, error) {
	const q = `INSERT INTO comments (id, post_id, parent_id, author_id, body)
	           SELECT $1, $2, $3, $4, $5
	           WHERE $3::text IS NULL
	              OR EXISTS (SELECT 1 FROM comments p WHERE p.id = $3 AND p.post_id = $2)
	           RETURNING ` + commentColumns

	row := s.pool.QueryRow(ctx, q, uuid.NewString(), in.PostID, in.ParentID, in.AuthorID, in.Text)
	c, err := scanComment(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.Comment{}, domain.ErrInvalidParent
	case err != nil:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			if pgErr.ConstraintName == "comments_post_id_fkey" {
				return domain.Comment{}, domain.ErrNotFound
			}
			return domain.Comment{}, domain.ErrInvalidParent
		}
		return domain.Comment{}, domain.StorageError("comments.create", err)
	}
	return c, nil
}

func (s *PostgresCommentStore) Get(ctx context.Context, id string) (domain.Comment, error) {
	q := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1`
	c, err := scanComment(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Comment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Comment{}, domain.StorageError("comments.get", err)
	}
	return c, nil
}

func (s *PostgresCommentStore) ListByPost(ctx context.Context, postID string) ([]domain.Comment, error) {
	q := `SELECT ` + commentColumns + ` FROM comments WHERE post_id = $1`
	out, err := s.scanComments(ctx, s.pool, q, postID)
	if err != nil {
		return nil, domain.StorageError("comments.list_by_post", err)
	}
	return out, nil
}

func (s *PostgresCommentStore) ListChildren(ctx context.Context, parentID string) ([]domain.Comment, error) {
	q := `SELECT ` + commentColumns + ` FROM comments WHERE parent_id = $1`
	out, err := s.scanComments(ctx, s.pool, q, parentID)
	if err != nil {
		return nil, domain.StorageError("comments.list_children", err)
	}
	return out, nil
}

// DeleteCascade locks every comment of the target's post, lets plan choose
// the ids, and removes them together with their votes in one transaction.
// Concurrent replies to locked rows wait and then fail their parent check.
func (s *PostgresCommentStore) DeleteCascade(ctx context.Context, commentID string, plan CascadePlan) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.StorageError("comments.delete", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var postID string
	err = tx.QueryRow(ctx, `SELECT post_id FROM comments WHERE id = $1`, commentID).Scan(&postID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.StorageError("comments.delete", err)
	}

	q := `SELECT ` + commentColumns + ` FROM comments WHERE post_id = $1 ORDER BY seq FOR UPDATE`
	all, err := s.scanComments(ctx, tx, q, postID)
	if err != nil {
		return nil, domain.StorageError("comments.delete", err)
	}

	var target *domain.Comment
	for i := range all {
		if all[i].ID == commentID {
			target = &all[i]
			break
		}
	}
	if target == nil {
		// removed between the lookup and the lock
		return nil, domain.ErrNotFound
	}

	ids, err := plan(*target, all)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, tx.Commit(ctx)
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM comments WHERE id = ANY($1)`, ids)
	batch.Queue(`DELETE FROM votes WHERE target_type = 'comment' AND target_id = ANY($1)`, ids)
	batch.Queue(`DELETE FROM vote_tallies WHERE target_type = 'comment' AND target_id = ANY($1)`, ids)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, domain.StorageError("comments.delete", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, domain.StorageError("comments.delete", err)
	}
	return ids, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresCommentStore) scanComments(ctx context.Context, db querier, q string, args ...any) ([]domain.Comment, error) {
	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanComment(row pgx.Row) (domain.Comment, error) {
	var c domain.Comment
	if err := row.Scan(&c.ID, &c.PostID, &c.ParentID, &c.AuthorID, &c.Text, &c.CreatedAt, &c.Seq); err != nil {
		return domain.Comment{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.Tally = domain.NewTally(0, 0, domain.StateNone)
	return c, nil
}
