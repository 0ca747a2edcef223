package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/forum-platform/services/engagement/internal/domain"
)

// PostgresVoteLedger keeps one votes row per (target, voter) and a
// vote_tallies row per target that is recomputed on every toggle.
type PostgresVoteLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresVoteLedger(pool *pgxpool.Pool) *PostgresVoteLedger {
	return &PostgresVoteLedger{pool: pool}
}

var targetTables = map[domain.TargetType]string{
	domain.TargetPost:    "posts",
	domain.TargetComment: "comments",
}

// Toggle serialises voters of one target on the tally row lock. The target
// row is share-locked so a concurrent delete cannot slip in underneath.
func (l *PostgresVoteLedger) Toggle(ctx context.Context, target domain.Target, voterID string, dir domain.Direction) (domain.Tally, error) {
	table, ok := targetTables[target.Type]
	if !ok {
		return domain.Tally{}, domain.ErrInvalidTarget
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return domain.Tally{}, domain.StorageError("votes.toggle", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var one int
	err = tx.QueryRow(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = $1 FOR SHARE`, table), target.ID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Tally{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Tally{}, domain.StorageError("votes.toggle", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO vote_tallies (target_type, target_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		target.Type, target.ID); err != nil {
		return domain.Tally{}, domain.StorageError("votes.toggle", err)
	}
	if _, err := tx.Exec(ctx,
		`SELECT 1 FROM vote_tallies WHERE target_type = $1 AND target_id = $2 FOR UPDATE`,
		target.Type, target.ID); err != nil {
		return domain.Tally{}, domain.StorageError("votes.toggle", err)
	}

	state := domain.StateNone
	var current string
	err = tx.QueryRow(ctx,
		`SELECT direction FROM votes WHERE target_type = $1 AND target_id = $2 AND voter_id = $3`,
		target.Type, target.ID, voterID).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return domain.Tally{}, domain.StorageError("votes.toggle", err)
	default:
		state = domain.VoteState(current)
	}

	next := state.Toggle(dir)
	switch {
	case next == domain.StateNone:
		_, err = tx.Exec(ctx,
			`DELETE FROM votes WHERE target_type = $1 AND target_id = $2 AND voter_id = $3`,
			target.Type, target.ID, voterID)
	case state == domain.StateNone:
		_, err = tx.Exec(ctx,
			`INSERT INTO votes (target_type, target_id, voter_id, direction) VALUES ($1, $2, $3, $4)`,
			target.Type, target.ID, voterID, next)
	default:
		_, err = tx.Exec(ctx,
			`UPDATE votes SET direction = $4, created_at = now()
			 WHERE target_type = $1 AND target_id = $2 AND voter_id = $3`,
			target.Type, target.ID, voterID, next)
	}
	if err != nil {
		return domain.Tally{}, domain.StorageError("votes.toggle", err)
	}

	const recount = `UPDATE vote_tallies t
	                 SET up_votes = c.up, down_votes = c.down, updated_at = now()
	                 FROM (SELECT COUNT(*) FILTER (WHERE direction = 'up')   AS up,
	                              COUNT(*) FILTER (WHERE direction = 'down') AS down
	                       FROM votes WHERE target_type = $1 AND target_id = $2) c
	                 WHERE t.target_type = $1 AND t.target_id = $2
	                 RETURNING t.up_votes, t.down_votes`
	var up, down int
	if err := tx.QueryRow(ctx, recount, target.Type, target.ID).Scan(&up, &down); err != nil {
		return domain.Tally{}, domain.StorageError("votes.toggle", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Tally{}, domain.StorageError("votes.toggle", err)
	}
	return domain.NewTally(up, down, next), nil
}

func (l *PostgresVoteLedger) Tallies(ctx context.Context, typ domain.TargetType, ids []string, viewerID string) (map[string]domain.Tally, error) {
	out := make(map[string]domain.Tally, len(ids))
	for _, id := range ids {
		out[id] = domain.NewTally(0, 0, domain.StateNone)
	}
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := l.pool.Query(ctx,
		`SELECT target_id, up_votes, down_votes FROM vote_tallies
		 WHERE target_type = $1 AND target_id = ANY($2)`, typ, ids)
	if err != nil {
		return nil, domain.StorageError("votes.tallies", err)
	}
	for rows.Next() {
		var id string
		var up, down int
		if err := rows.Scan(&id, &up, &down); err != nil {
			rows.Close()
			return nil, domain.StorageError("votes.tallies", err)
		}
		out[id] = domain.NewTally(up, down, domain.StateNone)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("votes.tallies", err)
	}

	if viewerID == "" {
		return out, nil
	}
	rows, err = l.pool.Query(ctx,
		`SELECT target_id, direction FROM votes
		 WHERE target_type = $1 AND target_id = ANY($2) AND voter_id = $3`, typ, ids, viewerID)
	if err != nil {
		return nil, domain.StorageError("votes.tallies", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, direction string
		if err := rows.Scan(&id, &direction); err != nil {
			return nil, domain.StorageError("votes.tallies", err)
		}
		t := out[id]
		t.UserState = domain.VoteState(direction)
		out[id] = t
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("votes.tallies", err)
	}
	return out, nil
}

func (l *PostgresVoteLedger) Forget(ctx context.Context, typ domain.TargetType, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM votes WHERE target_type = $1 AND target_id = ANY($2)`, typ, ids); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM vote_tallies WHERE target_type = $1 AND target_id = ANY($2)`, typ, ids)
		return err
	})
	if err != nil {
		return domain.StorageError("votes.forget", err)
	}
	return nil
}
