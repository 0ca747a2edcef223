// Package users resolves display names for comment authors.
//
// Names decorate responses only; they are never used for authorization.
// Lookups go to the users service over HTTP (or its table when the database
// is shared) behind a cache.
package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownUser is returned when the directory has no such user.
var ErrUnknownUser = errors.New("users: unknown user")

// Directory maps user ids to display names.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// StaticDirectory serves names from a fixed map. Development only.
type StaticDirectory map[string]string

func (d StaticDirectory) DisplayName(_ context.Context, userID string) (string, error) {
	name, ok := d[userID]
	if !ok {
		return "", ErrUnknownUser
	}
	return name, nil
}

// PostgresDirectory reads the identity service's users table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := d.pool.QueryRow(ctx, `SELECT display_name FROM users WHERE id = $1`, userID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUnknownUser
	}
	return name, err
}
