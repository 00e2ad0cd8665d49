package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

// SQLDirectory reads the identity provider's users table.
type SQLDirectory struct {
	db *sql.DB
}

func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

func (r *SQLDirectory) Get(ctx context.Context, id string) (User, error) {
	var u User
	query := "SELECT id, name, email, image FROM users WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email, &u.Image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *SQLDirectory) LookupEmail(ctx context.Context, email string) (string, error) {
	var id string
	query := "SELECT id FROM users WHERE lower(email) = lower($1)"

	err := r.db.QueryRowContext(ctx, query, email).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return id, nil
}

func (r *SQLDirectory) Save(ctx context.Context, u User) error {
	query := `
		INSERT INTO users (id, name, email, image) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, image = EXCLUDED.image
	`
	_, err := r.db.ExecContext(ctx, query, u.ID, u.Name, u.Email, u.Image)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrEmailTaken, u.Email)
	}
	return err
}
