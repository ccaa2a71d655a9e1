package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Tyrowin/convohub/internal/common"
	"github.com/Tyrowin/convohub/internal/dbx"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the SQLSTATE Postgres reports for duplicate keys.
const uniqueViolation = "23505"

type UserRepository struct {
	db dbx.DBTX
}

func NewUserRepository(db dbx.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts an account. A taken username yields
// common.ErrAlreadyExists.
func (r *UserRepository) CreateUser(ctx context.Context, username, passwordHash string) error {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
	`
	if _, err := r.db.ExecContext(ctx, query, username, passwordHash); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *UserRepository) PasswordHash(ctx context.Context, username string) (string, error) {
	query := `SELECT password_hash FROM users WHERE username = $1`

	var hash string
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return hash, nil
}

// AllUsernames lists every account in registration order.
func (r *UserRepository) AllUsernames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT username FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return names, nil
}
