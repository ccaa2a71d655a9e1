package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Tyrowin/convohub/internal/common"
	"github.com/Tyrowin/convohub/internal/dbx"
)

// SessionRepository stores opaque session tokens issued at login.
type SessionRepository struct {
	db  dbx.DBTX
	ttl time.Duration
	now func() time.Time
}

func NewSessionRepository(db dbx.DBTX, ttl time.Duration) *SessionRepository {
	return &SessionRepository{db: db, ttl: ttl, now: time.Now}
}

// Create binds token to username until now+ttl. An unknown username yields
// common.ErrNotFound.
func (r *SessionRepository) Create(ctx context.Context, token, username string) error {
	query := `
		INSERT INTO sessions (token, user_id, expires_at)
		SELECT $1, id, $3 FROM users WHERE username = $2
	`
	res, err := r.db.ExecContext(ctx, query, token, username, r.now().Add(r.ttl))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// PurgeExpired drops the expired sessions of username.
func (r *SessionRepository) PurgeExpired(ctx context.Context, username string) error {
	query := `
		DELETE FROM sessions
		WHERE expires_at <= $2
		  AND user_id = (SELECT id FROM users WHERE username = $1)
	`
	if _, err := r.db.ExecContext(ctx, query, username, r.now()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Verify returns the owner of an unexpired session token.
func (r *SessionRepository) Verify(ctx context.Context, token string) (string, error) {
	username, _, err := r.VerifyExpiry(ctx, token)
	return username, err
}

// VerifyExpiry is Verify plus the session's expiry time.
func (r *SessionRepository) VerifyExpiry(ctx context.Context, token string) (string, time.Time, error) {
	query := `
		SELECT u.username, s.expires_at FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = $1 AND s.expires_at > $2
	`
	var (
		username  string
		expiresAt time.Time
	)
	if err := r.db.QueryRowContext(ctx, query, token, r.now()).Scan(&username, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, common.ErrNotFound
		}
		return "", time.Time{}, fmt.Errorf("db error: %w", err)
	}
	return username, expiresAt, nil
}
