// Package postgres implements the ConvoHub stores on PostgreSQL through the
// pgx database/sql driver. The schema is managed with embedded goose
// migrations.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Tyrowin/convohub/internal/chat"
	"github.com/Tyrowin/convohub/internal/dbx"
	"github.com/Tyrowin/convohub/internal/storage/postgres/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Store combines the repositories behind one *sql.DB.
type Store struct {
	*MessageRepository
	*UserRepository

	db         *sql.DB
	sessionTTL time.Duration
}

func New(db *sql.DB, sessionTTL time.Duration) *Store {
	return &Store{
		MessageRepository: NewMessageRepository(db),
		UserRepository:    NewUserRepository(db),
		db:                db,
		sessionTTL:        sessionTTL,
	}
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// CreateSession drops the user's expired sessions and stores the new token
// in one transaction.
func (s *Store) CreateSession(ctx context.Context, token, username string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := NewSessionRepository(tx, s.sessionTTL)
		if err := repo.PurgeExpired(ctx, username); err != nil {
			return err
		}
		return repo.Create(ctx, token, username)
	})
}

func (s *Store) VerifySessionToken(ctx context.Context, token string) (string, error) {
	return NewSessionRepository(s.db, s.sessionTTL).Verify(ctx, token)
}

func (s *Store) VerifySessionExpiry(ctx context.Context, token string) (string, time.Time, error) {
	return NewSessionRepository(s.db, s.sessionTTL).VerifyExpiry(ctx, token)
}

var (
	_ chat.MessageStore    = (*Store)(nil)
	_ chat.UserCatalog     = (*Store)(nil)
	_ chat.SessionVerifier = (*Store)(nil)
)
