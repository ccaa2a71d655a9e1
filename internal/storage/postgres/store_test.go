package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Tyrowin/convohub/internal/common"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepository(db, time.Hour)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+sessions\s*\(token,\s*user_id,\s*expires_at\)\s*SELECT\s+\$1,\s*id,\s*\$3\s+FROM\s+users\s+WHERE\s+username\s*=\s*\$2`).
		WithArgs("tok", "alice", now.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT\s+INTO\s+sessions`).
		WithArgs("tok2", "ghost", now.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, "tok", "alice"))
	assert.ErrorIs(t, repo.Create(ctx, "tok2", "ghost"), common.ErrNotFound)
}

func TestSessionRepository_Verify(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepository(db, time.Hour)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	q := `(?s)SELECT\s+u\.username,\s*s\.expires_at\s+FROM\s+sessions\s+s\s+JOIN\s+users\s+u\s+ON\s+u\.id\s*=\s*s\.user_id\s+WHERE\s+s\.token\s*=\s*\$1\s+AND\s+s\.expires_at\s*>\s*\$2`
	mock.ExpectQuery(q).
		WithArgs("tok", now).
		WillReturnRows(sqlmock.NewRows([]string{"username", "expires_at"}).AddRow("alice", now.Add(time.Hour)))
	mock.ExpectQuery(q).
		WithArgs("tok", now).
		WillReturnRows(sqlmock.NewRows([]string{"username", "expires_at"}).AddRow("alice", now.Add(30*time.Minute)))
	mock.ExpectQuery(q).
		WithArgs("expired", now).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).
		WithArgs("any", now).
		WillReturnError(errors.New("conn reset"))

	ctx := context.Background()
	name, err := repo.Verify(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	name, expires, err := repo.VerifyExpiry(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
	assert.Equal(t, now.Add(30*time.Minute), expires)

	_, err = repo.Verify(ctx, "expired")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = repo.Verify(ctx, "any")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrNotFound)
}

func TestStore_CreateSessionRunsInTransaction(t *testing.T) {
	db, mock := newMock(t)
	store := New(db, time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)DELETE\s+FROM\s+sessions\s+WHERE\s+expires_at\s*<=\s*\$2`).
		WithArgs("alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT\s+INTO\s+sessions`).
		WithArgs("tok", "alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.CreateSession(context.Background(), "tok", "alice"))
}

func TestStore_CreateSessionRollsBack(t *testing.T) {
	db, mock := newMock(t)
	store := New(db, time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE\s+FROM\s+sessions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT\s+INTO\s+sessions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.CreateSession(context.Background(), "tok", "ghost")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRunMigrations(t *testing.T) {
	db, _ := newMock(t)

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, RunMigrations(context.Background(), db))
	assert.Equal(t, ".", gotDir)

	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("bad migration")
	}
	assert.ErrorContains(t, RunMigrations(context.Background(), db), "migrate: bad migration")
}

func TestMigrationsAreEmbedded(t *testing.T) {
	db, _ := newMock(t)

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		migs, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
		if err != nil {
			return err
		}
		if len(migs) != 2 {
			return errors.New("expected two migrations")
		}
		return nil
	}
	require.NoError(t, RunMigrations(context.Background(), db))
}
