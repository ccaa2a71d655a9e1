package postgres

import (
	"context"
	"fmt"

	"github.com/Tyrowin/convohub/internal/chat"
	"github.com/Tyrowin/convohub/internal/dbx"
)

// MessageRepository is the append-only message log over dbx.DBTX.
type MessageRepository struct {
	db dbx.DBTX
}

func NewMessageRepository(db dbx.DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) AppendPublic(ctx context.Context, msg chat.PublicMessage) error {
	query := `
		INSERT INTO public_messages (room, username, message, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, msg.Room, msg.Username, msg.Text, msg.Time); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RecentPublic takes the newest limit rows of room and returns them oldest
// first.
func (r *MessageRepository) RecentPublic(ctx context.Context, room string, limit int) ([]chat.PublicMessage, error) {
	query := `
		SELECT username, message, created_at FROM (
			SELECT id, username, message, created_at FROM public_messages
			WHERE room = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	msgs := make([]chat.PublicMessage, 0)
	for rows.Next() {
		m := chat.PublicMessage{Room: room}
		if err := rows.Scan(&m.Username, &m.Text, &m.Time); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return msgs, nil
}

func (r *MessageRepository) AppendPrivate(ctx context.Context, msg chat.PrivateMessage) error {
	query := `
		INSERT INTO private_messages (from_username, to_username, message, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, msg.From, msg.To, msg.Text, msg.Time); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *MessageRepository) PrivateHistory(ctx context.Context, a, b string) ([]chat.PrivateMessage, error) {
	query := `
		SELECT from_username, to_username, message, created_at FROM private_messages
		WHERE (from_username = $1 AND to_username = $2)
		   OR (from_username = $2 AND to_username = $1)
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, a, b)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	msgs := make([]chat.PrivateMessage, 0)
	for rows.Next() {
		var m chat.PrivateMessage
		if err := rows.Scan(&m.From, &m.To, &m.Text, &m.Time); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return msgs, nil
}
