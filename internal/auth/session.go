package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SessionStore persists opaque session tokens.
type SessionStore interface {
	CreateSession(ctx context.Context, token, username string) error
}

// SessionIssuer mints random UUID tokens and records them in a store.
type SessionIssuer struct {
	store SessionStore
}

func NewSessionIssuer(store SessionStore) *SessionIssuer {
	return &SessionIssuer{store: store}
}

func (s *SessionIssuer) IssueToken(ctx context.Context, username string) (string, error) {
	token := uuid.NewString()
	if err := s.store.CreateSession(ctx, token, username); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}
