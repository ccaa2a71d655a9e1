package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Tyrowin/convohub/internal/common"
)

// Authenticator resolves the token presented at handshake to a username.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// TokenAuthenticator delegates token lookup to a SessionVerifier.
type TokenAuthenticator struct {
	verifier SessionVerifier
}

func NewTokenAuthenticator(v SessionVerifier) *TokenAuthenticator {
	return &TokenAuthenticator{verifier: v}
}

// Authenticate returns ErrMissingToken for a blank token and ErrInvalidToken
// when the verifier finds no active session or fails.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}

	username, err := a.verifier.VerifySessionToken(ctx, token)
	switch {
	case errors.Is(err, common.ErrNotFound):
		return "", ErrInvalidToken
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	case username == "":
		return "", ErrInvalidToken
	}
	return username, nil
}
