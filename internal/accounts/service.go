// Package accounts registers users and logs them in, handing out the
// session tokens the chat handshake accepts.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Tyrowin/convohub/internal/common"
	"github.com/Tyrowin/convohub/internal/logging"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost matches the cost existing account rows were hashed with.
const DefaultBcryptCost = 10

var (
	ErrMissingCredentials = errors.New("username and password required")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrPasswordTooLong is returned for passwords over bcrypt's 72-byte limit.
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
)

// Store persists accounts.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) error
	PasswordHash(ctx context.Context, username string) (string, error)
}

// TokenIssuer mints a session token for an authenticated user.
type TokenIssuer interface {
	IssueToken(ctx context.Context, username string) (string, error)
}

// Invalidator is notified after a registration so cached user lists can be
// dropped.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

type Service struct {
	store       Store
	issuer      TokenIssuer
	invalidator Invalidator
	cost        int
	logger      logging.Logger
}

type Option func(*Service)

// WithBcryptCost overrides DefaultBcryptCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

func NewService(store Store, issuer TokenIssuer, logger logging.Logger, opts ...Option) *Service {
	s := &Service{store: store, issuer: issuer, cost: DefaultBcryptCost, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrMissingCredentials
	}
	if len(password) > 72 {
		return ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.CreateUser(ctx, username, string(hash)); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("create user: %w", err)
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	s.logger.Info(ctx, "user registered", "username", username)
	return nil
}

// Login checks the password and returns a fresh session token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", ErrMissingCredentials
	}

	hash, err := s.store.PasswordHash(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := s.issuer.IssueToken(ctx, username)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info(ctx, "user logged in", "username", username)
	return token, nil
}
