// Package memory is a process-local implementation of every ConvoHub store.
// It backs DATABASE_DSN=memory and the integration tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Tyrowin/convohub/internal/chat"
	"github.com/Tyrowin/convohub/internal/common"
)

type session struct {
	username  string
	expiresAt time.Time
}

type Store struct {
	mu sync.RWMutex

	users    map[string]string  // username -> password hash
	order    []string           // usernames in registration order
	sessions map[string]session // token -> session
	public   []chat.PublicMessage
	private  []chat.PrivateMessage

	sessionTTL time.Duration
	now        func() time.Time
}

// New returns an empty store whose sessions expire sessionTTL after login.
func New(sessionTTL time.Duration) *Store {
	return &Store{
		users:      make(map[string]string),
		sessions:   make(map[string]session),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// CreateUser stores a new account. It returns common.ErrAlreadyExists when
// the username is taken.
func (s *Store) CreateUser(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return common.ErrAlreadyExists
	}
	s.users[username] = passwordHash
	s.order = append(s.order, username)
	return nil
}

func (s *Store) PasswordHash(_ context.Context, username string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, ok := s.users[username]
	if !ok {
		return "", common.ErrNotFound
	}
	return hash, nil
}

func (s *Store) AllUsernames(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order), nil
}

// CreateSession binds token to an existing user until now+sessionTTL. The
// user's expired sessions are dropped on the way.
func (s *Store) CreateSession(_ context.Context, token, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; !ok {
		return common.ErrNotFound
	}
	if _, ok := s.sessions[token]; ok {
		return common.ErrAlreadyExists
	}

	now := s.now()
	for tok, sess := range s.sessions {
		if sess.username == username && !sess.expiresAt.After(now) {
			delete(s.sessions, tok)
		}
	}
	s.sessions[token] = session{username: username, expiresAt: now.Add(s.sessionTTL)}
	return nil
}

func (s *Store) VerifySessionToken(ctx context.Context, token string) (string, error) {
	username, _, err := s.VerifySessionExpiry(ctx, token)
	return username, err
}

// VerifySessionExpiry returns the owner of an unexpired session and when it
// expires.
func (s *Store) VerifySessionExpiry(_ context.Context, token string) (string, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok || !sess.expiresAt.After(s.now()) {
		return "", time.Time{}, common.ErrNotFound
	}
	return sess.username, sess.expiresAt, nil
}

func (s *Store) AppendPublic(_ context.Context, msg chat.PublicMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.public = append(s.public, msg)
	return nil
}

func (s *Store) RecentPublic(_ context.Context, room string, limit int) ([]chat.PublicMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.PublicMessage, 0)
	for i := len(s.public) - 1; i >= 0 && len(out) < limit; i-- {
		if s.public[i].Room == room {
			out = append(out, s.public[i])
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (s *Store) AppendPrivate(_ context.Context, msg chat.PrivateMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.private = append(s.private, msg)
	return nil
}

func (s *Store) PrivateHistory(_ context.Context, a, b string) ([]chat.PrivateMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.PrivateMessage, 0)
	for _, m := range s.private {
		if (m.From == a && m.To == b) || (m.From == b && m.To == a) {
			out = append(out, m)
		}
	}
	return out, nil
}

var (
	_ chat.MessageStore    = (*Store)(nil)
	_ chat.UserCatalog     = (*Store)(nil)
	_ chat.SessionVerifier = (*Store)(nil)
)
