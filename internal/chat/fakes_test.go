package chat

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/Tyrowin/convohub/internal/common"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id       string
	username string

	mu     sync.Mutex
	frames []Envelope
	closed bool
}

func newConn(id, username string) *fakeConn {
	return &fakeConn{id: id, username: username}
}

func (c *fakeConn) ID() string       { return c.id }
func (c *fakeConn) Username() string { return c.username }

func (c *fakeConn) Deliver(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		panic(err)
	}
	c.frames = append(c.frames, env)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// events returns the payloads of every received frame named event.
func (c *fakeConn) events(event string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []json.RawMessage
	for _, f := range c.frames {
		if f.Event == event {
			out = append(out, f.Data)
		}
	}
	return out
}

func decodeAll[T any](t *testing.T, raws []json.RawMessage) []T {
	t.Helper()
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		require.NoError(t, json.Unmarshal(raw, &v))
		out = append(out, v)
	}
	return out
}

var errStoreDown = errors.New("store down")

type fakeStore struct {
	mu       sync.Mutex
	public   []PublicMessage
	private  []PrivateMessage
	failRead bool
	failAdd  bool
}

func (s *fakeStore) AppendPublic(_ context.Context, msg PublicMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAdd {
		return errStoreDown
	}
	s.public = append(s.public, msg)
	return nil
}

func (s *fakeStore) RecentPublic(_ context.Context, room string, limit int) ([]PublicMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead {
		return nil, errStoreDown
	}
	var out []PublicMessage
	for _, m := range s.public {
		if m.Room == room {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) AppendPrivate(_ context.Context, msg PrivateMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAdd {
		return errStoreDown
	}
	s.private = append(s.private, msg)
	return nil
}

func (s *fakeStore) PrivateHistory(_ context.Context, a, b string) ([]PrivateMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead {
		return nil, errStoreDown
	}
	var out []PrivateMessage
	for _, m := range s.private {
		if (m.From == a && m.To == b) || (m.From == b && m.To == a) {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeCatalog struct {
	names []string
	err   error
}

func (f fakeCatalog) AllUsernames(context.Context) ([]string, error) {
	return slices.Clone(f.names), f.err
}

type fakeVerifier map[string]string

func (f fakeVerifier) VerifySessionToken(_ context.Context, token string) (string, error) {
	if token == "broken" {
		return "", errStoreDown
	}
	name, ok := f[token]
	if !ok {
		return "", common.ErrNotFound
	}
	return name, nil
}
