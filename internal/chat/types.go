package chat

import (
	"context"
	"time"
)

// PublicMessage is a message posted to a room. Room is carried by the
// surrounding event on the wire, so it is not serialized here.
type PublicMessage struct {
	Room     string    `json:"-"`
	Username string    `json:"username"`
	Text     string    `json:"message"`
	Time     time.Time `json:"time"`
}

// PrivateMessage is a message between exactly two users.
type PrivateMessage struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	Text string    `json:"message"`
	Time time.Time `json:"time"`
}

// UserStatus is one roster entry of the presence list.
type UserStatus struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// Conn is a live, authenticated client connection as seen by the core.
type Conn interface {
	ID() string
	Username() string
	// Deliver queues payload for the client without blocking. It reports
	// false when the payload was dropped (closed or saturated connection).
	Deliver(payload []byte) bool
	// Close asks the transport to terminate the connection.
	Close()
}

// MessageStore is the durable, append-only message log. Reads return
// messages in insertion order.
type MessageStore interface {
	AppendPublic(ctx context.Context, msg PublicMessage) error
	// RecentPublic returns at most limit messages of room, oldest first,
	// ending with the most recently appended one.
	RecentPublic(ctx context.Context, room string, limit int) ([]PublicMessage, error)
	AppendPrivate(ctx context.Context, msg PrivateMessage) error
	// PrivateHistory returns every message exchanged between a and b in
	// either direction, oldest first.
	PrivateHistory(ctx context.Context, a, b string) ([]PrivateMessage, error)
}

// UserCatalog lists every known account.
type UserCatalog interface {
	AllUsernames(ctx context.Context) ([]string, error)
}

// SessionVerifier maps a session token to the owning username. It returns
// common.ErrNotFound when no active session matches.
type SessionVerifier interface {
	VerifySessionToken(ctx context.Context, token string) (string, error)
}
