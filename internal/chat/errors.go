package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingToken means the handshake carried no session token.
	ErrMissingToken = errors.New("missing session token")
	// ErrInvalidToken means no active session matches the token.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrValidation marks a request with an empty required field. Handlers
	// drop such requests silently.
	ErrValidation = errors.New("validation error")
	// ErrUnknownRoom marks a room name outside the configured catalog.
	ErrUnknownRoom = errors.New("unknown room")
	// ErrNotConnected is returned when the connection is no longer registered.
	ErrNotConnected = errors.New("connection not registered")
	// ErrUnknownEvent is returned for frames naming an unsupported event.
	ErrUnknownEvent = errors.New("unknown event")
)

// PersistenceError wraps a failure of the message store. Sends that hit it
// still fan out; reads that hit it return an empty result.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
