// Package logging defines the structured, context-aware logger used by every
// ConvoHub component, plus a log/slog backed implementation.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// Variadic args are key-value pairs:
//
//	log.Info(ctx, "client registered", "conn_id", id, "username", name)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given pairs.
	With(args ...any) Logger
}
