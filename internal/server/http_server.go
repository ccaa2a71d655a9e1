// Package server constructs and starts the ConvoHub HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Tyrowin/convohub/internal/logging"
)

var (
	loggerMu  sync.RWMutex
	pkgLogger logging.Logger = logging.Nop()
)

// SetLogger sets the logger used by package-level helpers such as the
// origin checks.
func SetLogger(l logging.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if l == nil {
		l = logging.Nop()
	}
	pkgLogger = l
}

func packageLogger() logging.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return pkgLogger
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer listens until the server is shut down. A graceful shutdown is
// not reported as an error.
func StartServer(server *http.Server) error {
	packageLogger().Info(context.Background(), "server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		packageLogger().Error(ctx, "http server shutdown error", "error", err)
		return err
	}

	packageLogger().Info(ctx, "http server shutdown completed")
	return nil
}
