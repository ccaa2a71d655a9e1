// Package server exposes HTTP handlers: the authenticated WebSocket upgrade,
// health checks, and the account API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Tyrowin/convohub/internal/accounts"
	"github.com/Tyrowin/convohub/internal/chat"
	"github.com/gorilla/websocket"
)

const maxBodyBytes = 1 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// AccountService registers users and issues session tokens.
type AccountService interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (string, error)
}

// sessionToken reads the token from the "token" query parameter or a
// bearer Authorization header.
func sessionToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(tok)
	}
	return ""
}

// WebSocketHandler authenticates the session token and upgrades the
// connection. Refused requests get a plain HTTP error before any upgrade,
// so they never reach the registry.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		if !checkOrigin(r) {
			http.Error(w, "Origin not allowed", http.StatusForbidden)
			return
		}

		username, err := hub.auth.Authenticate(r.Context(), sessionToken(r))
		if err != nil {
			if !errors.Is(err, chat.ErrMissingToken) {
				hub.logger.Warn(r.Context(), "websocket authentication refused", "remote_addr", r.RemoteAddr, "error", err)
			}
			http.Error(w, "Unauthorized: "+publicAuthError(err), http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn(r.Context(), "websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr, username)
		if !hub.registerClient(client) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			_ = conn.Close()
		}
	}
}

// publicAuthError hides verifier internals from the client.
func publicAuthError(err error) string {
	if errors.Is(err, chat.ErrMissingToken) {
		return chat.ErrMissingToken.Error()
	}
	return chat.ErrInvalidToken.Error()
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "ConvoHub server is running!")
}

// APIHealthHandler reports liveness as JSON.
func APIHealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// RegisterHandler creates an account from a JSON username/password body.
func RegisterHandler(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeCredentials(w, r)
		if !ok {
			return
		}
		if err := svc.Register(r.Context(), req.Username, req.Password); err != nil {
			writeAccountError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true, Message: "User registered successfully"})
	}
}

// LoginHandler checks credentials and returns a session token.
func LoginHandler(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeCredentials(w, r)
		if !ok {
			return
		}
		token, err := svc.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			writeAccountError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{OK: true, Token: token, Username: strings.TrimSpace(req.Username)})
	}
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return req, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return req, false
	}
	return req, true
}

func writeAccountError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, accounts.ErrMissingCredentials),
		errors.Is(err, accounts.ErrUsernameTaken),
		errors.Is(err, accounts.ErrInvalidCredentials),
		errors.Is(err, accounts.ErrPasswordTooLong):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		packageLogger().Error(r.Context(), "account request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
