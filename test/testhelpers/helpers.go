// Package testhelpers provides common utilities for the ConvoHub end-to-end
// tests.
//
// It boots the fully wired application on an httptest server, creates
// accounts through the HTTP API and speaks the JSON event protocol over
// real WebSocket connections.
package testhelpers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/convohub/internal/app"
	"github.com/Tyrowin/convohub/internal/chat"
	"github.com/Tyrowin/convohub/internal/logging"
	"github.com/Tyrowin/convohub/internal/server"
	"github.com/gorilla/websocket"
)

// TestOrigin is the browser origin every helper dials with.
const TestOrigin = "http://localhost:8080"

// DefaultTimeout bounds every blocking read in the helpers.
const DefaultTimeout = 5 * time.Second

// TestPassword is the password of every account created by the helpers.
const TestPassword = "correct horse"

// Env is a running ConvoHub instance backed by in-memory stores.
type Env struct {
	App    *app.App
	Server *httptest.Server
}

// NewEnv starts the application. customize may adjust the configuration
// before it is applied; it can be nil. Everything is torn down when the
// test ends.
func NewEnv(t *testing.T, customize func(cfg *server.Config)) *Env {
	t.Helper()

	cfg := server.NewConfig()
	cfg.DatabaseDSN = server.MemoryDSN
	cfg.AllowedOrigins = []string{TestOrigin}
	if customize != nil {
		customize(cfg)
	}

	a, err := app.New(context.Background(), cfg, logging.Nop())
	if err != nil {
		t.Fatalf("Failed to start app: %v", err)
	}
	go a.Hub().Run()

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Hub().Shutdown(2 * time.Second)
		_ = a.Close()
		server.SetConfig(nil)
	})

	return &Env{App: a, Server: srv}
}

// WebSocketURL returns the /ws endpoint with token in the query string.
func (e *Env) WebSocketURL(token string) string {
	u := "ws" + strings.TrimPrefix(e.Server.URL, "http") + "/ws"
	if token == "" {
		return u
	}
	return u + "?token=" + url.QueryEscape(token)
}

// PostJSON sends body as JSON to path and decodes the response into out
// when out is not nil.
func (e *Env) PostJSON(t *testing.T, path string, body, out any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	client := &http.Client{Timeout: DefaultTimeout}
	resp, err := client.Post(e.Server.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Failed to POST %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s response: %v", path, err)
		}
	}
	return resp
}

// Register creates an account through the HTTP API.
func (e *Env) Register(t *testing.T, username string) {
	t.Helper()

	resp := e.PostJSON(t, "/api/register", map[string]string{
		"username": username,
		"password": TestPassword,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Register %q: expected status 200, got %d", username, resp.StatusCode)
	}
}

// Login returns a fresh session token for an existing account.
func (e *Env) Login(t *testing.T, username string) string {
	t.Helper()

	var out struct {
		OK    bool   `json:"ok"`
		Token string `json:"token"`
	}
	resp := e.PostJSON(t, "/api/login", map[string]string{
		"username": username,
		"password": TestPassword,
	}, &out)
	if resp.StatusCode != http.StatusOK || !out.OK || out.Token == "" {
		t.Fatalf("Login %q failed with status %d", username, resp.StatusCode)
	}
	return out.Token
}

// Dial opens a WebSocket with token. The handshake response is returned so
// callers can inspect refusals.
func (e *Env) Dial(token string, header http.Header) (*websocket.Conn, *http.Response, error) {
	if header == nil {
		header = http.Header{}
		header.Set("Origin", TestOrigin)
	}
	dialer := websocket.Dialer{HandshakeTimeout: DefaultTimeout}
	conn, resp, err := dialer.Dial(e.WebSocketURL(token), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// ConnectRaw registers username when needed, logs in and opens a
// WebSocket without consuming any frame. The connection is closed when the
// test ends.
func (e *Env) ConnectRaw(t *testing.T, username string) *websocket.Conn {
	t.Helper()

	var out struct {
		Error string `json:"error"`
	}
	resp := e.PostJSON(t, "/api/register", map[string]string{
		"username": username,
		"password": TestPassword,
	}, &out)
	if resp.StatusCode != http.StatusOK && !strings.Contains(out.Error, "already exists") {
		t.Fatalf("Register %q: status %d: %s", username, resp.StatusCode, out.Error)
	}

	conn, _, err := e.Dial(e.Login(t, username), nil)
	if err != nil {
		t.Fatalf("Failed to connect %q: %v", username, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Connect is ConnectRaw followed by draining the rooms-list and initial
// room histories, so later room-messages frames answer the caller's own
// requests.
func (e *Env) Connect(t *testing.T, username string) *websocket.Conn {
	t.Helper()

	conn := e.ConnectRaw(t, username)
	rooms := Decode[[]string](t, ReadUntil(t, conn, chat.EventRoomsList))
	for range rooms {
		ReadUntil(t, conn, chat.EventRoomMessages)
	}
	return conn
}

// Join joins room and returns the replayed history.
func Join(t *testing.T, conn *websocket.Conn, room string) chat.RoomMessages {
	t.Helper()

	SendEvent(t, conn, chat.EventJoinRoom, chat.RoomRequest{Room: room})
	return Decode[chat.RoomMessages](t, ReadUntil(t, conn, chat.EventRoomMessages))
}

// WriteEvent writes one event envelope. It is safe to use from goroutines
// other than the test's.
func WriteEvent(conn *websocket.Conn, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(chat.Envelope{Event: event, Data: payload})
}

// SendEvent writes one event envelope and fails the test on error.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	if err := WriteEvent(conn, event, data); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// ReadEvent reads the next envelope.
func ReadEvent(conn *websocket.Conn, timeout time.Duration) (chat.Envelope, error) {
	var env chat.Envelope
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return env, err
	}
	err := conn.ReadJSON(&env)
	return env, err
}

// ReadUntil skips envelopes until one named event arrives.
func ReadUntil(t *testing.T, conn *websocket.Conn, event string) chat.Envelope {
	t.Helper()
	return ReadUntilMatch(t, conn, event, nil)
}

// ReadUntilMatch skips envelopes until one named event satisfies match.
// A nil match accepts the first envelope with that name.
func ReadUntilMatch(t *testing.T, conn *websocket.Conn, event string, match func(chat.Envelope) bool) chat.Envelope {
	t.Helper()

	deadline := time.Now().Add(DefaultTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %s", event)
		}
		env, err := ReadEvent(conn, remaining)
		if err != nil {
			t.Fatalf("Failed waiting for %s: %v", event, err)
		}
		if env.Event == event && (match == nil || match(env)) {
			return env
		}
	}
}

// ExpectNoEvent fails if an envelope named event arrives within wait. The
// read deadline leaves the connection unusable, so this must be the last
// read on conn.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, event string, wait time.Duration) {
	t.Helper()

	deadline := time.Now().Add(wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		env, err := ReadEvent(conn, remaining)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return
			}
			t.Fatalf("Unexpected error while waiting for absence of %s: %v", event, err)
		}
		if env.Event == event {
			t.Fatalf("Expected no %s, got %s", event, string(env.Data))
		}
	}
}

// ExpectClosed reads until the server closes conn.
func ExpectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	deadline := time.Now().Add(DefaultTimeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatal("Connection was not closed by the server")
			}
			return
		}
	}
}

// Decode unmarshals the payload of env.
func Decode[T any](t *testing.T, env chat.Envelope) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", env.Event, err)
	}
	return v
}

// OnlineUsers returns the usernames marked online in a users-list payload.
func OnlineUsers(t *testing.T, env chat.Envelope) map[string]bool {
	t.Helper()

	online := make(map[string]bool)
	for _, u := range Decode[[]chat.UserStatus](t, env) {
		if u.Online {
			online[u.Username] = true
		}
	}
	return online
}
