package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/convohub/internal/accounts"
	"github.com/Tyrowin/convohub/internal/auth"
	"github.com/Tyrowin/convohub/internal/chat"
	"github.com/Tyrowin/convohub/internal/logging"
	"github.com/Tyrowin/convohub/internal/storage/memory"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	hub      *Hub
	store    *memory.Store
	accounts *accounts.Service
}

// newTestEnv builds a running hub over in-memory stores.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.New(time.Hour)
	logger := logging.Nop()
	svc := chat.NewService(chat.Options{
		Rooms:   []string{"General", "Random"},
		Store:   store,
		Catalog: store,
		Logger:  logger,
	})
	hub := NewHub(svc, chat.NewTokenAuthenticator(store), logger)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	acct := accounts.NewService(store, auth.NewSessionIssuer(store), logger,
		accounts.WithBcryptCost(bcrypt.MinCost))

	return &testEnv{hub: hub, store: store, accounts: acct}
}

// login registers username and returns a fresh session token.
func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.accounts.Register(ctx, username, "secret"))
	token, err := e.accounts.Login(ctx, username, "secret")
	require.NoError(t, err)
	return token
}

// dialTestServer serves the hub over httptest and opens an authenticated
// WebSocket to it.
func dialTestServer(t *testing.T, e *testEnv, token string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(SetupRoutes(e.hub, e.accounts))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {testOrigin}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
