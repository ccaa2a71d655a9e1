// Package app assembles ConvoHub from its configuration: storage backend,
// token mode, optional Redis cache, chat service, hub and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/convohub/internal/accounts"
	"github.com/Tyrowin/convohub/internal/auth"
	"github.com/Tyrowin/convohub/internal/cache"
	"github.com/Tyrowin/convohub/internal/chat"
	"github.com/Tyrowin/convohub/internal/logging"
	"github.com/Tyrowin/convohub/internal/server"
	"github.com/Tyrowin/convohub/internal/storage/memory"
	"github.com/Tyrowin/convohub/internal/storage/postgres"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	sessionCacheTTL = 5 * time.Minute
	catalogCacheTTL = 30 * time.Second
	jwtIssuer       = "convohub"
)

// Every verifier the app can put behind the Redis cache reports session
// expiry, so cached entries never outlive their sessions.
var (
	_ cache.ExpiringVerifier = (*memory.Store)(nil)
	_ cache.ExpiringVerifier = (*postgres.Store)(nil)
	_ cache.ExpiringVerifier = (*auth.JWT)(nil)
)

// backend is the set of stores behind one DSN.
type backend struct {
	messages chat.MessageStore
	catalog  chat.UserCatalog
	verifier chat.SessionVerifier
	users    accounts.Store
	sessions auth.SessionStore
	close    func() error
}

type App struct {
	config   *server.Config
	logger   logging.Logger
	hub      *server.Hub
	accounts *accounts.Service
	handler  http.Handler
	closers  []func() error
}

// New wires every component. Callers must Close the App when Run is not
// used.
func New(ctx context.Context, cfg *server.Config, logger logging.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	server.SetConfig(cfg)
	server.SetLogger(logger)

	a := &App{config: cfg, logger: logger}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, be.close)

	verifier := be.verifier
	var issuer accounts.TokenIssuer = auth.NewSessionIssuer(be.sessions)
	if cfg.AuthMode == server.AuthModeJWT {
		j := auth.NewJWT([]byte(cfg.SecretKey), cfg.TokenTTL, jwtIssuer)
		verifier, issuer = j, j
	}

	catalog := be.catalog
	var acctOpts []accounts.Option
	if cfg.RedisAddr != "" {
		c, err := cache.Dial(ctx, cfg.RedisAddr, "convohub:")
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, c.Close)

		verifier = cache.NewVerifier(verifier, c, sessionCacheTTL, logger)
		cached := cache.NewCatalog(catalog, c, catalogCacheTTL, logger)
		catalog = cached
		acctOpts = append(acctOpts, accounts.WithInvalidator(cached))
		logger.Info(ctx, "redis cache enabled", "addr", cfg.RedisAddr)
	}

	svc := chat.NewService(chat.Options{
		Rooms:        cfg.Rooms,
		HistoryLimit: cfg.HistoryLimit,
		Store:        be.messages,
		Catalog:      catalog,
		Logger:       logger,
	})
	a.hub = server.NewHub(svc, chat.NewTokenAuthenticator(verifier), logger)
	a.accounts = accounts.NewService(be.users, issuer, logger, acctOpts...)
	a.handler = server.SetupRoutes(a.hub, a.accounts)

	return a, nil
}

func openBackend(ctx context.Context, cfg *server.Config, logger logging.Logger) (*backend, error) {
	if cfg.DatabaseDSN == server.MemoryDSN {
		logger.Warn(ctx, "using in-memory storage, data is lost on restart")
		s := memory.New(cfg.TokenTTL)
		return &backend{
			messages: s, catalog: s, verifier: s, users: s, sessions: s,
			close: func() error { return nil },
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}
	s := postgres.New(db, cfg.TokenTTL)
	return &backend{
		messages: s, catalog: s, verifier: s, users: s, sessions: s,
		close: db.Close,
	}, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Hub returns the WebSocket hub. Its Run loop is started by Run.
func (a *App) Hub() *server.Hub { return a.hub }

// Run serves until ctx is done or SIGINT/SIGTERM arrives, then shuts the
// HTTP server and the hub down and releases the stores.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.hub.Run()

	httpServer := server.CreateServer(a.config.Port, a.handler)
	a.logger.Info(ctx, "starting convohub",
		"addr", a.config.Port, "auth_mode", a.config.AuthMode, "rooms", a.config.Rooms)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartServer(httpServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info(context.Background(), "shutting down")
		return errors.Join(
			server.ShutdownServer(httpServer, shutdownTimeout),
			a.hub.Shutdown(shutdownTimeout),
		)
	})

	err := g.Wait()
	return errors.Join(err, a.Close())
}

// Close releases the stores and the cache connection.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
