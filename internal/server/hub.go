// Package server coordinates client lifecycles for the ConvoHub WebSocket
// system via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/Tyrowin/convohub/internal/chat"
	"github.com/Tyrowin/convohub/internal/logging"
)

// Hub owns the pump goroutines of every live client and routes their
// traffic to the chat service. Presence and room state live in the
// service's registry; the hub only tracks what it must close on shutdown.
type Hub struct {
	service *chat.Service
	auth    chat.Authenticator
	logger  logging.Logger

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub. Run must be started before clients connect.
func NewHub(service *chat.Service, auth chat.Authenticator, logger logging.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		service:    service,
		auth:       auth,
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Service returns the chat service the hub dispatches to.
func (h *Hub) Service() *chat.Service {
	return h.service
}

// ClientCount returns the number of clients with running pumps.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// registerClient hands a freshly upgraded client to Run. It reports false
// once the hub is shutting down.
func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// unregisterClient is called by a read pump on exit. After Run has
// returned, the client is closed directly.
func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.Close()
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn(h.ctx, "received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			h.clients[client] = struct{}{}
			clientCount := len(h.clients)
			h.mutex.Unlock()
			client.logger.Debug(h.ctx, "client pumps starting", "clients", clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump(h.ctx)
			}()
			go func() {
				defer h.wg.Done()
				client.readPump(h.ctx)
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			clientCount := len(h.clients)
			h.mutex.Unlock()

			if ok {
				client.Close()
				client.logger.Debug(h.ctx, "client pumps stopped", "clients", clientCount)
			}
		}
	}
}

// shutdownClients closes every client connection so their pumps exit.
func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		client.Close()
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				client.logger.Warn(context.Background(), "error closing client connection", "error", err)
			}
		}
	}

	h.logger.Info(context.Background(), "closed client connections", "count", len(clients))
}

// Shutdown stops the hub and waits for every client goroutine to finish,
// or until timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info(context.Background(), "initiating hub shutdown")

	h.cancel()

	// One deadline covers both the Run loop and the client goroutines, so a
	// hub whose Run was never started still returns.
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case <-h.done:
	case <-deadline.C:
		h.logger.Warn(context.Background(), "hub shutdown timeout reached before run loop exited")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info(context.Background(), "hub shutdown completed")
		return nil
	case <-deadline.C:
		h.logger.Warn(context.Background(), "hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
