// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Tyrowin/convohub/internal/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	sendBufferSize = 256
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
)

// Client is one authenticated WebSocket connection. It implements chat.Conn.
type Client struct {
	id       string
	username string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	addr     string
	logger   logging.Logger

	maxMessageSize int64
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig

	mu     sync.Mutex
	closed bool
}

// NewClient creates a Client for an upgraded connection owned by username.
// The send channel is buffered so delivery never blocks the sender.
func NewClient(conn *websocket.Conn, hub *Hub, addr, username string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	var logger logging.Logger = logging.Nop()
	if hub != nil {
		logger = hub.logger
	}

	return &Client{
		id:             id,
		username:       username,
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            hub,
		addr:           addr,
		logger:         logger.With("conn_id", id, "username", username, "addr", addr),
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
	}
}

// newLimiter allows Burst messages at once, refilled at Burst per
// RefillInterval.
func newLimiter(cfg RateLimitConfig) *rate.Limiter {
	per := rate.Limit(float64(cfg.Burst) / cfg.RefillInterval.Seconds())
	return rate.NewLimiter(per, cfg.Burst)
}

func (c *Client) ID() string { return c.id }

func (c *Client) Username() string { return c.username }

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Deliver queues payload without blocking. A client whose buffer is full is
// treated as a slow consumer and closed.
func (c *Client) Deliver(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.logger.Warn(context.Background(), "send buffer full, closing slow client")
		c.closeLocked()
		return false
	}
}

// Close stops the write pump, which sends a close frame and tears down the
// connection. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed reports whether the client stopped accepting messages.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection(ctx context.Context) {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn(ctx, "set read deadline failed", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn(ctx, "set read deadline in pong handler failed", "error", err)
		}
		return nil
	})
}

// logReadError records why the read loop stopped.
func (c *Client) logReadError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn(ctx, "message exceeded maximum size", "max_bytes", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Debug(ctx, "client disconnected", "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Debug(ctx, "connection closed", "reason", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.logger.Warn(ctx, "unexpected websocket close", "error", err)
	default:
		c.logger.Warn(ctx, "websocket read error", "error", err)
	}
}

// checkRateLimit reports whether the next inbound frame may be processed.
func (c *Client) checkRateLimit(ctx context.Context) bool {
	if c.limiter != nil && !c.limiter.Allow() {
		c.logger.Warn(ctx, "rate limit exceeded, discarding message",
			"burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processMessage hands one frame to the chat service. A panic is contained
// to this frame and logged.
func (c *Client) processMessage(ctx context.Context, raw []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(ctx, "panic while handling message", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := c.hub.service.Handle(ctx, c, raw); err != nil {
		c.logger.Warn(ctx, "invalid message", "error", err)
		return err
	}
	return nil
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.service.Disconnect(context.WithoutCancel(ctx), c)
		c.hub.unregisterClient(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn(ctx, "error closing connection in readPump", "error", err)
		}
	}()

	c.setupReadConnection(ctx)
	c.hub.service.Connect(ctx, c)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(ctx, err)
			return
		}

		if !c.checkRateLimit(ctx) {
			continue
		}

		_ = c.processMessage(ctx, raw)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection(ctx)
	}()

	for c.processWriteEvent(ctx, ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ctx context.Context, ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(ctx, message, ok)
	case <-ticker.C:
		return c.handlePing(ctx)
	}
}

func (c *Client) closeConnection(ctx context.Context) {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn(ctx, "error closing connection in writePump", "error", err)
	}
}

// handleMessage writes one outgoing frame and returns false if the
// connection should be closed.
func (c *Client) handleMessage(ctx context.Context, message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn(ctx, "set write deadline failed", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage(ctx)
	}

	// One event per WebSocket frame; clients parse each frame as a single
	// JSON envelope.
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn(ctx, "write failed", "error", err)
		}
		return false
	}
	return true
}

func (c *Client) writeCloseMessage(ctx context.Context) bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn(ctx, "error writing close message", "error", err)
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing(ctx context.Context) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn(ctx, "set write deadline for ping failed", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn(ctx, "error writing ping", "error", err)
		return false
	}
	return true
}
