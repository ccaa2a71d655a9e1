package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Tyrowin/convohub/internal/logging"
)

// ChannelSeparator joins the two usernames of a pairwise channel id.
const ChannelSeparator = "#"

// ChannelID returns the identifier of the private conversation between a
// and b. It does not depend on argument order.
func ChannelID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ChannelSeparator + b
}

// ChannelPeer returns the other participant of channel as seen by username.
// It reports false when username is not part of channel.
func ChannelPeer(channel, username string) (string, bool) {
	if peer, ok := strings.CutPrefix(channel, username+ChannelSeparator); ok && peer != "" && ChannelID(username, peer) == channel {
		return peer, true
	}
	if peer, ok := strings.CutSuffix(channel, ChannelSeparator+username); ok && peer != "" && ChannelID(peer, username) == channel {
		return peer, true
	}
	return "", false
}

// PrivateRouter delivers messages between two users.
type PrivateRouter struct {
	registry *Registry
	store    MessageStore
	logger   logging.Logger
	now      func() time.Time
}

func NewPrivateRouter(registry *Registry, store MessageStore, logger logging.Logger) *PrivateRouter {
	return &PrivateRouter{registry: registry, store: store, logger: logger, now: time.Now}
}

// Send persists a message from c to the user named to, delivers it to the
// recipient when online and echoes it back to c. Offline recipients get
// nothing live; the message waits in history.
func (p *PrivateRouter) Send(ctx context.Context, c Conn, to, text string) error {
	if to == "" || text == "" {
		return fmt.Errorf("%w: private message needs recipient and text", ErrValidation)
	}

	msg := PrivateMessage{From: c.Username(), To: to, Text: text, Time: p.now().UTC()}

	var perr error
	if err := p.store.AppendPrivate(ctx, msg); err != nil {
		perr = &PersistenceError{Op: "append private message", Err: err}
		p.logger.Warn(ctx, "private message not persisted", "from", msg.From, "to", to, "error", err)
	}

	frame, err := Encode(EventReceivePrivateMessage, PrivateMessageEvent{
		ChannelID: ChannelID(msg.From, to),
		Message:   msg,
	})
	if err != nil {
		return err
	}

	if peer, ok := p.registry.ConnectionFor(to); ok && peer.ID() != c.ID() {
		if !peer.Deliver(frame) {
			p.logger.Debug(ctx, "private delivery dropped", "to", to, "conn_id", peer.ID())
		}
	}
	c.Deliver(frame)

	return perr
}

// LoadHistory sends the full conversation between c and other to c only.
// A store failure yields an empty list.
func (p *PrivateRouter) LoadHistory(ctx context.Context, c Conn, other string) error {
	if other == "" {
		return fmt.Errorf("%w: empty peer", ErrValidation)
	}

	msgs, err := p.store.PrivateHistory(ctx, c.Username(), other)
	if err != nil {
		p.logger.Warn(ctx, "private history unavailable", "username", c.Username(), "peer", other, "error", err)
		msgs = nil
	}
	if msgs == nil {
		msgs = []PrivateMessage{}
	}

	frame, err := Encode(EventPrivateMessagesLoaded, PrivateMessagesLoaded{
		ChannelID: ChannelID(c.Username(), other),
		Messages:  msgs,
	})
	if err != nil {
		return err
	}
	c.Deliver(frame)
	return nil
}
