package chat

import (
	"context"
	"fmt"

	"github.com/Tyrowin/convohub/internal/logging"
)

// Options configures a Service.
type Options struct {
	Rooms        []string
	HistoryLimit int
	Store        MessageStore
	Catalog      UserCatalog
	Logger       logging.Logger
}

// Service wires the registry, presence, rooms and private router together
// and dispatches inbound events to them.
type Service struct {
	registry *Registry
	presence *Presence
	rooms    *Rooms
	private  *PrivateRouter
	logger   logging.Logger
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	reg := NewRegistry()
	return &Service{
		registry: reg,
		presence: NewPresence(reg, opts.Catalog, logger),
		rooms:    NewRooms(reg, opts.Store, opts.Rooms, opts.HistoryLimit, logger),
		private:  NewPrivateRouter(reg, opts.Store, logger),
		logger:   logger,
	}
}

func (s *Service) Registry() *Registry { return s.registry }

func (s *Service) Presence() *Presence { return s.presence }

func (s *Service) Rooms() *Rooms { return s.rooms }

func (s *Service) Private() *PrivateRouter { return s.private }

// Connect registers an authenticated connection, sends it the room catalog
// and every room's recent history, then re-broadcasts presence. A previous
// connection of the same user is closed.
func (s *Service) Connect(ctx context.Context, c Conn) {
	if evicted := s.registry.Register(c); evicted != nil {
		s.logger.Info(ctx, "superseded connection evicted",
			"username", c.Username(), "old_conn_id", evicted.ID(), "conn_id", c.ID())
		evicted.Close()
	}
	s.logger.Info(ctx, "client connected", "conn_id", c.ID(), "username", c.Username(), "online", s.registry.Len())

	if frame, err := Encode(EventRoomsList, s.rooms.Catalog()); err == nil {
		c.Deliver(frame)
	}
	for _, room := range s.rooms.Catalog() {
		if err := s.rooms.History(ctx, c, room); err != nil {
			s.logger.Warn(ctx, "initial room history failed", "room", room, "error", err)
		}
	}

	s.presence.Broadcast(ctx)
}

// Disconnect drops the connection from the registry and every room. The
// roster is re-broadcast only if the connection was still registered.
func (s *Service) Disconnect(ctx context.Context, c Conn) {
	if !s.registry.Unregister(c.ID()) {
		return
	}
	s.logger.Info(ctx, "client disconnected", "conn_id", c.ID(), "username", c.Username(), "online", s.registry.Len())
	s.presence.Broadcast(ctx)
}

// Handle decodes one inbound frame from c and runs it to completion.
// Validation failures are swallowed; the returned error is only for
// malformed frames and unknown events, which the caller logs.
func (s *Service) Handle(ctx context.Context, c Conn, frame []byte) error {
	env, err := Decode(frame)
	if err != nil {
		return err
	}

	switch env.Event {
	case EventJoinRoom:
		return dispatch(ctx, s, env, func(req RoomRequest) error {
			return s.rooms.Join(ctx, c, req.Room)
		})
	case EventLeaveRoom:
		return dispatch(ctx, s, env, func(req RoomRequest) error {
			return s.rooms.Leave(ctx, c, req.Room)
		})
	case EventGetRoomMessages:
		return dispatch(ctx, s, env, func(req RoomRequest) error {
			return s.rooms.History(ctx, c, req.Room)
		})
	case EventSendRoomMessage:
		return dispatch(ctx, s, env, func(req RoomMessageRequest) error {
			return s.rooms.Send(ctx, c, req.Room, req.Text)
		})
	case EventSendPrivateMessage:
		return dispatch(ctx, s, env, func(req PrivateMessageRequest) error {
			return s.private.Send(ctx, c, req.ToUsername, req.Text)
		})
	case EventLoadPrivateMessages:
		return dispatch(ctx, s, env, func(req PrivateHistoryRequest) error {
			return s.private.LoadHistory(ctx, c, req.ToUsername)
		})
	case EventTyping:
		return dispatch(ctx, s, env, func(req TypingRequest) error {
			return s.typing(c, req)
		})
	}
	return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

// dispatch decodes the payload and runs fn. Errors from fn are logged and
// dropped: events are fire-and-forget.
func dispatch[T any](ctx context.Context, s *Service, env Envelope, fn func(T) error) error {
	req, err := decodeData[T](env)
	if err != nil {
		return err
	}
	if err := fn(req); err != nil {
		s.logger.Debug(ctx, "event ignored", "event", env.Event, "reason", err)
	}
	return nil
}

// typing relays a typing notice to the other members of a room the sender
// has joined, or to a single online peer.
func (s *Service) typing(c Conn, req TypingRequest) error {
	to := req.ToUsername
	if to == "" && (req.Private || req.ChannelID != "") {
		peer, ok := ChannelPeer(req.ChannelID, c.Username())
		if !ok {
			return fmt.Errorf("%w: %q is not a channel of %q", ErrValidation, req.ChannelID, c.Username())
		}
		to = peer
	}
	if to != "" {
		if to == c.Username() {
			return nil
		}
		peer, ok := s.registry.ConnectionFor(to)
		if !ok || peer.ID() == c.ID() {
			return nil
		}
		frame, err := Encode(EventTyping, TypingEvent{
			ChannelID: ChannelID(c.Username(), to),
			Username:  c.Username(),
		})
		if err != nil {
			return err
		}
		peer.Deliver(frame)
		return nil
	}

	if req.Room == "" {
		return fmt.Errorf("%w: typing needs a room or a peer", ErrValidation)
	}
	if !s.registry.IsMember(c.ID(), req.Room) {
		return fmt.Errorf("%w: not a member of %q", ErrValidation, req.Room)
	}
	frame, err := Encode(EventTyping, TypingEvent{Room: req.Room, Username: c.Username()})
	if err != nil {
		return err
	}
	for _, m := range s.registry.Members(req.Room) {
		if m.ID() != c.ID() {
			m.Deliver(frame)
		}
	}
	return nil
}
