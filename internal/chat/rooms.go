package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Tyrowin/convohub/internal/logging"
)

// DefaultHistoryLimit is how many room messages are replayed on join.
const DefaultHistoryLimit = 100

// Rooms manages room membership and fans room messages out to members.
//
// Every catalog room has its own sequencer lock. Stamping, persisting,
// target enumeration and enqueueing of one message all happen under it, so
// all members of a room observe that room's messages in the order the store
// recorded them. Sends to one room are therefore serialized on the store
// write; sends to different rooms are not. Replay on join is a
// point-in-time snapshot: a message sent while a client joins can show up
// both in the replay and live, or only live. Clients that care de-duplicate
// on (time, username, message).
type Rooms struct {
	registry *Registry
	store    MessageStore
	logger   logging.Logger
	limit    int
	now      func() time.Time

	catalog []string
	seq     map[string]*sync.Mutex
}

// NewRooms builds a broadcaster over a fixed room catalog. Blank and
// duplicate names are ignored; limit <= 0 selects DefaultHistoryLimit.
func NewRooms(registry *Registry, store MessageStore, catalog []string, limit int, logger logging.Logger) *Rooms {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	r := &Rooms{
		registry: registry,
		store:    store,
		logger:   logger,
		limit:    limit,
		now:      time.Now,
		seq:      make(map[string]*sync.Mutex, len(catalog)),
	}
	for _, name := range catalog {
		if name == "" {
			continue
		}
		if _, dup := r.seq[name]; dup {
			continue
		}
		r.seq[name] = &sync.Mutex{}
		r.catalog = append(r.catalog, name)
	}
	return r
}

// Catalog returns the configured room names in configuration order.
func (r *Rooms) Catalog() []string {
	return append([]string(nil), r.catalog...)
}

func (r *Rooms) validate(room string) error {
	if room == "" {
		return fmt.Errorf("%w: empty room", ErrValidation)
	}
	if _, ok := r.seq[room]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRoom, room)
	}
	return nil
}

// Join subscribes c to room and replays the room's recent history to it.
// Joining a room twice keeps a single membership.
func (r *Rooms) Join(ctx context.Context, c Conn, room string) error {
	if err := r.validate(room); err != nil {
		return err
	}
	if !r.registry.Join(c.ID(), room) {
		return ErrNotConnected
	}
	r.logger.Debug(ctx, "joined room", "conn_id", c.ID(), "username", c.Username(), "room", room)
	return r.History(ctx, c, room)
}

// Leave unsubscribes c from room.
func (r *Rooms) Leave(ctx context.Context, c Conn, room string) error {
	if room == "" {
		return fmt.Errorf("%w: empty room", ErrValidation)
	}
	if !r.registry.Leave(c.ID(), room) {
		return ErrNotConnected
	}
	r.logger.Debug(ctx, "left room", "conn_id", c.ID(), "username", c.Username(), "room", room)
	return nil
}

// History sends the latest messages of room to c only.
func (r *Rooms) History(ctx context.Context, c Conn, room string) error {
	if err := r.validate(room); err != nil {
		return err
	}
	frame, err := Encode(EventRoomMessages, RoomMessages{Room: room, Messages: r.Recent(ctx, room)})
	if err != nil {
		return err
	}
	c.Deliver(frame)
	return nil
}

// Recent reads the last messages of room, oldest first. Store failures
// yield an empty list.
func (r *Rooms) Recent(ctx context.Context, room string) []PublicMessage {
	msgs, err := r.store.RecentPublic(ctx, room, r.limit)
	if err != nil {
		r.logger.Warn(ctx, "room history unavailable", "room", room, "error", err)
		return []PublicMessage{}
	}
	if msgs == nil {
		msgs = []PublicMessage{}
	}
	return msgs
}

// Send persists a message from c and delivers it to every member of room.
//
// A store failure does not stop the fan-out; it is returned as a
// *PersistenceError after delivery.
func (r *Rooms) Send(ctx context.Context, c Conn, room, text string) error {
	if err := r.validate(room); err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("%w: empty text", ErrValidation)
	}

	seq := r.seq[room]
	seq.Lock()
	defer seq.Unlock()

	msg := PublicMessage{Room: room, Username: c.Username(), Text: text, Time: r.now().UTC()}

	var perr error
	if err := r.store.AppendPublic(ctx, msg); err != nil {
		perr = &PersistenceError{Op: "append public message", Err: err}
		r.logger.Warn(ctx, "room message not persisted", "room", room, "username", msg.Username, "error", err)
	}

	frame, err := Encode(EventReceiveRoomMessage, RoomMessageEvent{Room: room, Message: msg})
	if err != nil {
		return err
	}

	for _, m := range r.registry.Members(room) {
		if !m.Deliver(frame) {
			r.logger.Debug(ctx, "room delivery dropped", "room", room, "conn_id", m.ID())
		}
	}

	return perr
}
