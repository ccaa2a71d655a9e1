package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/convohub/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRooms = []string{"General", "Tech Talk", "Random"}

func newTestRooms(t *testing.T, store MessageStore) (*Rooms, *Registry) {
	t.Helper()
	reg := NewRegistry()
	return NewRooms(reg, store, testRooms, 0, logging.Nop()), reg
}

func register(t *testing.T, reg *Registry, id, username string) *fakeConn {
	t.Helper()
	c := newConn(id, username)
	require.Nil(t, reg.Register(c))
	return c
}

func TestNewRooms_Catalog(t *testing.T) {
	r := NewRooms(NewRegistry(), &fakeStore{}, []string{"General", "", "Random", "General"}, 0, logging.Nop())

	assert.Equal(t, []string{"General", "Random"}, r.Catalog())
	assert.Equal(t, DefaultHistoryLimit, r.limit)
}

func TestRooms_JoinReplaysHistoryToJoinerOnly(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	rooms, reg := newTestRooms(t, store)
	alice := register(t, reg, "c1", "alice")
	bob := register(t, reg, "c2", "bob")

	require.NoError(t, rooms.Join(ctx, bob, "General"))
	require.NoError(t, rooms.Send(ctx, bob, "General", "first"))
	bob.reset()

	require.NoError(t, rooms.Join(ctx, alice, "General"))

	got := decodeAll[RoomMessages](t, alice.events(EventRoomMessages))
	require.Len(t, got, 1)
	assert.Equal(t, "General", got[0].Room)
	require.Len(t, got[0].Messages, 1)
	assert.Equal(t, "bob", got[0].Messages[0].Username)
	assert.Equal(t, "first", got[0].Messages[0].Text)

	assert.Empty(t, bob.events(EventRoomMessages))
}

func TestRooms_JoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rooms, reg := newTestRooms(t, &fakeStore{})
	alice := register(t, reg, "c1", "alice")

	require.NoError(t, rooms.Join(ctx, alice, "General"))
	require.NoError(t, rooms.Join(ctx, alice, "General"))
	require.NoError(t, rooms.Send(ctx, alice, "General", "once"))

	assert.Len(t, reg.Members("General"), 1)
	assert.Len(t, alice.events(EventReceiveRoomMessage), 1)
}

func TestRooms_UnknownOrEmptyRoomIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	rooms, reg := newTestRooms(t, store)
	alice := register(t, reg, "c1", "alice")

	assert.ErrorIs(t, rooms.Join(ctx, alice, "Secret"), ErrUnknownRoom)
	assert.ErrorIs(t, rooms.Join(ctx, alice, ""), ErrValidation)
	assert.ErrorIs(t, rooms.Send(ctx, alice, "Secret", "hi"), ErrUnknownRoom)
	assert.ErrorIs(t, rooms.Send(ctx, alice, "General", ""), ErrValidation)

	assert.Empty(t, reg.Rooms("c1"))
	assert.Empty(t, store.public)
	assert.Empty(t, alice.frames)
}

func TestRooms_JoinAfterDisconnect(t *testing.T) {
	rooms, reg := newTestRooms(t, &fakeStore{})
	alice := register(t, reg, "c1", "alice")
	reg.Unregister("c1")

	assert.ErrorIs(t, rooms.Join(context.Background(), alice, "General"), ErrNotConnected)
}

func TestRooms_SendFansOutToMembersOnly(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	rooms, reg := newTestRooms(t, store)
	alice := register(t, reg, "c1", "alice")
	bob := register(t, reg, "c2", "bob")
	carol := register(t, reg, "c3", "carol")

	require.NoError(t, rooms.Join(ctx, alice, "General"))
	require.NoError(t, rooms.Join(ctx, bob, "General"))
	require.NoError(t, rooms.Join(ctx, carol, "Random"))

	before := time.Now().UTC()
	require.NoError(t, rooms.Send(ctx, alice, "General", "hi"))

	for _, c := range []*fakeConn{alice, bob} {
		got := decodeAll[RoomMessageEvent](t, c.events(EventReceiveRoomMessage))
		require.Len(t, got, 1, c.username)
		assert.Equal(t, "General", got[0].Room)
		assert.Equal(t, "alice", got[0].Message.Username)
		assert.Equal(t, "hi", got[0].Message.Text)
		assert.False(t, got[0].Message.Time.Before(before.Truncate(time.Second)))
	}
	assert.Empty(t, carol.events(EventReceiveRoomMessage))

	require.Len(t, store.public, 1)
	assert.Equal(t, "General", store.public[0].Room)
}

func TestRooms_SendWithoutMembership(t *testing.T) {
	ctx := context.Background()
	rooms, reg := newTestRooms(t, &fakeStore{})
	alice := register(t, reg, "c1", "alice")
	bob := register(t, reg, "c2", "bob")
	require.NoError(t, rooms.Join(ctx, bob, "General"))

	require.NoError(t, rooms.Send(ctx, alice, "General", "drive-by"))

	assert.Len(t, bob.events(EventReceiveRoomMessage), 1)
	assert.Empty(t, alice.events(EventReceiveRoomMessage))
}

func TestRooms_LeaveStopsDelivery(t *testing.T) {
	ctx := context.Background()
	rooms, reg := newTestRooms(t, &fakeStore{})
	alice := register(t, reg, "c1", "alice")
	bob := register(t, reg, "c2", "bob")
	require.NoError(t, rooms.Join(ctx, alice, "General"))
	require.NoError(t, rooms.Join(ctx, bob, "General"))

	require.NoError(t, rooms.Leave(ctx, bob, "General"))
	require.NoError(t, rooms.Send(ctx, alice, "General", "anyone?"))

	assert.Empty(t, bob.events(EventReceiveRoomMessage))
}

func TestRooms_PersistenceFailureStillFansOut(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{failAdd: true}
	rooms, reg := newTestRooms(t, store)
	alice := register(t, reg, "c1", "alice")
	require.NoError(t, rooms.Join(ctx, alice, "General"))

	err := rooms.Send(ctx, alice, "General", "hi")

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.True(t, errors.Is(err, errStoreDown))
	assert.Len(t, alice.events(EventReceiveRoomMessage), 1)
}

func TestRooms_HistoryReadFailureYieldsEmptyList(t *testing.T) {
	rooms, reg := newTestRooms(t, &fakeStore{failRead: true})
	alice := register(t, reg, "c1", "alice")

	require.NoError(t, rooms.History(context.Background(), alice, "General"))

	raw := alice.events(EventRoomMessages)
	require.Len(t, raw, 1)
	assert.JSONEq(t, `{"room":"General","messages":[]}`, string(raw[0]))
}

func TestRooms_HistoryIsCappedOldestFirst(t *testing.T) {
	store := &fakeStore{}
	for i := range 150 {
		store.public = append(store.public, PublicMessage{Room: "General", Username: "bob", Text: fmt.Sprintf("m%03d", i)})
	}
	rooms, reg := newTestRooms(t, store)
	alice := register(t, reg, "c1", "alice")

	require.NoError(t, rooms.Join(context.Background(), alice, "General"))

	got := decodeAll[RoomMessages](t, alice.events(EventRoomMessages))
	require.Len(t, got, 1)
	msgs := got[0].Messages
	require.Len(t, msgs, DefaultHistoryLimit)
	assert.Equal(t, "m050", msgs[0].Text)
	assert.Equal(t, "m149", msgs[len(msgs)-1].Text)
}

func TestRooms_MembersObserveSameOrder(t *testing.T) {
	ctx := context.Background()
	rooms, reg := newTestRooms(t, &fakeStore{})

	members := make([]*fakeConn, 4)
	for i := range members {
		members[i] = register(t, reg, fmt.Sprintf("c%d", i), fmt.Sprintf("user%d", i))
		require.NoError(t, rooms.Join(ctx, members[i], "General"))
	}

	var wg sync.WaitGroup
	for i, sender := range members {
		wg.Add(1)
		go func(n int, c *fakeConn) {
			defer wg.Done()
			for j := range 50 {
				_ = rooms.Send(ctx, c, "General", fmt.Sprintf("%d-%d", n, j))
			}
		}(i, sender)
	}
	wg.Wait()

	texts := func(c *fakeConn) []string {
		var out []string
		for _, ev := range decodeAll[RoomMessageEvent](t, c.events(EventReceiveRoomMessage)) {
			out = append(out, ev.Message.Text)
		}
		return out
	}

	want := texts(members[0])
	require.Len(t, want, 200)
	for _, c := range members[1:] {
		assert.Equal(t, want, texts(c), "member %s saw a different order", c.username)
	}
}

func TestRooms_StoreOrderMatchesDeliveryOrder(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	rooms, reg := newTestRooms(t, store)

	watcher := register(t, reg, "w", "watcher")
	require.NoError(t, rooms.Join(ctx, watcher, "General"))

	senders := make([]*fakeConn, 4)
	for i := range senders {
		senders[i] = register(t, reg, fmt.Sprintf("s%d", i), fmt.Sprintf("sender%d", i))
	}

	var wg sync.WaitGroup
	for i, sender := range senders {
		wg.Add(1)
		go func(n int, c *fakeConn) {
			defer wg.Done()
			for j := range 50 {
				_ = rooms.Send(ctx, c, "General", fmt.Sprintf("%d-%d", n, j))
			}
		}(i, sender)
	}
	wg.Wait()

	var live []string
	for _, ev := range decodeAll[RoomMessageEvent](t, watcher.events(EventReceiveRoomMessage)) {
		live = append(live, ev.Message.Text)
	}

	store.mu.Lock()
	stored := make([]string, 0, len(store.public))
	for _, m := range store.public {
		stored = append(stored, m.Text)
	}
	store.mu.Unlock()

	require.Len(t, live, 200)
	assert.Equal(t, stored, live)

	// A late joiner's replay matches what earlier members saw live.
	late := register(t, reg, "late", "late")
	rooms.limit = 200
	require.NoError(t, rooms.Join(ctx, late, "General"))
	replays := decodeAll[RoomMessages](t, late.events(EventRoomMessages))
	require.Len(t, replays, 1)
	var replayed []string
	for _, m := range replays[0].Messages {
		replayed = append(replayed, m.Text)
	}
	assert.Equal(t, live, replayed)
}
