package chat

import (
	"context"
	"testing"

	"github.com/Tyrowin/convohub/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelID(t *testing.T) {
	tests := []struct {
		a, b string
		want string
	}{
		{"alice", "bob", "alice#bob"},
		{"bob", "alice", "alice#bob"},
		{"Zed", "adam", "Zed#adam"},
		{"same", "same", "same#same"},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, ChannelID(tt.a, tt.b))
			assert.Equal(t, ChannelID(tt.a, tt.b), ChannelID(tt.b, tt.a))
		})
	}
}

func TestChannelPeer(t *testing.T) {
	tests := []struct {
		channel, user string
		want          string
		ok            bool
	}{
		{"alice#bob", "alice", "bob", true},
		{"alice#bob", "bob", "alice", true},
		{"alice#bob", "carol", "", false},
		{"alice#alice", "alice", "alice", true},
		{"a#b#c", "a", "b#c", true},
		{"a#b#c", "c", "a#b", true},
		{"bob#alice", "alice", "", false},
		{"", "alice", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.channel+"/"+tt.user, func(t *testing.T) {
			peer, ok := ChannelPeer(tt.channel, tt.user)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, peer)
		})
	}
}

func newTestRouter(store MessageStore) (*PrivateRouter, *Registry) {
	reg := NewRegistry()
	return NewPrivateRouter(reg, store, logging.Nop()), reg
}

func TestPrivateRouter_SendOnlineRecipient(t *testing.T) {
	store := &fakeStore{}
	router, reg := newTestRouter(store)
	alice := register(t, reg, "c1", "alice")
	bob := register(t, reg, "c2", "bob")
	carol := register(t, reg, "c3", "carol")

	require.NoError(t, router.Send(context.Background(), alice, "bob", "hey"))

	for _, c := range []*fakeConn{alice, bob} {
		got := decodeAll[PrivateMessageEvent](t, c.events(EventReceivePrivateMessage))
		require.Len(t, got, 1, c.username)
		assert.Equal(t, "alice#bob", got[0].ChannelID)
		assert.Equal(t, "alice", got[0].Message.From)
		assert.Equal(t, "bob", got[0].Message.To)
		assert.Equal(t, "hey", got[0].Message.Text)
	}
	assert.Empty(t, carol.frames)
	require.Len(t, store.private, 1)
}

func TestPrivateRouter_SendOfflineRecipient(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	router, reg := newTestRouter(store)
	alice := register(t, reg, "c1", "alice")

	require.NoError(t, router.Send(ctx, alice, "bob", "hey"))

	assert.Len(t, alice.events(EventReceivePrivateMessage), 1)

	bob := register(t, reg, "c2", "bob")
	assert.Empty(t, bob.frames, "offline messages are not queued")

	require.NoError(t, router.LoadHistory(ctx, bob, "alice"))
	got := decodeAll[PrivateMessagesLoaded](t, bob.events(EventPrivateMessagesLoaded))
	require.Len(t, got, 1)
	assert.Equal(t, "alice#bob", got[0].ChannelID)
	require.Len(t, got[0].Messages, 1)
	assert.Equal(t, "hey", got[0].Messages[0].Text)
}

func TestPrivateRouter_SendToSelfDeliversOnce(t *testing.T) {
	router, reg := newTestRouter(&fakeStore{})
	alice := register(t, reg, "c1", "alice")

	require.NoError(t, router.Send(context.Background(), alice, "alice", "note to self"))

	assert.Len(t, alice.events(EventReceivePrivateMessage), 1)
}

func TestPrivateRouter_Validation(t *testing.T) {
	store := &fakeStore{}
	router, reg := newTestRouter(store)
	alice := register(t, reg, "c1", "alice")

	assert.ErrorIs(t, router.Send(context.Background(), alice, "", "hi"), ErrValidation)
	assert.ErrorIs(t, router.Send(context.Background(), alice, "bob", ""), ErrValidation)
	assert.ErrorIs(t, router.LoadHistory(context.Background(), alice, ""), ErrValidation)

	assert.Empty(t, store.private)
	assert.Empty(t, alice.frames)
}

func TestPrivateRouter_PersistenceFailure(t *testing.T) {
	router, reg := newTestRouter(&fakeStore{failAdd: true, failRead: true})
	alice := register(t, reg, "c1", "alice")
	bob := register(t, reg, "c2", "bob")

	var perr *PersistenceError
	require.ErrorAs(t, router.Send(context.Background(), alice, "bob", "hey"), &perr)
	assert.Len(t, bob.events(EventReceivePrivateMessage), 1)

	require.NoError(t, router.LoadHistory(context.Background(), alice, "bob"))
	raw := alice.events(EventPrivateMessagesLoaded)
	require.Len(t, raw, 1)
	assert.JSONEq(t, `{"channelId":"alice#bob","messages":[]}`, string(raw[0]))
}

func TestPrivateRouter_LoadHistoryGoesToRequesterOnly(t *testing.T) {
	ctx := context.Background()
	router, reg := newTestRouter(&fakeStore{})
	alice := register(t, reg, "c1", "alice")
	bob := register(t, reg, "c2", "bob")

	require.NoError(t, router.Send(ctx, alice, "bob", "one"))
	require.NoError(t, router.Send(ctx, bob, "alice", "two"))
	bob.reset()

	require.NoError(t, router.LoadHistory(ctx, alice, "bob"))

	got := decodeAll[PrivateMessagesLoaded](t, alice.events(EventPrivateMessagesLoaded))
	require.Len(t, got, 1)
	require.Len(t, got[0].Messages, 2)
	assert.Equal(t, "one", got[0].Messages[0].Text)
	assert.Equal(t, "two", got[0].Messages[1].Text)
	assert.Empty(t, bob.frames)
}
