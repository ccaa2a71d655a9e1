package chat

import (
	"encoding/json"
	"fmt"
)

// Inbound event names.
const (
	EventJoinRoom            = "join-room"
	EventLeaveRoom           = "leave-room"
	EventGetRoomMessages     = "get-room-messages"
	EventSendRoomMessage     = "send-room-message"
	EventSendPrivateMessage  = "send-private-message"
	EventLoadPrivateMessages = "load-private-messages"
	EventTyping              = "typing"
)

// Outbound event names.
const (
	EventRoomsList             = "rooms-list"
	EventRoomMessages          = "room-messages"
	EventReceiveRoomMessage    = "receive-room-message"
	EventUsersList             = "users-list"
	EventReceivePrivateMessage = "receive-private-message"
	EventPrivateMessagesLoaded = "private-messages-loaded"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Request payloads.
type (
	RoomRequest struct {
		Room string `json:"room"`
	}

	RoomMessageRequest struct {
		Room string `json:"room"`
		Text string `json:"text"`
	}

	PrivateMessageRequest struct {
		ToUsername string `json:"toUsername"`
		Text       string `json:"text"`
	}

	PrivateHistoryRequest struct {
		ToUsername string `json:"toUsername"`
	}

	// TypingRequest targets a room, or a single peer named either by
	// ToUsername or by a private ChannelID.
	TypingRequest struct {
		Room       string `json:"room,omitempty"`
		ChannelID  string `json:"channelId,omitempty"`
		Private    bool   `json:"private,omitempty"`
		ToUsername string `json:"toUsername,omitempty"`
	}
)

// Event payloads.
type (
	RoomMessages struct {
		Room     string          `json:"room"`
		Messages []PublicMessage `json:"messages"`
	}

	RoomMessageEvent struct {
		Room    string        `json:"room"`
		Message PublicMessage `json:"message"`
	}

	PrivateMessageEvent struct {
		ChannelID string         `json:"channelId"`
		Message   PrivateMessage `json:"message"`
	}

	PrivateMessagesLoaded struct {
		ChannelID string           `json:"channelId"`
		Messages  []PrivateMessage `json:"messages"`
	}

	TypingEvent struct {
		Room      string `json:"room,omitempty"`
		ChannelID string `json:"channelId,omitempty"`
		Username  string `json:"username"`
	}
)

// Encode builds the wire frame for an outbound event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Decode parses an inbound frame.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode frame: %w: empty event name", ErrValidation)
	}
	return env, nil
}

func decodeData[T any](env Envelope) (T, error) {
	var v T
	if len(env.Data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", env.Event, err)
	}
	return v, nil
}
