package types

import (
	"encoding/json"
	"time"
)

// ARCHITECTURAL DISCOVERY: Event names are the wire contract shared with the
// browser client; inbound and outbound typing events reuse the same names
const (
	EventJoinChannel   = "join_channel"
	EventLeaveChannel  = "leave_channel"
	EventSendMessage   = "send_message"
	EventTypingStart   = "typing_start"
	EventTypingStop    = "typing_stop"
	EventDeleteMessage = "delete_message"

	EventStatusUpdate   = "status_update"
	EventNewMessage     = "new_message"
	EventMessageDeleted = "message_deleted"
)

// Envelope is the frame exchanged over the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound wraps a typed payload for encoding.
type Outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// NewOutbound builds an outbound frame.
func NewOutbound(event string, data interface{}) *Outbound {
	return &Outbound{Event: event, Data: data}
}

// Inbound payloads. Identifier fields arrive either as numbers or strings,
// so they are kept raw and normalized by the dispatcher.

type JoinChannelPayload struct {
	ChannelID json.RawMessage `json:"channel_id"`
}

type SendMessagePayload struct {
	Content   string          `json:"content"`
	ChannelID json.RawMessage `json:"channel_id"`
	UserID    json.RawMessage `json:"user_id,omitempty"` // ignored, the bound user is authoritative
}

type TypingPayload struct {
	ChannelID json.RawMessage `json:"channel_id"`
	Username  string          `json:"username,omitempty"`
}

type DeleteMessagePayload struct {
	MessageID json.RawMessage `json:"message_id"`
	UserID    json.RawMessage `json:"user_id,omitempty"` // ignored, the bound user is authoritative
	ChannelID json.RawMessage `json:"channel_id"`
}

// StatusUpdate announces a user's presence change to every connection.
type StatusUpdate struct {
	UserID   int64 `json:"user_id"`
	IsOnline bool  `json:"is_online"`
}

// NewMessage is broadcast to a room after a message is persisted.
// FUNCTIONAL DISCOVERY: channel_id stays a string so clients can compare it
// against their room keys without caring about the stored numeric form
type NewMessage struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	ChannelID string    `json:"channel_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageDeleted is the tombstone broadcast after a hard delete.
type MessageDeleted struct {
	ID        int64  `json:"id"`
	ChannelID string `json:"channel_id"`
}

// Message is a persisted chat message as returned by the store.
type Message struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	ChannelID int64     `json:"channel_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the persisted user projection the realtime core reads.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
}
