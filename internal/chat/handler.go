package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"teachat/internal/metrics"
	"teachat/internal/room"
	"teachat/internal/session"
	"teachat/pkg/interfaces"
	"teachat/pkg/types"
)

// Config controls message validation and inbound limits
type Config struct {
	RequireJoin      bool    // send and typing require a prior join_channel
	MaxContentLength int     // runes; <= 0 disables the check
	SanitizeHTML     bool    // strip markup before persisting
	RateLimit        float64 // inbound events per second per connection; <= 0 disables
	RateBurst        int
}

// DefaultConfig returns the strict defaults
func DefaultConfig() Config {
	return Config{
		RequireJoin:      true,
		MaxContentLength: 2000,
		RateLimit:        10,
		RateBurst:        20,
	}
}

// Handler turns decoded chat events into persistence and broadcasts
// ARCHITECTURAL DISCOVERY: Persist-then-broadcast; nothing reaches a room
// unless the store accepted it first
type Handler struct {
	registry    *session.Registry
	broadcaster *room.Broadcaster
	store       interfaces.ChatStore
	sanitizer   Sanitizer
	limiter     *RateLimiter
	config      Config
	logger      *slog.Logger
	metrics     metrics.Recorder
}

// NewHandler creates a message event handler
func NewHandler(registry *session.Registry, broadcaster *room.Broadcaster, store interfaces.ChatStore, config Config, logger *slog.Logger, recorder metrics.Recorder) *Handler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	h := &Handler{
		registry:    registry,
		broadcaster: broadcaster,
		store:       store,
		limiter:     NewRateLimiter(config.RateLimit, config.RateBurst),
		config:      config,
		logger:      logger,
		metrics:     recorder,
	}
	if config.SanitizeHTML {
		h.sanitizer = NewStrictSanitizer()
	}
	return h
}

// Allow applies the per-connection inbound rate limit
func (h *Handler) Allow(connectionID string) error {
	if !h.limiter.Allow(connectionID) {
		return ErrRateLimited
	}
	return nil
}

// Forget releases per-connection state on disconnect
func (h *Handler) Forget(connectionID string) {
	h.limiter.Forget(connectionID)
}

// HandleJoin adds the connection to a room
func (h *Handler) HandleJoin(connectionID, roomID string) error {
	if err := h.registry.JoinRoom(connectionID, roomID); err != nil {
		return fmt.Errorf("join room %s: %w", roomID, err)
	}
	h.logger.Debug("joined room", slog.String("connection_id", connectionID), slog.String("room_id", roomID))
	return nil
}

// HandleLeave removes the connection from a room
func (h *Handler) HandleLeave(connectionID, roomID string) error {
	if err := h.registry.LeaveRoom(connectionID, roomID); err != nil {
		return fmt.Errorf("leave room %s: %w", roomID, err)
	}
	h.logger.Debug("left room", slog.String("connection_id", connectionID), slog.String("room_id", roomID))
	return nil
}

// sender resolves the bound user of a live connection
func (h *Handler) sender(connectionID string) (int64, error) {
	userID, live := h.registry.UserFor(connectionID)
	if !live {
		return 0, ErrNotConnected
	}
	if userID == 0 {
		return 0, ErrNotBound
	}
	return userID, nil
}

func (h *Handler) requireMembership(connectionID, roomID string) error {
	if h.config.RequireJoin && !h.registry.InRoom(connectionID, roomID) {
		return ErrNotInRoom
	}
	return nil
}

// HandleSend validates, persists and broadcasts a chat message.
// FUNCTIONAL DISCOVERY: The username is resolved before the insert so a
// failed lookup leaves nothing persisted without a matching broadcast
func (h *Handler) HandleSend(ctx context.Context, connectionID, roomID, content string) (*types.NewMessage, error) {
	userID, err := h.sender(connectionID)
	if err != nil {
		return nil, err
	}
	if err := h.requireMembership(connectionID, roomID); err != nil {
		return nil, err
	}

	if err := types.ValidateContent(content, h.config.MaxContentLength); err != nil {
		return nil, err
	}
	if h.sanitizer != nil {
		content = h.sanitizer.Sanitize(content)
		if strings.TrimSpace(content) == "" {
			return nil, types.ErrEmptyContent
		}
	}

	channelID, err := types.ParseRoomKey(roomID)
	if err != nil {
		return nil, err
	}

	username, err := h.store.Username(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve sender %d: %w", userID, err)
	}

	msg, err := h.store.InsertMessage(ctx, channelID, userID, content)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	// The message stays persisted; only the live broadcast is abandoned
	if !h.registry.IsConnected(connectionID) {
		return nil, fmt.Errorf("message %d: %w", msg.ID, ErrSenderGone)
	}

	event := &types.NewMessage{
		ID:        msg.ID,
		Content:   msg.Content,
		Sender:    username,
		ChannelID: roomID,
		CreatedAt: msg.CreatedAt,
	}
	n := h.broadcaster.Broadcast(roomID, types.NewOutbound(types.EventNewMessage, event), "")

	h.logger.Info("message sent",
		slog.Int64("message_id", msg.ID),
		slog.Int64("user_id", userID),
		slog.String("room_id", roomID),
		slog.Int("recipients", n))
	return event, nil
}

// HandleDelete removes a message authored by the connection's user and
// broadcasts the tombstone to the room the message was stored in.
// FUNCTIONAL DISCOVERY: roomID is the client's claim; the stored channel
// decides who receives message_deleted
func (h *Handler) HandleDelete(ctx context.Context, connectionID, roomID string, messageID int64) error {
	userID, err := h.sender(connectionID)
	if err != nil {
		return err
	}

	author, channelID, err := h.store.MessageAuthor(ctx, messageID)
	if err != nil {
		return fmt.Errorf("lookup message %d: %w", messageID, err)
	}
	if author != userID {
		return fmt.Errorf("user %d deleting message %d: %w", userID, messageID, ErrNotAuthor)
	}

	if err := h.store.DeleteMessage(ctx, messageID); err != nil {
		return fmt.Errorf("delete message %d: %w", messageID, err)
	}

	stored := types.RoomKey(channelID)
	if stored != roomID {
		h.logger.Warn("delete named a different room",
			slog.Int64("message_id", messageID),
			slog.String("claimed_room_id", roomID),
			slog.String("room_id", stored))
	}

	h.broadcaster.Broadcast(stored, types.NewOutbound(types.EventMessageDeleted, types.MessageDeleted{
		ID:        messageID,
		ChannelID: stored,
	}), "")

	h.logger.Info("message deleted",
		slog.Int64("message_id", messageID),
		slog.Int64("user_id", userID),
		slog.String("room_id", stored))
	return nil
}

// HandleTyping relays a typing indicator to the rest of the room.
// kind is types.EventTypingStart or types.EventTypingStop.
func (h *Handler) HandleTyping(connectionID, roomID, kind string, payload json.RawMessage) error {
	if _, err := h.sender(connectionID); err != nil {
		return err
	}
	if err := h.requireMembership(connectionID, roomID); err != nil {
		return err
	}

	h.broadcaster.Broadcast(roomID, types.NewOutbound(kind, payload), connectionID)
	return nil
}
