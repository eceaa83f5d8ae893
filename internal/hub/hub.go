package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"teachat/internal/chat"
	"teachat/internal/metrics"
	"teachat/internal/session"
	"teachat/internal/store"
	"teachat/pkg/types"
)

// Hub decodes inbound frames and dispatches them to the chat handler
// ARCHITECTURAL DISCOVERY: Events are handled on the reading connection's
// goroutine, which keeps per-connection ordering without a central queue;
// the hub only tracks lifecycle and in-flight work for graceful shutdown
type Hub struct {
	handler *chat.Handler
	logger  *slog.Logger
	metrics metrics.Recorder

	// TECHNICAL DISCOVERY: RWMutex allows concurrent reads of running state
	running  bool
	mu       sync.RWMutex
	inflight sync.WaitGroup
}

// NewHub creates a new hub
func NewHub(handler *chat.Handler, logger *slog.Logger, recorder metrics.Recorder) *Hub {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Hub{
		handler: handler,
		logger:  logger,
		metrics: recorder,
	}
}

// Start begins accepting events
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.logger.Info("message hub started")
	return nil
}

// Stop refuses new events and waits for in-flight events to finish or ctx
// to expire
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("message hub stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight events: %w", ctx.Err())
	}
}

// IsRunning reports whether the hub accepts events
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Dispatch handles one inbound frame. Errors are logged here and returned
// for callers that care; they are never written back to the connection.
func (h *Hub) Dispatch(ctx context.Context, connectionID string, frame []byte) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.inflight.Add(1)
	h.mu.RUnlock()
	defer h.inflight.Done()

	var env types.Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		err = fmt.Errorf("%w: invalid envelope", types.ErrMalformedPayload)
		h.report(connectionID, "", err)
		return err
	}
	h.metrics.EventReceived(env.Event)

	if err := h.handler.Allow(connectionID); err != nil {
		h.report(connectionID, env.Event, err)
		return err
	}

	err := h.route(ctx, connectionID, env)
	h.report(connectionID, env.Event, err)
	return err
}

// route decodes the payload and calls the matching handler
func (h *Hub) route(ctx context.Context, connectionID string, env types.Envelope) error {
	switch env.Event {
	case types.EventJoinChannel, types.EventLeaveChannel:
		var p types.JoinChannelPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		roomID, err := types.NormalizeRoomID(p.ChannelID)
		if err != nil {
			return err
		}
		if env.Event == types.EventJoinChannel {
			return h.handler.HandleJoin(connectionID, roomID)
		}
		return h.handler.HandleLeave(connectionID, roomID)

	case types.EventSendMessage:
		var p types.SendMessagePayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		roomID, err := types.NormalizeRoomID(p.ChannelID)
		if err != nil {
			return err
		}
		_, err = h.handler.HandleSend(ctx, connectionID, roomID, p.Content)
		return err

	case types.EventTypingStart, types.EventTypingStop:
		var p types.TypingPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		roomID, err := types.NormalizeRoomID(p.ChannelID)
		if err != nil {
			return err
		}
		return h.handler.HandleTyping(connectionID, roomID, env.Event, env.Data)

	case types.EventDeleteMessage:
		var p types.DeleteMessagePayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		messageID, err := types.ParseMessageID(p.MessageID)
		if err != nil {
			return err
		}
		roomID, err := types.NormalizeRoomID(p.ChannelID)
		if err != nil {
			return err
		}
		return h.handler.HandleDelete(ctx, connectionID, roomID, messageID)

	default:
		return fmt.Errorf("%w: %q", types.ErrUnknownEvent, env.Event)
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", types.ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", types.ErrMalformedPayload, err)
	}
	return nil
}

// report logs a dispatch outcome at a level matching its error class
func (h *Hub) report(connectionID, event string, err error) {
	if err == nil {
		return
	}

	attrs := []any{
		slog.String("connection_id", connectionID),
		slog.String("event", event),
		slog.Any("error", err),
	}

	reason := classify(err)
	h.metrics.EventDropped(reason)

	switch reason {
	case "invalid", "rate_limited":
		h.logger.Warn("event dropped", attrs...)
	case "unauthorized", "sender_gone":
		h.logger.Info("event ignored", attrs...)
	default:
		h.logger.Error("event failed", attrs...)
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, chat.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, types.ErrMalformedPayload),
		errors.Is(err, types.ErrUnknownEvent),
		errors.Is(err, types.ErrInvalidRoomID),
		errors.Is(err, types.ErrInvalidMessageID),
		errors.Is(err, types.ErrEmptyContent),
		errors.Is(err, types.ErrContentTooLong):
		return "invalid"
	case errors.Is(err, chat.ErrNotBound),
		errors.Is(err, chat.ErrNotInRoom),
		errors.Is(err, chat.ErrNotAuthor),
		errors.Is(err, chat.ErrNotConnected),
		errors.Is(err, session.ErrConnectionNotFound),
		errors.Is(err, store.ErrNotFound):
		return "unauthorized"
	case errors.Is(err, chat.ErrSenderGone):
		return "sender_gone"
	case errors.Is(err, store.ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}
