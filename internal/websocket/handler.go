package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"teachat/internal/chat"
	"teachat/internal/hub"
	"teachat/internal/metrics"
	"teachat/internal/presence"
	"teachat/internal/session"
	"teachat/pkg/interfaces"
)

// Config holds the gateway's transport settings
type Config struct {
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	BufferSize       int
	MaxMessageSize   int64
	AllowedOrigins   []string
}

// DefaultConfig returns the heartbeat and buffer settings used in production
func DefaultConfig() Config {
	return Config{
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       100,
		MaxMessageSize:   64 * 1024,
	}
}

// Handler is the connection gateway: it authenticates, upgrades, and owns
// the read side of every WebSocket
// ARCHITECTURAL DISCOVERY: The gateway never interprets events; it feeds raw
// frames to the hub and drives connect/disconnect through presence
type Handler struct {
	hub      *hub.Hub
	registry *session.Registry
	presence *presence.Coordinator
	chat     *chat.Handler
	auth     interfaces.Authenticator
	config   Config
	logger   *slog.Logger
	metrics  metrics.Recorder
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[string]*Connection
	closing bool
	active  sync.WaitGroup
}

// NewHandler creates a gateway with dependency injection
func NewHandler(h *hub.Hub, registry *session.Registry, coordinator *presence.Coordinator, chatHandler *chat.Handler,
	auth interfaces.Authenticator, config Config, logger *slog.Logger, recorder metrics.Recorder) *Handler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	g := &Handler{
		hub:      h,
		registry: registry,
		presence: coordinator,
		chat:     chatHandler,
		auth:     auth,
		config:   config,
		logger:   logger,
		metrics:  recorder,
		conns:    make(map[string]*Connection),
	}
	g.upgrader = websocket.Upgrader{
		CheckOrigin:      g.checkOrigin,
		HandshakeTimeout: config.HandshakeTimeout,
	}
	return g
}

// checkOrigin allows every origin unless an allow-list is configured
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket authenticates and upgrades a connection request.
// FUNCTIONAL DISCOVERY: Identity is resolved before the upgrade so a bad
// request gets a plain HTTP error instead of a socket that closes at once
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.hub.IsRunning() || h.isClosing() {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	userID, err := h.auth.Authenticate(r.URL.Query())
	if err != nil {
		h.logger.Warn("connection refused", slog.String("remote", r.RemoteAddr), slog.Any("error", err))
		switch {
		case errors.Is(err, interfaces.ErrInvalidIdentity):
			http.Error(w, "Invalid user_id", http.StatusBadRequest)
		case errors.Is(err, interfaces.ErrUnauthorized):
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		default:
			http.Error(w, "Authentication failed", http.StatusInternalServerError)
		}
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	conn := NewConnection(ws, h.config.BufferSize, h.config.WriteTimeout)
	if err := h.track(conn); err != nil {
		conn.goingAway(h.config.WriteTimeout)
		_ = conn.Close()
		return
	}

	if err := h.connect(conn, userID); err != nil {
		h.logger.Error("connection setup failed", slog.String("connection_id", conn.ID()), slog.Any("error", err))
		h.disconnect(conn)
		return
	}

	go h.serve(conn)
}

// track records a live connection so Shutdown can close it
func (h *Handler) track(conn *Connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closing {
		return ErrGatewayClosed
	}
	h.conns[conn.ID()] = conn
	h.active.Add(1)
	return nil
}

func (h *Handler) untrack(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn.ID()]; ok {
		delete(h.conns, conn.ID())
		h.active.Done()
	}
}

func (h *Handler) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// connect registers the connection and brings its user online.
// TECHNICAL DISCOVERY: The request context ends when the handler returns after
// the hijack, so presence work runs on a background context bounded by the
// store's own timeout
func (h *Handler) connect(conn *Connection, userID int64) error {
	if err := h.registry.Connect(conn); err != nil {
		return err
	}
	h.metrics.ConnectionOpened()

	if userID == 0 {
		h.logger.Info("anonymous connection", slog.String("connection_id", conn.ID()))
		return nil
	}

	if err := h.presence.Connected(context.Background(), conn.ID(), userID); err != nil {
		return err
	}
	h.logger.Info("user connected", slog.String("connection_id", conn.ID()), slog.Int64("user_id", userID))
	return nil
}

// disconnect is the single exit path for every connection
func (h *Handler) disconnect(conn *Connection) {
	if unbinding, ok := h.presence.Disconnected(context.Background(), conn.ID()); ok {
		h.metrics.ConnectionClosed()
		if unbinding.UserID != 0 {
			h.logger.Info("user disconnected",
				slog.String("connection_id", conn.ID()),
				slog.Int64("user_id", unbinding.UserID),
				slog.Int("remaining_connections", unbinding.Remaining))
		}
	}
	h.chat.Forget(conn.ID())
	_ = conn.Close()
	h.untrack(conn)
}

// serve runs the heartbeat and read pump until the connection ends
// ARCHITECTURAL DISCOVERY: Single goroutine per connection handles message
// reading; a companion goroutine only sends pings
func (h *Handler) serve(conn *Connection) {
	defer h.disconnect(conn)

	ws := conn.conn
	ws.SetReadLimit(h.config.MaxMessageSize)

	// TECHNICAL DISCOVERY: Read deadline refreshed by pong detects dead peers
	// that never send a close frame
	if err := ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		h.logger.Warn("failed to set read deadline", slog.Any("error", err))
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	go h.heartbeat(conn)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read ended", slog.String("connection_id", conn.ID()), slog.Any("error", err))
			}
			return
		}

		if messageType != websocket.TextMessage {
			h.logger.Warn("non-text frame dropped", slog.String("connection_id", conn.ID()))
			continue
		}

		// Dispatch logs its own failures; nothing is written back
		_ = h.hub.Dispatch(context.Background(), conn.ID(), data)
	}
}

func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.ping(h.config.WriteTimeout); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// ActiveConnections reports the number of tracked connections
func (h *Handler) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown refuses new connections, closes live ones, and waits for every
// disconnect path to finish or ctx to expire.
// TECHNICAL DISCOVERY: http.Server.Shutdown does not touch hijacked
// connections, so the gateway closes them itself
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.goingAway(h.config.WriteTimeout)
		_ = conn.Close()
	}

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("gateway closed", slog.Int("connections", len(conns)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
