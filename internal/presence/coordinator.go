package presence

import (
	"context"
	"log/slog"
	"sync"

	"teachat/internal/metrics"
	"teachat/internal/room"
	"teachat/internal/session"
	"teachat/pkg/types"
)

// Store is the slice of the chat store presence needs
type Store interface {
	SetUserOnline(ctx context.Context, userID int64, online bool) error
	ResetPresence(ctx context.Context) (int64, error)
}

// userLock serializes reconciliation for one user
type userLock struct {
	mu   sync.Mutex
	refs int
}

// Coordinator keeps persisted is_online flags in step with live connections
// ARCHITECTURAL DISCOVERY: Transitions are derived from the registry's live
// connection count under a per-user lock instead of from individual
// connect/disconnect events, so interleaved flickers collapse into the final
// state and a failed write is retried by the next transition
type Coordinator struct {
	registry    *session.Registry
	broadcaster *room.Broadcaster
	store       Store
	logger      *slog.Logger
	metrics     metrics.Recorder

	mu        sync.Mutex
	locks     map[int64]*userLock
	persisted map[int64]bool // users last successfully persisted online
}

// NewCoordinator creates a presence coordinator
func NewCoordinator(registry *session.Registry, broadcaster *room.Broadcaster, store Store, logger *slog.Logger, recorder metrics.Recorder) *Coordinator {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Coordinator{
		registry:    registry,
		broadcaster: broadcaster,
		store:       store,
		logger:      logger,
		metrics:     recorder,
		locks:       make(map[int64]*userLock),
		persisted:   make(map[int64]bool),
	}
}

// Connected binds an authenticated connection and brings the user online if
// this is their first live connection
func (c *Coordinator) Connected(ctx context.Context, connectionID string, userID int64) error {
	binding, err := c.registry.Bind(connectionID, userID)
	if err != nil {
		return err
	}
	if binding.Changed {
		c.reconcile(ctx, userID)
	}
	return nil
}

// Disconnected removes a connection and takes its user offline if it was the
// last one. Returns false for unknown connections.
func (c *Coordinator) Disconnected(ctx context.Context, connectionID string) (session.Unbinding, bool) {
	unbinding, ok := c.registry.Unbind(connectionID)
	if !ok {
		return unbinding, false
	}
	if unbinding.UserID != 0 {
		c.reconcile(ctx, unbinding.UserID)
	}
	return unbinding, true
}

// reconcile persists and announces a user's presence if the live state
// differs from what was last persisted
func (c *Coordinator) reconcile(ctx context.Context, userID int64) {
	lock := c.acquire(userID)
	defer c.release(userID, lock)

	live := len(c.registry.ConnectionsForUser(userID)) > 0

	c.mu.Lock()
	persisted := c.persisted[userID]
	c.mu.Unlock()

	if live == persisted {
		return
	}

	if err := c.store.SetUserOnline(ctx, userID, live); err != nil {
		// FUNCTIONAL DISCOVERY: No broadcast for an unpersisted transition; the
		// registry change stands and the next transition retries the write
		c.logger.Warn("presence update not persisted",
			slog.Int64("user_id", userID),
			slog.Bool("is_online", live),
			slog.Any("error", err))
		return
	}

	c.mu.Lock()
	if live {
		c.persisted[userID] = true
	} else {
		delete(c.persisted, userID)
	}
	c.metrics.SetOnlineUsers(len(c.persisted))
	c.mu.Unlock()

	c.broadcaster.BroadcastAll(types.NewOutbound(types.EventStatusUpdate, types.StatusUpdate{
		UserID:   userID,
		IsOnline: live,
	}), "")

	c.logger.Info("presence changed", slog.Int64("user_id", userID), slog.Bool("is_online", live))
}

func (c *Coordinator) acquire(userID int64) *userLock {
	c.mu.Lock()
	lock, exists := c.locks[userID]
	if !exists {
		lock = &userLock{}
		c.locks[userID] = lock
	}
	lock.refs++
	c.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (c *Coordinator) release(userID int64, lock *userLock) {
	lock.mu.Unlock()

	c.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(c.locks, userID)
	}
	c.mu.Unlock()
}

// ResetAll clears every persisted online flag; live connections never
// survive a restart
func (c *Coordinator) ResetAll(ctx context.Context) error {
	cleared, err := c.store.ResetPresence(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.persisted = make(map[int64]bool)
	c.metrics.SetOnlineUsers(0)
	c.mu.Unlock()

	c.logger.Info("presence reset", slog.Int64("cleared", cleared))
	return nil
}

// Online returns the users that currently hold at least one live connection
func (c *Coordinator) Online() []int64 {
	return c.registry.OnlineUsers()
}
