package room

import (
	"encoding/json"
	"log/slog"
	"sync"

	"teachat/internal/metrics"
	"teachat/pkg/interfaces"
	"teachat/pkg/types"
)

// Broadcaster owns the room -> connection index and the global connection set
// ARCHITECTURAL DISCOVERY: Pure fan-out without business logic; the session
// registry decides who belongs where and calls in under its own lock
type Broadcaster struct {
	mu      sync.RWMutex                          // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy broadcast snapshots
	global  map[string]interfaces.Conn            // connectionID -> Conn, presence is global
	rooms   map[string]map[string]interfaces.Conn // roomID -> connectionID -> Conn
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster(logger *slog.Logger, recorder metrics.Recorder) *Broadcaster {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Broadcaster{
		global:  make(map[string]interfaces.Conn),
		rooms:   make(map[string]map[string]interfaces.Conn),
		logger:  logger,
		metrics: recorder,
	}
}

// Attach adds a connection to the global set
func (b *Broadcaster) Attach(conn interfaces.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global[conn.ID()] = conn
}

// Detach removes a connection from the global set and every room
func (b *Broadcaster) Detach(connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.global, connectionID)
	for roomID, members := range b.rooms {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(b.rooms, roomID)
		}
	}
}

// Enter adds a connection to a room, creating the room lazily
func (b *Broadcaster) Enter(conn interfaces.Conn, roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, exists := b.rooms[roomID]
	if !exists {
		members = make(map[string]interfaces.Conn)
		b.rooms[roomID] = members
	}
	members[conn.ID()] = conn
}

// Leave removes a connection from one room.
// TECHNICAL DISCOVERY: Empty rooms are deleted to prevent unbounded growth
func (b *Broadcaster) Leave(connectionID, roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(connectionID, roomID)
}

// LeaveAll removes a connection from the given rooms
func (b *Broadcaster) LeaveAll(connectionID string, roomIDs []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, roomID := range roomIDs {
		b.leaveLocked(connectionID, roomID)
	}
}

func (b *Broadcaster) leaveLocked(connectionID, roomID string) {
	members, exists := b.rooms[roomID]
	if !exists {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(b.rooms, roomID)
	}
}

// Broadcast sends an event to every connection in a room except exclude.
// An empty exclude means no exclusion. Returns the number of recipients the
// frame was queued for.
func (b *Broadcaster) Broadcast(roomID string, event *types.Outbound, exclude string) int {
	b.mu.RLock()
	recipients := snapshot(b.rooms[roomID], exclude)
	b.mu.RUnlock()

	return b.deliver(recipients, event)
}

// BroadcastAll sends an event to every live connection except exclude
func (b *Broadcaster) BroadcastAll(event *types.Outbound, exclude string) int {
	b.mu.RLock()
	recipients := snapshot(b.global, exclude)
	b.mu.RUnlock()

	return b.deliver(recipients, event)
}

func snapshot(members map[string]interfaces.Conn, exclude string) []interfaces.Conn {
	recipients := make([]interfaces.Conn, 0, len(members))
	for id, conn := range members {
		if id == exclude {
			continue
		}
		recipients = append(recipients, conn)
	}
	return recipients
}

// deliver encodes once and queues the frame outside the lock.
// FUNCTIONAL DISCOVERY: Continue delivery to other recipients even if one fails;
// the failed connection is closed so the normal disconnect path cleans it up
func (b *Broadcaster) deliver(recipients []interfaces.Conn, event *types.Outbound) int {
	if len(recipients) == 0 {
		return 0
	}

	frame, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to encode broadcast", slog.String("event", event.Event), slog.Any("error", err))
		return 0
	}

	delivered := 0
	for _, conn := range recipients {
		if err := conn.Send(frame); err != nil {
			b.logger.Warn("broadcast delivery failed",
				slog.String("event", event.Event),
				slog.String("connection_id", conn.ID()),
				slog.Any("error", err))
			b.metrics.BroadcastFailed()
			go func(c interfaces.Conn) {
				_ = c.Close()
			}(conn)
			continue
		}
		delivered++
	}

	b.metrics.BroadcastDelivered(delivered)
	return delivered
}

// Stats returns broadcaster statistics for monitoring
func (b *Broadcaster) Stats() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]int{
		"attached_connections": len(b.global),
		"active_rooms":         len(b.rooms),
	}
}

