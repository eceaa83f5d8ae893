package session

import (
	"sort"
	"sync"

	"teachat/internal/room"
	"teachat/pkg/interfaces"
)

// entry is the live state of one connection
type entry struct {
	conn   interfaces.Conn
	userID int64               // 0 while anonymous
	rooms  map[string]struct{} // joined room IDs
}

// Registry tracks live connections, their bound users and joined rooms
// ARCHITECTURAL DISCOVERY: The registry is the single source of truth for
// membership; it mirrors room changes into the broadcaster while holding its
// own lock, so the order is always registry -> broadcaster
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*entry              // connectionID -> entry
	users       map[int64]map[string]struct{}  // userID -> connectionIDs
	broadcaster *room.Broadcaster
}

// Binding describes a user's state after Bind
type Binding struct {
	UserID      int64
	Connections int  // live connections bound to the user after the call
	Changed     bool // false when the pair was already bound
}

// Unbinding describes a removed connection
type Unbinding struct {
	UserID    int64 // 0 if the connection was anonymous
	Remaining int   // live connections the user still has
	Rooms     []string
}

// NewRegistry creates an empty registry backed by broadcaster
func NewRegistry(broadcaster *room.Broadcaster) *Registry {
	return &Registry{
		connections: make(map[string]*entry),
		users:       make(map[int64]map[string]struct{}),
		broadcaster: broadcaster,
	}
}

// Connect tracks a freshly accepted, anonymous connection
func (r *Registry) Connect(conn interfaces.Conn) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	r.connections[conn.ID()] = &entry{conn: conn, rooms: make(map[string]struct{})}
	r.broadcaster.Attach(conn)
	return nil
}

// Bind associates a user with a connection.
// FUNCTIONAL DISCOVERY: Idempotent for the same pair; a connection never
// changes owner once bound
func (r *Registry) Bind(connectionID string, userID int64) (Binding, error) {
	if userID <= 0 {
		return Binding{}, ErrInvalidUser
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.connections[connectionID]
	if !exists {
		return Binding{}, ErrConnectionNotFound
	}

	switch e.userID {
	case userID:
		return Binding{UserID: userID, Connections: len(r.users[userID])}, nil
	case 0:
	default:
		return Binding{}, ErrAlreadyBound
	}

	e.userID = userID
	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.users[userID] = conns
	}
	conns[connectionID] = struct{}{}

	return Binding{UserID: userID, Connections: len(conns), Changed: true}, nil
}

// Unbind removes a connection and all of its room memberships.
// Returns false when the connection is unknown, which makes repeated calls safe.
func (r *Registry) Unbind(connectionID string) (Unbinding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.connections[connectionID]
	if !exists {
		return Unbinding{}, false
	}
	delete(r.connections, connectionID)

	rooms := make([]string, 0, len(e.rooms))
	for roomID := range e.rooms {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)

	r.broadcaster.LeaveAll(connectionID, rooms)
	r.broadcaster.Detach(connectionID)

	result := Unbinding{UserID: e.userID, Rooms: rooms}
	if e.userID != 0 {
		conns := r.users[e.userID]
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(r.users, e.userID)
		}
		result.Remaining = len(conns)
	}
	return result, true
}

// JoinRoom adds the connection to a room. Joining twice is a no-op.
func (r *Registry) JoinRoom(connectionID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.connections[connectionID]
	if !exists {
		return ErrConnectionNotFound
	}
	e.rooms[roomID] = struct{}{}
	r.broadcaster.Enter(e.conn, roomID)
	return nil
}

// LeaveRoom removes the connection from a room. Leaving a room that was never
// joined is a no-op.
func (r *Registry) LeaveRoom(connectionID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.connections[connectionID]
	if !exists {
		return ErrConnectionNotFound
	}
	delete(e.rooms, roomID)
	r.broadcaster.Leave(connectionID, roomID)
	return nil
}

// ConnectionsForUser returns the live connection IDs bound to a user
func (r *Registry) ConnectionsForUser(userID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.users[userID]))
	for id := range r.users[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InRoom reports whether the connection has joined a room
func (r *Registry) InRoom(connectionID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.connections[connectionID]
	if !exists {
		return false
	}
	_, joined := e.rooms[roomID]
	return joined
}

// UserFor returns the user bound to a connection (0 if anonymous) and whether
// the connection is live
func (r *Registry) UserFor(connectionID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.connections[connectionID]
	if !exists {
		return 0, false
	}
	return e.userID, true
}

// IsConnected reports whether a connection is live
func (r *Registry) IsConnected(connectionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.connections[connectionID]
	return exists
}

// OnlineUsers returns the users with at least one live connection
func (r *Registry) OnlineUsers() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Stats returns registry statistics for monitoring and debugging
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	anonymous := 0
	for _, e := range r.connections {
		if e.userID == 0 {
			anonymous++
		}
	}

	stats := map[string]int{
		"total_connections":     len(r.connections),
		"anonymous_connections": anonymous,
		"online_users":          len(r.users),
	}
	for k, v := range r.broadcaster.Stats() {
		stats[k] = v
	}
	return stats
}
