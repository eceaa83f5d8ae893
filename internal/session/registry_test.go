package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"teachat/internal/room"
	"teachat/pkg/types"
)

type mockConn struct {
	id     string
	mu     sync.Mutex
	frames int
}

func (c *mockConn) ID() string { return c.id }
func (c *mockConn) Send(data []byte) error {
	c.mu.Lock()
	c.frames++
	c.mu.Unlock()
	return nil
}
func (c *mockConn) Close() error { return nil }

func (c *mockConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func newTestRegistry() (*Registry, *room.Broadcaster) {
	b := room.NewBroadcaster(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	return NewRegistry(b), b
}

func connect(t *testing.T, r *Registry, id string) *mockConn {
	t.Helper()
	conn := &mockConn{id: id}
	if err := r.Connect(conn); err != nil {
		t.Fatalf("Connect(%s) failed: %v", id, err)
	}
	return conn
}

// Functional Validation Tests

func TestRegistry_ConnectIsAnonymous(t *testing.T) {
	r, _ := newTestRegistry()
	connect(t, r, "c1")

	user, live := r.UserFor("c1")
	if !live || user != 0 {
		t.Errorf("Expected live anonymous connection, got user=%d live=%v", user, live)
	}
	if err := r.Connect(&mockConn{id: "c1"}); !errors.Is(err, ErrDuplicateConnection) {
		t.Errorf("Expected ErrDuplicateConnection, got %v", err)
	}
	if err := r.Connect(nil); !errors.Is(err, ErrNilConnection) {
		t.Errorf("Expected ErrNilConnection, got %v", err)
	}
}

func TestRegistry_BindRules(t *testing.T) {
	r, _ := newTestRegistry()
	connect(t, r, "c1")
	connect(t, r, "c2")

	b, err := r.Bind("c1", 7)
	if err != nil || !b.Changed || b.Connections != 1 {
		t.Fatalf("First bind = %+v, %v", b, err)
	}

	// Same pair is idempotent
	b, err = r.Bind("c1", 7)
	if err != nil || b.Changed || b.Connections != 1 {
		t.Errorf("Repeat bind = %+v, %v", b, err)
	}

	// One connection maps to at most one user
	if _, err := r.Bind("c1", 8); !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("Expected ErrAlreadyBound, got %v", err)
	}

	// A user may hold several connections
	b, err = r.Bind("c2", 7)
	if err != nil || b.Connections != 2 {
		t.Errorf("Second connection bind = %+v, %v", b, err)
	}
	if got := r.ConnectionsForUser(7); len(got) != 2 || got[0] != "c1" || got[1] != "c2" {
		t.Errorf("ConnectionsForUser(7) = %v", got)
	}

	if _, err := r.Bind("missing", 7); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("Expected ErrConnectionNotFound, got %v", err)
	}
	if _, err := r.Bind("c2", 0); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("Expected ErrInvalidUser, got %v", err)
	}
}

func TestRegistry_UnbindReportsRemaining(t *testing.T) {
	r, _ := newTestRegistry()
	connect(t, r, "c1")
	connect(t, r, "c2")
	r.Bind("c1", 7)
	r.Bind("c2", 7)

	u, ok := r.Unbind("c1")
	if !ok || u.UserID != 7 || u.Remaining != 1 {
		t.Errorf("Unbind(c1) = %+v, %v", u, ok)
	}
	u, ok = r.Unbind("c2")
	if !ok || u.UserID != 7 || u.Remaining != 0 {
		t.Errorf("Unbind(c2) = %+v, %v", u, ok)
	}

	// Second unbind reports unknown
	if _, ok := r.Unbind("c2"); ok {
		t.Error("Repeated Unbind should report unknown connection")
	}
	if len(r.OnlineUsers()) != 0 {
		t.Errorf("Expected no online users, got %v", r.OnlineUsers())
	}
}

func TestRegistry_UnbindAnonymous(t *testing.T) {
	r, _ := newTestRegistry()
	connect(t, r, "anon")

	u, ok := r.Unbind("anon")
	if !ok || u.UserID != 0 || u.Remaining != 0 {
		t.Errorf("Unbind(anon) = %+v, %v", u, ok)
	}
}

func TestRegistry_RoomMembershipMirrorsBroadcaster(t *testing.T) {
	r, b := newTestRegistry()
	a := connect(t, r, "a")
	c := connect(t, r, "c")

	if err := r.JoinRoom("a", "5"); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	r.JoinRoom("a", "5") // idempotent
	r.JoinRoom("c", "5")
	r.JoinRoom("c", "6")

	if !r.InRoom("a", "5") || r.InRoom("a", "6") {
		t.Error("InRoom does not reflect joins")
	}

	b.Broadcast("5", types.NewOutbound(types.EventTypingStart, nil), "a")
	if a.received() != 0 || c.received() != 1 {
		t.Errorf("Expected only c to receive, got a=%d c=%d", a.received(), c.received())
	}

	if err := r.LeaveRoom("c", "5"); err != nil {
		t.Fatalf("LeaveRoom failed: %v", err)
	}
	b.Broadcast("5", types.NewOutbound(types.EventTypingStart, nil), "")
	if c.received() != 1 {
		t.Error("Connection should not receive after leaving the room")
	}

	if err := r.JoinRoom("c", "5"); err != nil {
		t.Fatalf("Rejoin failed: %v", err)
	}
	b.Broadcast("5", types.NewOutbound(types.EventTypingStart, nil), "")
	if c.received() != 2 {
		t.Errorf("Connection should receive again after rejoining, got %d", c.received())
	}
	r.LeaveRoom("c", "5")

	u, _ := r.Unbind("c")
	if len(u.Rooms) != 1 || u.Rooms[0] != "6" {
		t.Errorf("Expected Unbind to report room 6, got %v", u.Rooms)
	}
	if stats := b.Stats(); stats["active_rooms"] != 1 {
		t.Errorf("Expected only room 5 left, got %v", stats)
	}

	if err := r.JoinRoom("gone", "5"); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("Expected ErrConnectionNotFound, got %v", err)
	}
	if err := r.LeaveRoom("gone", "5"); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("Expected ErrConnectionNotFound, got %v", err)
	}
}

func TestRegistry_Stats(t *testing.T) {
	r, _ := newTestRegistry()
	connect(t, r, "a")
	connect(t, r, "b")
	r.Bind("a", 1)
	r.JoinRoom("a", "5")

	stats := r.Stats()
	if stats["total_connections"] != 2 || stats["anonymous_connections"] != 1 || stats["online_users"] != 1 || stats["active_rooms"] != 1 {
		t.Errorf("Unexpected stats %v", stats)
	}
	if !r.IsConnected("a") || r.IsConnected("zzz") {
		t.Error("IsConnected mismatch")
	}
}

// Architectural Validation Tests

func TestRegistry_ConcurrentConnectBindUnbind(t *testing.T) {
	r, b := newTestRegistry()

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", i)
			conn := &mockConn{id: id}
			if err := r.Connect(conn); err != nil {
				t.Errorf("Connect failed: %v", err)
				return
			}
			r.Bind(id, int64(i%5+1))
			r.JoinRoom(id, "5")
			b.Broadcast("5", types.NewOutbound(types.EventTypingStart, nil), id)
			r.Unbind(id)
		}(i)
	}
	wg.Wait()

	stats := r.Stats()
	if stats["total_connections"] != 0 || stats["online_users"] != 0 || stats["active_rooms"] != 0 {
		t.Errorf("Expected empty registry, got %v", stats)
	}
}
