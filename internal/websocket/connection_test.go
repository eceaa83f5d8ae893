package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"teachat/pkg/interfaces"
)

// Test WebSocket upgrader for creating test connections
var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Architectural Validation Tests
func TestConnection_InterfaceCompliance(t *testing.T) {
	var _ interfaces.Conn = &Connection{}
}

// Functional Validation Tests
func TestConnection_NewConnectionInitialization(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, 100, time.Second)
	defer conn.Close()

	if conn.ID() == "" {
		t.Error("Connection should have an id")
	}
	if cap(conn.writeCh) != 100 {
		t.Errorf("Expected write channel buffer of 100, got %d", cap(conn.writeCh))
	}

	other := NewConnection(wsConn, 1, time.Second)
	defer other.cancel()
	if other.ID() == conn.ID() {
		t.Error("Connection ids should be unique")
	}
}

func TestConnection_SendPreservesOrder(t *testing.T) {
	wsConn, received := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, 100, time.Second)
	defer conn.Close()

	const n = 50
	for i := 0; i < n; i++ {
		if err := conn.Send([]byte(fmt.Sprintf("frame-%d", i))); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		select {
		case got := <-received:
			if want := fmt.Sprintf("frame-%d", i); got != want {
				t.Fatalf("Frame %d: expected %s, got %s", i, want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for frame %d", i)
		}
	}
}

func TestConnection_SendNeverBlocks(t *testing.T) {
	// No writer goroutine, so the queue only fills
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := &Connection{id: "stalled", writeCh: make(chan []byte, 2), ctx: ctx, cancel: cancel}

	for i := 0; i < 2; i++ {
		if err := conn.Send([]byte("x")); err != nil {
			t.Fatalf("Send %d should fit the buffer: %v", i, err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- conn.Send([]byte("overflow")) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSendBufferFull) {
			t.Errorf("Expected ErrSendBufferFull, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full buffer")
	}
}

func TestConnection_SendAfterClose(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, 10, time.Second)
	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Second Close should return the first result, got %v", err)
	}

	select {
	case <-conn.Done():
	default:
		t.Error("Done should be closed after Close")
	}

	if err := conn.Send([]byte("late")); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
}

func TestConnection_ConcurrentSendAndClose(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)
	conn := NewConnection(wsConn, 10, time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			_ = conn.Send([]byte("spam"))
		}
	}()

	_ = conn.Close()
	<-done
}

// createTestWebSocketConnection dials a server that forwards every frame it
// reads to the returned channel
func createTestWebSocketConnection(t *testing.T) (*websocket.Conn, <-chan string) {
	t.Helper()
	received := make(chan string, 256)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
		}
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to create test WebSocket connection: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn, received
}
