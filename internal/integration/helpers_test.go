package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"teachat/internal/app"
	"teachat/internal/config"
	"teachat/internal/logger"
	pkgdatabase "teachat/pkg/database"
	"teachat/pkg/types"
)

// testServer is a running application over a private SQLite file
type testServer struct {
	app    *app.Application
	config *config.Config
	db     *sql.DB
	users  map[string]int64

	stopOnce sync.Once
	served   chan error
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "teachat.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.HTTP.ShutdownTimeout = 5 * time.Second
	return cfg
}

// startServer builds the application, seeds users, and serves until cleanup
func startServer(t *testing.T, cfg *config.Config, seed func(db *sql.DB)) *testServer {
	t.Helper()

	application, err := app.NewApplication(cfg, logger.Discard())
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}

	db, err := pkgdatabase.Open(app.DatabaseConfig(cfg))
	if err != nil {
		t.Fatalf("Failed to open seed connection: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := &testServer{app: application, config: cfg, db: db, users: make(map[string]int64), served: make(chan error, 1)}
	for _, name := range []string{"alice", "bob", "carol"} {
		s.users[name] = s.insertUser(t, name)
	}
	if seed != nil {
		seed(db)
	}

	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}

	go func() { s.served <- application.Serve() }()

	t.Cleanup(func() { s.stop(t) })
	return s
}

func (s *testServer) insertUser(t *testing.T, name string) int64 {
	t.Helper()
	var id int64
	err := s.db.QueryRow(
		"INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?) RETURNING id",
		name, name+"@example.com", "x").Scan(&id)
	if err != nil {
		t.Fatalf("Failed to seed user %s: %v", name, err)
	}
	return id
}

// stop shuts the application down once and waits for Serve to return
func (s *testServer) stop(t *testing.T) {
	t.Helper()
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.Stop(ctx); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if err := <-s.served; err != nil {
			t.Errorf("Serve returned %v", err)
		}
	})
}

func (s *testServer) url(path string) string {
	return "http://" + s.app.Addr() + path
}

func (s *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+s.app.Addr()+"/ws?"+query, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("Dial failed (HTTP %d): %v", status, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *testServer) isOnline(t *testing.T, userID int64) bool {
	t.Helper()
	var online bool
	if err := s.db.QueryRow("SELECT is_online FROM users WHERE id = ?", userID).Scan(&online); err != nil {
		t.Fatalf("Failed to read presence: %v", err)
	}
	return online
}

func (s *testServer) messageCount(t *testing.T) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		t.Fatalf("Failed to count messages: %v", err)
	}
	return n
}

func (s *testServer) getJSON(t *testing.T, path string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(s.url(path))
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode %s: %v", path, err)
	}
	return resp.StatusCode
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(types.Envelope{Event: event, Data: raw}); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

func expect(t *testing.T, conn *websocket.Conn, event string, v interface{}) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var env types.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("Expected %s, read failed: %v", event, err)
	}
	if env.Event != event {
		t.Fatalf("Expected %s, got %s: %s", event, env.Event, env.Data)
	}
	if v != nil {
		if err := json.Unmarshal(env.Data, v); err != nil {
			t.Fatalf("Failed to decode %s: %v", event, err)
		}
	}
}

func expectStatus(t *testing.T, conn *websocket.Conn, userID int64, online bool) {
	t.Helper()
	var status types.StatusUpdate
	expect(t, conn, types.EventStatusUpdate, &status)
	if status.UserID != userID || status.IsOnline != online {
		t.Fatalf("Expected status %d/%v, got %+v", userID, online, status)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
