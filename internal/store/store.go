package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"teachat/internal/metrics"
	"teachat/pkg/interfaces"
	"teachat/pkg/types"
)

// Store is the typed chat view of the generic persistence port
// ARCHITECTURAL DISCOVERY: Every call gets its own deadline so a slow
// database cannot hold a connection's event loop indefinitely
type Store struct {
	db      interfaces.Database
	timeout time.Duration
	metrics metrics.Recorder
	names   singleflight.Group // collapses concurrent username lookups
	now     func() time.Time
}

// New creates a store bounded by timeout per call
func New(db interfaces.Database, timeout time.Duration, recorder metrics.Recorder) *Store {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Store{
		db:      db,
		timeout: timeout,
		metrics: recorder,
		now:     time.Now,
	}
}

var _ interfaces.ChatStore = (*Store)(nil)

// fail wraps err as a persistence failure and counts it
func (s *Store) fail(op string, err error) error {
	s.metrics.PersistenceFailed(op)
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// InsertMessage persists a message and returns it with its assigned id.
// FUNCTIONAL DISCOVERY: created_at is stamped here in UTC so both drivers
// report the same instant the broadcast carries
func (s *Store) InsertMessage(ctx context.Context, channelID, userID int64, content string) (*types.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	createdAt := s.now().UTC()
	row, err := s.db.FetchOne(ctx,
		"INSERT INTO messages (content, channel_id, user_id, created_at) VALUES (?, ?, ?, ?) RETURNING id",
		content, channelID, userID, createdAt)
	if err != nil {
		return nil, s.fail("insert_message", err)
	}

	id, err := row.Int64("id")
	if err != nil {
		return nil, s.fail("insert_message", err)
	}

	return &types.Message{
		ID:        id,
		Content:   content,
		ChannelID: channelID,
		UserID:    userID,
		CreatedAt: createdAt,
	}, nil
}

// MessageAuthor returns the author and the channel a message was posted to
func (s *Store) MessageAuthor(ctx context.Context, messageID int64) (int64, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row, err := s.db.FetchOne(ctx, "SELECT user_id, channel_id FROM messages WHERE id = ?", messageID)
	if errors.Is(err, interfaces.ErrNoRows) {
		return 0, 0, fmt.Errorf("message %d: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return 0, 0, s.fail("message_author", err)
	}

	author, err := row.Int64("user_id")
	if err != nil {
		return 0, 0, s.fail("message_author", err)
	}
	channelID, err := row.Int64("channel_id")
	if err != nil {
		return 0, 0, s.fail("message_author", err)
	}
	return author, channelID, nil
}

// DeleteMessage hard-deletes a message
func (s *Store) DeleteMessage(ctx context.Context, messageID int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	affected, err := s.db.Execute(ctx, "DELETE FROM messages WHERE id = ?", messageID)
	if err != nil {
		return s.fail("delete_message", err)
	}
	if affected == 0 {
		return fmt.Errorf("message %d: %w", messageID, ErrNotFound)
	}
	return nil
}

// Username resolves a user's display name
func (s *Store) Username(ctx context.Context, userID int64) (string, error) {
	// TECHNICAL DISCOVERY: The lookup is shared by every waiting caller, so it
	// must not end when the caller that started it is cancelled
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.names.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(shared, s.timeout)
		defer cancel()

		row, err := s.db.FetchOne(ctx, "SELECT username FROM users WHERE id = ?", userID)
		if errors.Is(err, interfaces.ErrNoRows) {
			return "", fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		if err != nil {
			return "", s.fail("username", err)
		}
		return row.String("username")
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// SetUserOnline persists a user's presence flag
func (s *Store) SetUserOnline(ctx context.Context, userID int64, online bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	affected, err := s.db.Execute(ctx, "UPDATE users SET is_online = ? WHERE id = ?", online, userID)
	if err != nil {
		return s.fail("set_user_online", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return nil
}

// ResetPresence marks every user offline
func (s *Store) ResetPresence(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	affected, err := s.db.Execute(ctx, "UPDATE users SET is_online = ? WHERE is_online = ?", false, true)
	if err != nil {
		return 0, s.fail("reset_presence", err)
	}
	return affected, nil
}

// ListUsers returns every user ordered by username
func (s *Store) ListUsers(ctx context.Context) ([]*types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.FetchAll(ctx, "SELECT id, username, is_online FROM users ORDER BY username")
	if err != nil {
		return nil, s.fail("list_users", err)
	}

	users := make([]*types.User, 0, len(rows))
	for _, row := range rows {
		id, err := row.Int64("id")
		if err != nil {
			return nil, s.fail("list_users", err)
		}
		name, err := row.String("username")
		if err != nil {
			return nil, s.fail("list_users", err)
		}
		online, err := row.Bool("is_online")
		if err != nil {
			return nil, s.fail("list_users", err)
		}
		users = append(users, &types.User{ID: id, Username: name, IsOnline: online})
	}
	return users, nil
}
