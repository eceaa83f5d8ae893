package interfaces

import (
	"context"

	"teachat/pkg/types"
)

// ChatStore is the typed view of the persistence port used by the realtime
// core. Every call is bounded by the store's timeout; a timeout surfaces as
// a persistence error.
type ChatStore interface {
	InsertMessage(ctx context.Context, channelID, userID int64, content string) (*types.Message, error)

	// MessageAuthor returns the author and stored channel of a message
	MessageAuthor(ctx context.Context, messageID int64) (userID, channelID int64, err error)
	DeleteMessage(ctx context.Context, messageID int64) error
	Username(ctx context.Context, userID int64) (string, error)
	SetUserOnline(ctx context.Context, userID int64, online bool) error

	// ResetPresence marks every user offline; used once at startup
	ResetPresence(ctx context.Context) (int64, error)

	// ListUsers returns the sidebar projection of all users
	ListUsers(ctx context.Context) ([]*types.User, error)
}
