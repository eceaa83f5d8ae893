package chat

import "errors"

// Message event handler errors. Authorization failures are silent no-ops on
// the wire and only logged.
var (
	ErrNotBound     = errors.New("connection has no bound user")
	ErrNotInRoom    = errors.New("connection has not joined the room")
	ErrNotAuthor    = errors.New("only the author may delete a message")
	ErrSenderGone   = errors.New("sender disconnected before broadcast")
	ErrRateLimited  = errors.New("inbound event rate exceeded")
	ErrNotConnected = errors.New("connection is not live")
)
