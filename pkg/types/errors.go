package types

import "errors"

// ARCHITECTURAL DISCOVERY: Validation errors are dropped and logged by the
// dispatcher; none of them is ever written back to the client
var (
	ErrMalformedPayload = errors.New("malformed event payload")
	ErrUnknownEvent     = errors.New("unknown event")
	ErrInvalidRoomID    = errors.New("channel_id must be a positive integer")
	ErrInvalidMessageID = errors.New("message_id must be a positive integer")
	ErrInvalidUserID    = errors.New("user_id must be a positive integer")
	ErrEmptyContent     = errors.New("message content cannot be empty")
	ErrContentTooLong   = errors.New("message content exceeds length limit")
)
