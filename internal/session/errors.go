package session

import "errors"

// Session registry error types
var (
	ErrNilConnection       = errors.New("connection cannot be nil")
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrAlreadyBound        = errors.New("connection already bound to a different user")
	ErrInvalidUser         = errors.New("user id must be positive")
)
