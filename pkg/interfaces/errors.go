package interfaces

import "errors"

// Common port errors used across components
var (
	ErrNoRows          = errors.New("no rows in result set")
	ErrNullColumn      = errors.New("column is null")
	ErrInvalidIdentity = errors.New("invalid identity parameters")
	ErrUnauthorized    = errors.New("unauthorized")
)
