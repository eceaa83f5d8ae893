package store

import "errors"

// Store errors
var (
	// ErrPersistence wraps every failed or timed-out persistence call
	ErrPersistence = errors.New("persistence failure")

	// ErrNotFound reports a missing row
	ErrNotFound = errors.New("record not found")
)
