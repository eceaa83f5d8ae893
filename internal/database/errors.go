package database

import "errors"

// Database manager errors
var (
	ErrManagerClosed = errors.New("database manager is closed")
)
