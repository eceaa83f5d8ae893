package interfaces

import (
	"context"
	"fmt"
)

// Database is the generic persistence port
// ARCHITECTURAL DISCOVERY: Narrow execute/fetch surface keeps the realtime
// core independent of the relational schema owned by the CRUD services
type Database interface {
	// Execute runs a statement and returns the number of affected rows
	Execute(ctx context.Context, query string, args ...interface{}) (int64, error)

	// FetchOne returns the first row of a query, or ErrNoRows
	FetchOne(ctx context.Context, query string, args ...interface{}) (Row, error)

	// FetchAll returns every row of a query
	FetchAll(ctx context.Context, query string, args ...interface{}) ([]Row, error)

	// HealthCheck verifies connectivity
	HealthCheck(ctx context.Context) error

	// Close releases the underlying pool
	Close() error
}

// Row is a single result row keyed by column name.
type Row map[string]interface{}

// Int64 reads an integer column.
func (r Row) Int64(column string) (int64, error) {
	switch v := r[column].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		var n int64
		if _, err := fmt.Sscan(string(v), &n); err != nil {
			return 0, fmt.Errorf("column %s: %w", column, err)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("column %s: %w", column, ErrNullColumn)
	default:
		return 0, fmt.Errorf("column %s: unexpected type %T", column, v)
	}
}

// String reads a text column. Drivers return text either as string or []byte.
func (r Row) String(column string) (string, error) {
	switch v := r[column].(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("column %s: %w", column, ErrNullColumn)
	default:
		return "", fmt.Errorf("column %s: unexpected type %T", column, v)
	}
}

// Bool reads a boolean column. SQLite stores booleans as integers.
func (r Row) Bool(column string) (bool, error) {
	switch v := r[column].(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("column %s: unexpected type %T", column, v)
	}
}

