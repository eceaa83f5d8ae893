package database

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// requiredColumns lists the columns the realtime core reads or writes
// ARCHITECTURAL DISCOVERY: The schema is owned by the migrations; the core
// only verifies the subset it depends on
var requiredColumns = map[string][]string{
	"users":    {"id", "username", "is_online"},
	"channels": {"id"},
	"messages": {"id", "content", "channel_id", "user_id", "created_at"},
}

// SchemaValidator provides database schema validation functionality
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate verifies every required table and column is queryable.
// TECHNICAL DISCOVERY: A zero-row SELECT works on both SQLite and Postgres,
// so no dialect-specific catalog queries are needed
func (v *SchemaValidator) Validate() error {
	tables := make([]string, 0, len(requiredColumns))
	for table := range requiredColumns {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		columns := requiredColumns[table]
		query := fmt.Sprintf("SELECT %s FROM %s WHERE 1 = 0", strings.Join(columns, ", "), table)
		rows, err := v.db.Query(query)
		if err != nil {
			return fmt.Errorf("table %s is missing or lacks columns %v: %w", table, columns, err)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("failed to close probe for table %s: %w", table, err)
		}
	}
	return nil
}
