package db

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// ApplySchema applies the embedded schema SQL to the database. All statements
// are idempotent, so this is safe to run on an already-populated index.
func ApplySchema(conn *sql.DB) error {
	if _, err := conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// TableNames returns the names of all tables present in the database. Used to
// recognize incomplete indexes (staging tables left behind by an interrupted
// scan) and indexes created by incompatible versions.
func TableNames(conn *sql.DB) (map[string]bool, error) {
	rows, err := conn.Query("SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}
