// Package db opens and migrates tarmount's SQLite index databases.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open ensures the parent directory exists, opens the SQLite index database
// at path, applies the performance pragmas and creates the schema if it does
// not exist. Pass ":memory:" for a throwaway in-memory index.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The index is written by exactly one process and is disposable: it can
	// always be rebuilt from the archive, so durability guarantees are
	// traded away for insert speed.
	if _, err := conn.Exec(`
		PRAGMA locking_mode = EXCLUSIVE;
		PRAGMA temp_store = MEMORY;
		PRAGMA journal_mode = OFF;
		PRAGMA synchronous = OFF;
	`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := ApplySchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
