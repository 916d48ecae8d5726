// Package db opens the change-run database and manages its schema.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle shared by the run stores.
type DB struct {
	*sql.DB
}

// pragmas are applied to every connection through the DSN, since
// busy_timeout, synchronous, temp_store and foreign_keys are per connection.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(ON)",
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// NewDB opens (creating if needed) the database at path with the
// connection PRAGMAs applied. It does not migrate; call MigrateUp for that.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return &DB{sqlDB}, nil
}

// OpenMigrated opens path and brings its schema to the latest version.
func OpenMigrated(path string) (*DB, error) {
	database, err := NewDB(path)
	if err != nil {
		return nil, err
	}
	migrationsFS, err := MigrationsFS()
	if err != nil {
		database.Close()
		return nil, err
	}
	if err := database.MigrateUp(migrationsFS); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// Backup writes a consistent copy of the database to path using VACUUM
// INTO. The target must not exist.
func (db *DB) Backup(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("backup target %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create backup dir: %w", err)
	}
	if _, err := db.Exec("VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return nil
}
