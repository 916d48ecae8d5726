package db

import (
	"path/filepath"
	"testing"
)

// TestPragmasApplied verifies that essential PRAGMAs are set on all databases
func TestPragmasApplied(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "test_pragmas.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}

	for _, tc := range []struct {
		pragma string
		want   int
	}{
		{"busy_timeout", 5000},
		{"synchronous", 1}, // NORMAL
		{"temp_store", 2},  // MEMORY
		{"foreign_keys", 1},
	} {
		var got int
		if err := db.QueryRow("PRAGMA " + tc.pragma).Scan(&got); err != nil {
			t.Fatalf("Failed to query %s: %v", tc.pragma, err)
		}
		if got != tc.want {
			t.Errorf("Expected %s=%d, got %d", tc.pragma, tc.want, got)
		}
	}
}

// TestPragmasAppliedToEveryConnection checks a second pooled connection
// also enforces foreign keys.
func TestPragmasAppliedToEveryConnection(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "test_pool.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	// Holding one connection forces the next query onto another.
	held, err := db.Conn(t.Context())
	if err != nil {
		t.Fatalf("Failed to take a connection: %v", err)
	}
	defer held.Close()

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("Failed to query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("Expected foreign_keys=1 on a second connection, got %d", fk)
	}
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenMigrated(filepath.Join(dir, "runs.db"))
	if err != nil {
		t.Fatalf("OpenMigrated failed: %v", err)
	}
	defer db.Close()

	target := filepath.Join(dir, "backups", "runs-backup.db")
	if err := db.Backup(target); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	if err := db.Backup(target); err == nil {
		t.Error("expected an error when the backup target exists")
	}

	copyDB, err := NewDB(target)
	if err != nil {
		t.Fatalf("Failed to open backup: %v", err)
	}
	defer copyDB.Close()

	var tables int
	if err := copyDB.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('change_runs', 'change_records')`).Scan(&tables); err != nil {
		t.Fatalf("Failed to inspect backup: %v", err)
	}
	if tables != 2 {
		t.Errorf("expected 2 change tables in backup, got %d", tables)
	}
}
