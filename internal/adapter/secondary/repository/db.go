package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

const schemaCycleEvents = `
CREATE TABLE IF NOT EXISTS cycle_events (
    id TEXT PRIMARY KEY,
    occurred_at TEXT NOT NULL,
    outcome TEXT NOT NULL,
    device_id TEXT,
    device_name TEXT,
    before_pct INTEGER NOT NULL,
    target_pct INTEGER NOT NULL,
    failures INTEGER NOT NULL,
    cooldown BOOLEAN NOT NULL,
    message TEXT NOT NULL
);
`

const indexCycleEvents = `
CREATE INDEX IF NOT EXISTS idx_cycle_events_occurred_at ON cycle_events (occurred_at);
`

// OpenJournal opens or creates the sqlite journal at path and ensures the schema.
func OpenJournal(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// One writer per process; other processes wait on busy_timeout.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{schemaCycleEvents, indexCycleEvents} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
