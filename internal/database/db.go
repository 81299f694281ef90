package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps sql.DB with additional methods
type DB struct {
	*sql.DB
}

// New creates a new database connection
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("database open failed: %w", err)
	}

	// One writer at a time; WAL keeps readers off the writer's back.
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA synchronous=NORMAL")

	return &DB{db}, nil
}

// InitSchema creates all necessary tables
func (db *DB) InitSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS targets (
        name TEXT NOT NULL,
        addr TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (name, addr)
    );

    CREATE TABLE IF NOT EXISTS ping_samples (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ts_unix_ms INTEGER NOT NULL,
        addr TEXT NOT NULL,
        success BOOLEAN NOT NULL,
        rtt_ms REAL
    );

    CREATE INDEX IF NOT EXISTS idx_samples_addr_ts ON ping_samples(addr, ts_unix_ms);

    CREATE TABLE IF NOT EXISTS target_stats (
        addr TEXT PRIMARY KEY,
        sent INTEGER NOT NULL DEFAULT 0,
        recv INTEGER NOT NULL DEFAULT 0,
        lost INTEGER NOT NULL DEFAULT 0,
        sum_ms REAL NOT NULL DEFAULT 0,
        max_ms REAL NOT NULL DEFAULT 0,
        min_ms REAL NOT NULL DEFAULT 0
    );

    CREATE TABLE IF NOT EXISTS histograms (
        addr TEXT NOT NULL,
        bucket INTEGER NOT NULL,
        count INTEGER NOT NULL,
        PRIMARY KEY (addr, bucket)
    );
    `

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}

	return nil
}
