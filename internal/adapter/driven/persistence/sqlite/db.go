// Package sqlite is the relational store for contacts and call history.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type DB struct {
	db *sql.DB
}

// Open opens or creates the database file and applies the schema. Pass
// ":memory:" for an ephemeral database.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS contacts (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	email       TEXT NOT NULL,
	phone       TEXT DEFAULT '',
	avatar_url  TEXT DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'offline'
	            CHECK (status IN ('online','offline','busy')),
	last_seen   TEXT NOT NULL,
	is_favorite INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contacts_name ON contacts(name);

CREATE TABLE IF NOT EXISTS call_history (
	id          TEXT PRIMARY KEY,
	caller_id   TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	call_type   TEXT NOT NULL CHECK (call_type IN ('video','audio')),
	duration    INTEGER NOT NULL DEFAULT 0 CHECK (duration >= 0),
	status      TEXT NOT NULL CHECK (status IN ('completed','missed','declined')),
	started_at  TEXT NOT NULL,
	ended_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_call_history_caller ON call_history(caller_id, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_call_history_receiver ON call_history(receiver_id, started_at DESC);
`
