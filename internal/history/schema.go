// Package history records finished exports in SQLite.
package history

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS exports (
	id           TEXT PRIMARY KEY,
	questline_id TEXT NOT NULL,
	quest_count  INTEGER NOT NULL DEFAULT 0,
	asset_count  INTEGER NOT NULL DEFAULT 0,
	checksum     TEXT NOT NULL DEFAULT '',
	object       TEXT NOT NULL UNIQUE,
	size         INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS export_quests (
	export_id TEXT NOT NULL REFERENCES exports(id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	quest_key TEXT NOT NULL,
	x         REAL NOT NULL DEFAULT 0,
	y         REAL NOT NULL DEFAULT 0,
	w         REAL NOT NULL DEFAULT 0,
	h         REAL NOT NULL DEFAULT 0,
	rotation  REAL NOT NULL DEFAULT 0,
	UNIQUE(export_id, quest_key)
);

CREATE INDEX IF NOT EXISTS idx_exports_questline ON exports(questline_id, created_at);
CREATE INDEX IF NOT EXISTS idx_export_quests_key ON export_quests(quest_key);
`

// DB wraps a sql.DB with export history operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
