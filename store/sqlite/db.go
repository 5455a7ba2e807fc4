// Package sqlite is the local-file-backed implementation of
// floorcast.EventLogStore and floorcast.SnapshotStore, backed by
// database/sql and the mattn/go-sqlite3 driver. It follows
// the transaction and upsert shape of an event-sourcing library's
// SQL store, adapted from a stream/version model to floorcast's flat,
// serial-ordered, external_id-deduplicated log.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// timeLayout is a lexicographically-sortable UTC timestamp
// representation: fixed-width nanosecond fraction, so string
// comparison agrees with chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Open opens (creating if necessary) a local SQLite file at path and
// ensures the schema exists. SQLite allows a single writer at a time,
// so the pool is capped at one connection — writes from EventLog and
// SnapshotStore already serialize through their own mutex, and a
// single connection avoids SQLITE_BUSY from concurrent writers
// contending on the file lock.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	serial      INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id TEXT UNIQUE NOT NULL,
	event_id    TEXT UNIQUE NOT NULL,
	event_type  TEXT NOT NULL,
	domain      TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	timestamp   TEXT NOT NULL,
	state       TEXT,
	unit        TEXT,
	data        TEXT NOT NULL,
	metadata    TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS ix_events_entity_id ON events(entity_id);
CREATE INDEX IF NOT EXISTS ix_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS ix_events_event_type ON events(event_type);
CREATE INDEX IF NOT EXISTS ix_events_timestamp_serial ON events(timestamp, serial);

CREATE TABLE IF NOT EXISTS snapshots (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	last_event_id  INTEGER NOT NULL REFERENCES events(serial),
	state          TEXT NOT NULL,
	created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS ix_snapshots_created_at ON snapshots(created_at);
`

func initSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: init schema: %w", err)
	}
	return nil
}
