package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patallen/floorcast"
)

// EventLog is the SQLite-backed floorcast.EventLogStore.
type EventLog struct {
	db *sql.DB
	mu sync.Mutex // serializes writes so Serial stays strictly monotonic
}

// NewEventLog wraps an opened *sql.DB (see Open) as an EventLogStore.
func NewEventLog(db *sql.DB) *EventLog {
	return &EventLog{db: db}
}

// Create inserts event, assigning Serial. On ExternalID collision it
// is an idempotent no-op that returns the pre-existing row.
func (l *EventLog) Create(ctx context.Context, event floorcast.Event) (floorcast.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := floorcast.EncodeJSON(event.Data)
	if err != nil {
		return floorcast.Event{}, &floorcast.StorageError{Op: "encode event data", Err: err}
	}
	metadata, err := floorcast.EncodeJSON(event.Metadata)
	if err != nil {
		return floorcast.Event{}, &floorcast.StorageError{Op: "encode event metadata", Err: err}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return floorcast.Event{}, &floorcast.StorageError{Op: "begin tx", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var serial int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO events (
			external_id, event_id, event_type, domain, entity_id,
			timestamp, state, unit, data, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING serial
	`,
		event.ExternalID, event.EventID.String(), event.EventType, event.Domain, event.EntityID,
		formatTime(event.Timestamp), event.State, event.Unit, string(data), string(metadata),
		formatTime(time.Now()),
	).Scan(&serial)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// ExternalID already present: return the original row unchanged.
		existing, found, getErr := l.getByExternalIDTx(ctx, tx, event.ExternalID)
		if getErr != nil {
			return floorcast.Event{}, getErr
		}
		if !found {
			return floorcast.Event{}, &floorcast.StorageError{Op: "create event", Err: fmt.Errorf("conflict on %q but row not found", event.ExternalID)}
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return floorcast.Event{}, &floorcast.StorageError{Op: "commit tx", Err: commitErr}
		}
		return existing, nil
	case err != nil:
		return floorcast.Event{}, &floorcast.StorageError{Op: "insert event", Err: err}
	}

	event.Serial = serial
	if err := tx.Commit(); err != nil {
		return floorcast.Event{}, &floorcast.StorageError{Op: "commit tx", Err: err}
	}
	return event, nil
}

func (l *EventLog) getByExternalIDTx(ctx context.Context, tx *sql.Tx, externalID string) (floorcast.Event, bool, error) {
	row := tx.QueryRowContext(ctx, eventSelectColumns+" FROM events WHERE external_id = ?", externalID)
	return scanEvent(row)
}

const eventSelectColumns = `
	SELECT serial, external_id, event_id, event_type, domain, entity_id,
	       timestamp, state, unit, data, metadata
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (floorcast.Event, bool, error) {
	var e floorcast.Event
	var eventID string
	var ts string
	var state, unit, metadata sql.NullString
	var data string

	err := row.Scan(&e.Serial, &e.ExternalID, &eventID, &e.EventType, &e.Domain, &e.EntityID,
		&ts, &state, &unit, &data, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return floorcast.Event{}, false, nil
	}
	if err != nil {
		return floorcast.Event{}, false, &floorcast.StorageError{Op: "scan event", Err: err}
	}

	parsed, err := parseTime(ts)
	if err != nil {
		return floorcast.Event{}, false, &floorcast.StorageError{Op: "parse event timestamp", Err: err}
	}
	e.Timestamp = parsed

	id, err := floorcast.ParseEventID(eventID)
	if err != nil {
		return floorcast.Event{}, false, &floorcast.StorageError{Op: "parse event_id", Err: err}
	}
	e.EventID = id

	if state.Valid {
		v := state.String
		e.State = &v
	}
	if unit.Valid {
		v := unit.String
		e.Unit = &v
	}
	e.Data, err = floorcast.DecodeJSON[map[string]any]([]byte(data))
	if err != nil {
		return floorcast.Event{}, false, &floorcast.StorageError{Op: "decode event data", Err: err}
	}
	if metadata.Valid {
		e.Metadata, err = floorcast.DecodeJSON[map[string]any]([]byte(metadata.String))
		if err != nil {
			return floorcast.Event{}, false, &floorcast.StorageError{Op: "decode event metadata", Err: err}
		}
	}
	return e, true, nil
}

// GetBySerial returns the event with the given serial.
func (l *EventLog) GetBySerial(ctx context.Context, serial int64) (floorcast.Event, bool, error) {
	row := l.db.QueryRowContext(ctx, eventSelectColumns+" FROM events WHERE serial = ?", serial)
	return scanEvent(row)
}

// GetTimelineBetween returns CompactEvents strictly after afterSerial
// with Timestamp before beforeTime, ordered by (Timestamp, Serial).
func (l *EventLog) GetTimelineBetween(ctx context.Context, afterSerial int64, beforeTime time.Time) ([]floorcast.CompactEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT serial, entity_id, timestamp, state, unit
		FROM events
		WHERE serial > ? AND timestamp < ?
		ORDER BY timestamp ASC, serial ASC
	`, afterSerial, formatTime(beforeTime))
	if err != nil {
		return nil, &floorcast.StorageError{Op: "query timeline", Err: err}
	}
	defer rows.Close()

	out := make([]floorcast.CompactEvent, 0)
	for rows.Next() {
		var ce floorcast.CompactEvent
		var ts string
		var state, unit sql.NullString
		if err := rows.Scan(&ce.Serial, &ce.EntityID, &ts, &state, &unit); err != nil {
			return nil, &floorcast.StorageError{Op: "scan timeline row", Err: err}
		}
		parsed, err := parseTime(ts)
		if err != nil {
			return nil, &floorcast.StorageError{Op: "parse timeline timestamp", Err: err}
		}
		ce.Timestamp = parsed
		if state.Valid {
			v := state.String
			ce.State = &v
		}
		if unit.Valid {
			v := unit.String
			ce.Unit = &v
		}
		out = append(out, ce)
	}
	if err := rows.Err(); err != nil {
		return nil, &floorcast.StorageError{Op: "iterate timeline rows", Err: err}
	}
	return out, nil
}

var _ floorcast.EventLogStore = (*EventLog)(nil)
