package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/patallen/floorcast"
)

// SnapshotStore is the SQLite-backed floorcast.SnapshotStore.
type SnapshotStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSnapshotStore wraps an opened *sql.DB (see Open) as a SnapshotStore.
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Create inserts snapshot, assigning ID and CreatedAt from the server
// clock.
func (s *SnapshotStore) Create(ctx context.Context, snapshot floorcast.Snapshot) (floorcast.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := floorcast.EncodeJSON(snapshot.State)
	if err != nil {
		return floorcast.Snapshot{}, &floorcast.StorageError{Op: "encode snapshot state", Err: err}
	}

	createdAt := formatTime(time.Now())
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO snapshots (last_event_id, state, created_at)
		VALUES (?, ?, ?)
		RETURNING id
	`, snapshot.LastEventID, string(state), createdAt).Scan(&id)
	if err != nil {
		return floorcast.Snapshot{}, &floorcast.StorageError{Op: "insert snapshot", Err: err}
	}

	snapshot.ID = id
	parsed, err := parseTime(createdAt)
	if err != nil {
		return floorcast.Snapshot{}, &floorcast.StorageError{Op: "parse snapshot created_at", Err: err}
	}
	snapshot.CreatedAt = parsed
	snapshot.State = snapshot.State.Clone()
	return snapshot, nil
}

const snapshotSelectColumns = `SELECT id, last_event_id, state, created_at FROM snapshots`

func scanSnapshot(row rowScanner) (floorcast.Snapshot, bool, error) {
	var snap floorcast.Snapshot
	var state, createdAt string

	err := row.Scan(&snap.ID, &snap.LastEventID, &state, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return floorcast.Snapshot{}, false, nil
	}
	if err != nil {
		return floorcast.Snapshot{}, false, &floorcast.StorageError{Op: "scan snapshot", Err: err}
	}

	snap.State, err = floorcast.DecodeJSON[floorcast.StateMap]([]byte(state))
	if err != nil {
		return floorcast.Snapshot{}, false, &floorcast.StorageError{Op: "decode snapshot state", Err: err}
	}
	parsed, err := parseTime(createdAt)
	if err != nil {
		return floorcast.Snapshot{}, false, &floorcast.StorageError{Op: "parse snapshot created_at", Err: err}
	}
	snap.CreatedAt = parsed
	return snap, true, nil
}

func (s *SnapshotStore) GetByID(ctx context.Context, id int64) (floorcast.Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx, snapshotSelectColumns+" WHERE id = ?", id)
	return scanSnapshot(row)
}

// GetLatest returns the snapshot with the greatest id.
func (s *SnapshotStore) GetLatest(ctx context.Context) (floorcast.Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx, snapshotSelectColumns+" ORDER BY id DESC LIMIT 1")
	return scanSnapshot(row)
}

// GetBeforeTimestamp returns the snapshot with the greatest created_at
// strictly before t. The lexicographically-sortable timestamp encoding
// lets this fall back to a plain string comparison.
func (s *SnapshotStore) GetBeforeTimestamp(ctx context.Context, t time.Time) (floorcast.Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx, snapshotSelectColumns+`
		WHERE created_at < ?
		ORDER BY created_at DESC
		LIMIT 1
	`, formatTime(t))
	return scanSnapshot(row)
}

var _ floorcast.SnapshotStore = (*SnapshotStore)(nil)
