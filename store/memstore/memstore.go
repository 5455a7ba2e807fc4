// Package memstore is an in-memory EventLogStore/SnapshotStore pair.
// It is concurrency-safe and intended for tests and local runs; state
// is kept in-process and lost on restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patallen/floorcast"
)

// EventLog is an in-memory floorcast.EventLogStore.
type EventLog struct {
	mu          sync.RWMutex
	events      []floorcast.Event
	bySerial    map[int64]int // serial -> index into events
	byExternal  map[string]int64 // external_id -> serial
	nextSerial  int64
}

// NewEventLog creates an empty in-memory event log.
func NewEventLog() *EventLog {
	return &EventLog{
		bySerial:   make(map[int64]int),
		byExternal: make(map[string]int64),
	}
}

// Create inserts event, assigning Serial. A repeated ExternalID is a
// no-op upsert that returns the original row.
func (l *EventLog) Create(_ context.Context, event floorcast.Event) (floorcast.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if serial, ok := l.byExternal[event.ExternalID]; ok {
		return l.events[l.bySerial[serial]], nil
	}

	l.nextSerial++
	event.Serial = l.nextSerial
	l.events = append(l.events, event)
	l.bySerial[event.Serial] = len(l.events) - 1
	l.byExternal[event.ExternalID] = event.Serial
	return event, nil
}

func (l *EventLog) GetBySerial(_ context.Context, serial int64) (floorcast.Event, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.bySerial[serial]
	if !ok {
		return floorcast.Event{}, false, nil
	}
	return l.events[idx], true, nil
}

// GetTimelineBetween returns CompactEvents strictly after afterSerial
// whose Timestamp is before beforeTime, ordered by (Timestamp, Serial).
func (l *EventLog) GetTimelineBetween(_ context.Context, afterSerial int64, beforeTime time.Time) ([]floorcast.CompactEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]floorcast.CompactEvent, 0)
	for _, e := range l.events {
		if e.Serial <= afterSerial || !e.Timestamp.Before(beforeTime) {
			continue
		}
		out = append(out, floorcast.CompactEvent{
			Serial:    e.Serial,
			EntityID:  e.EntityID,
			Timestamp: e.Timestamp,
			State:     e.State,
			Unit:      e.Unit,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Serial < out[j].Serial
	})
	return out, nil
}

var _ floorcast.EventLogStore = (*EventLog)(nil)

// SnapshotStore is an in-memory floorcast.SnapshotStore.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots []floorcast.Snapshot
	nextID    int64
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

func (s *SnapshotStore) Create(_ context.Context, snapshot floorcast.Snapshot) (floorcast.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	snapshot.ID = s.nextID
	snapshot.CreatedAt = time.Now().UTC()
	snapshot.State = snapshot.State.Clone()
	s.snapshots = append(s.snapshots, snapshot)
	return snapshot, nil
}

func (s *SnapshotStore) GetByID(_ context.Context, id int64) (floorcast.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, snap := range s.snapshots {
		if snap.ID == id {
			snap.State = snap.State.Clone()
			return snap, true, nil
		}
	}
	return floorcast.Snapshot{}, false, nil
}

func (s *SnapshotStore) GetLatest(_ context.Context) (floorcast.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return floorcast.Snapshot{}, false, nil
	}
	return s.snapshots[len(s.snapshots)-1], true, nil
}

func (s *SnapshotStore) GetBeforeTimestamp(_ context.Context, t time.Time) (floorcast.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *floorcast.Snapshot
	for i := range s.snapshots {
		snap := s.snapshots[i]
		if snap.CreatedAt.Before(t) {
			if best == nil || snap.CreatedAt.After(best.CreatedAt) {
				best = &s.snapshots[i]
			}
		}
	}
	if best == nil {
		return floorcast.Snapshot{}, false, nil
	}
	return *best, true, nil
}

var _ floorcast.SnapshotStore = (*SnapshotStore)(nil)
