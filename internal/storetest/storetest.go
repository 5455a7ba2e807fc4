// Package storetest is a black-box compliance suite shared by every
// floorcast.EventLogStore and floorcast.SnapshotStore implementation.
// Both store/memstore and store/sqlite run the same suite so that the
// two backends stay provably interchangeable.
package storetest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/patallen/floorcast"
)

// EventLogFactory creates a fresh, isolated EventLogStore for one test.
type EventLogFactory func(t *testing.T) floorcast.EventLogStore

// SnapshotFactory creates a fresh, isolated SnapshotStore for one test.
type SnapshotFactory func(t *testing.T) floorcast.SnapshotStore

func newEvent(externalID, entityID string, ts time.Time, state *string) floorcast.Event {
	return floorcast.Event{
		ExternalID: externalID,
		EventID:    floorcast.NewEventID(),
		EntityID:   entityID,
		Domain:     "sensor",
		EventType:  "state_changed",
		Timestamp:  ts,
		State:      state,
		Data:       map[string]any{"source": "storetest"},
		Metadata:   map[string]any{},
	}
}

func strPtr(s string) *string { return &s }

// RunEventLog exercises every EventLogStore invariant: monotonic
// serial assignment, deduplication by ExternalID, and Timestamp/Serial
// ordering of GetTimelineBetween.
func RunEventLog(t *testing.T, newStore EventLogFactory) {
	t.Run("serial is assigned and monotonic", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)

		base := time.Now().UTC()
		first, err := s.Create(ctx, newEvent("ext-1", "sensor.kitchen_temp", base, strPtr("21.0")))
		require.NoError(t, err)
		require.Equal(t, int64(1), first.Serial)

		second, err := s.Create(ctx, newEvent("ext-2", "sensor.kitchen_temp", base.Add(time.Second), strPtr("21.5")))
		require.NoError(t, err)
		require.Greater(t, second.Serial, first.Serial)
	})

	t.Run("create is idempotent by ExternalID", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)

		ev := newEvent("dup-1", "sensor.living_room", time.Now().UTC(), strPtr("19.0"))
		first, err := s.Create(ctx, ev)
		require.NoError(t, err)

		// Same ExternalID, different payload: store keeps the original row.
		retry := ev
		retry.State = strPtr("99.0")
		retry.EventID = floorcast.NewEventID()
		second, err := s.Create(ctx, retry)
		require.NoError(t, err)

		require.Equal(t, first.Serial, second.Serial)
		require.Equal(t, first.EventID, second.EventID)
		require.Equal(t, *first.State, *second.State)
	})

	t.Run("get by serial round-trips the event", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)

		ev := newEvent("ext-rt", "sensor.attic", time.Now().UTC(), strPtr("15.2"))
		created, err := s.Create(ctx, ev)
		require.NoError(t, err)

		got, found, err := s.GetBySerial(ctx, created.Serial)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, created.ExternalID, got.ExternalID)
		require.Equal(t, created.EventID, got.EventID)
		require.Equal(t, *created.State, *got.State)

		_, found, err = s.GetBySerial(ctx, created.Serial+1000)
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("timeline is ordered and bounded", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)

		base := time.Now().UTC().Truncate(time.Millisecond)
		var last floorcast.Event
		for i := 0; i < 5; i++ {
			var err error
			last, err = s.Create(ctx, newEvent(
				uuid.NewString(), "sensor.hallway",
				base.Add(time.Duration(i)*time.Second),
				strPtr(uuid.NewString()),
			))
			require.NoError(t, err)
		}

		cutoff := base.Add(10 * time.Second)
		timeline, err := s.GetTimelineBetween(ctx, 0, cutoff)
		require.NoError(t, err)
		require.Len(t, timeline, 5)
		for i := 1; i < len(timeline); i++ {
			require.True(t, timeline[i-1].Timestamp.Before(timeline[i].Timestamp) ||
				timeline[i-1].Timestamp.Equal(timeline[i].Timestamp))
		}

		partial, err := s.GetTimelineBetween(ctx, last.Serial-1, cutoff)
		require.NoError(t, err)
		require.Len(t, partial, 1)
	})
}

// RunSnapshot exercises every SnapshotStore invariant: ID/CreatedAt
// assignment, GetLatest, and GetBeforeTimestamp.
func RunSnapshot(t *testing.T, newStore SnapshotFactory) {
	t.Run("create assigns id and created_at", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)

		snap, err := s.Create(ctx, floorcast.Snapshot{
			LastEventID: 10,
			State: floorcast.StateMap{
				"sensor.kitchen_temp": {Value: strPtr("21.0"), Unit: strPtr("°C")},
			},
		})
		require.NoError(t, err)
		require.NotZero(t, snap.ID)
		require.False(t, snap.CreatedAt.IsZero())
	})

	t.Run("get latest returns the most recent snapshot", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)

		for i := int64(1); i <= 3; i++ {
			_, err := s.Create(ctx, floorcast.Snapshot{
				LastEventID: i * 10,
				State:       floorcast.StateMap{},
			})
			require.NoError(t, err)
			time.Sleep(time.Millisecond)
		}

		latest, found, err := s.GetLatest(ctx)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, int64(30), latest.LastEventID)
	})

	t.Run("get before timestamp returns the newest prior snapshot", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)

		first, err := s.Create(ctx, floorcast.Snapshot{LastEventID: 1, State: floorcast.StateMap{}})
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)

		cutoff := time.Now().UTC()
		time.Sleep(5 * time.Millisecond)

		_, err = s.Create(ctx, floorcast.Snapshot{LastEventID: 2, State: floorcast.StateMap{}})
		require.NoError(t, err)

		got, found, err := s.GetBeforeTimestamp(ctx, cutoff)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, first.ID, got.ID)
	})

	t.Run("state survives a round trip unaliased", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)

		state := floorcast.StateMap{"sensor.a": {Value: strPtr("1"), Unit: nil}}
		created, err := s.Create(ctx, floorcast.Snapshot{LastEventID: 1, State: state})
		require.NoError(t, err)

		got, found, err := s.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "1", *got.State["sensor.a"].Value)

		got.State["sensor.a"] = floorcast.EntityState{Value: strPtr("mutated")}
		reread, _, err := s.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, "1", *reread.State["sensor.a"].Value)
	})
}
