package snapshotmgr_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/patallen/floorcast"
	"github.com/patallen/floorcast/eventbus"
	"github.com/patallen/floorcast/reconstruct"
	"github.com/patallen/floorcast/snapshotmgr"
	"github.com/patallen/floorcast/snapshotpolicy"
	"github.com/patallen/floorcast/store/memstore"
)

func strPtr(s string) *string { return &s }

func TestManager_SnapshotsOnEventCountPolicy(t *testing.T) {
	ctx := t.Context()
	events := memstore.NewEventLog()
	snapshots := memstore.NewSnapshotStore()
	recon := reconstruct.New(snapshots, events, zerolog.Nop())

	mgr := snapshotmgr.New(snapshots, recon, snapshotpolicy.NewEventCount(2), zerolog.Nop())
	require.NoError(t, mgr.Initialize(ctx))

	bus := eventbus.New(ctx, zerolog.Nop())
	unsub := snapshotmgr.Subscribe(bus, mgr)
	defer unsub()

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		ev, err := events.Create(ctx, floorcast.Event{
			ExternalID: floorcast.NewEventID().String(),
			EventID:    floorcast.NewEventID(),
			EntityID:   "sensor.a",
			Timestamp:  now.Add(time.Duration(i) * time.Second),
			State:      strPtr("v"),
			Data:       map[string]any{},
		})
		require.NoError(t, err)
		eventbus.Publish(bus, floorcast.EntityStateChanged{EntityID: ev.EntityID, State: ev.State, Event: ev})
	}
	bus.WaitAll()

	latest, found, err := snapshots.GetLatest(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.GreaterOrEqual(t, latest.LastEventID, int64(1))
}

func TestManager_NoSnapshotBeforePolicyThreshold(t *testing.T) {
	ctx := t.Context()
	events := memstore.NewEventLog()
	snapshots := memstore.NewSnapshotStore()
	recon := reconstruct.New(snapshots, events, zerolog.Nop())

	mgr := snapshotmgr.New(snapshots, recon, snapshotpolicy.NewEventCount(100), zerolog.Nop())
	require.NoError(t, mgr.Initialize(ctx))

	bus := eventbus.New(ctx, zerolog.Nop())
	unsub := snapshotmgr.Subscribe(bus, mgr)
	defer unsub()

	now := time.Now().UTC()

	// The very first event always snapshots, since there is nothing yet
	// to base a policy decision on.
	first, err := events.Create(ctx, floorcast.Event{
		ExternalID: "ext-1", EventID: floorcast.NewEventID(), EntityID: "sensor.a",
		Timestamp: now, State: strPtr("v"), Data: map[string]any{},
	})
	require.NoError(t, err)
	eventbus.Publish(bus, floorcast.EntityStateChanged{EntityID: first.EntityID, State: first.State, Event: first})
	bus.WaitAll()

	firstSnapshot, found, err := snapshots.GetLatest(ctx)
	require.NoError(t, err)
	require.True(t, found)

	// A second event, far below the 100-event threshold, should not
	// trigger another snapshot.
	second, err := events.Create(ctx, floorcast.Event{
		ExternalID: "ext-2", EventID: floorcast.NewEventID(), EntityID: "sensor.a",
		Timestamp: now.Add(time.Second), State: strPtr("w"), Data: map[string]any{},
	})
	require.NoError(t, err)
	eventbus.Publish(bus, floorcast.EntityStateChanged{EntityID: second.EntityID, State: second.State, Event: second})
	bus.WaitAll()

	latest, found, err := snapshots.GetLatest(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, firstSnapshot.ID, latest.ID)
}
