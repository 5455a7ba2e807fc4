package ingestion_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/patallen/floorcast"
	"github.com/patallen/floorcast/eventbus"
	"github.com/patallen/floorcast/filtering"
	"github.com/patallen/floorcast/ingestion"
	"github.com/patallen/floorcast/store/memstore"
)

func strPtr(s string) *string { return &s }

func rawEvent(externalID, entityID string) floorcast.Event {
	return floorcast.Event{
		ExternalID: externalID,
		EventID:    floorcast.NewEventID(),
		EntityID:   entityID,
		Domain:     "sensor",
		EventType:  "state_changed",
		Timestamp:  time.Now().UTC(),
		State:      strPtr("on"),
		Data:       map[string]any{},
	}
}

func TestEngine_FiltersPersistsAndPublishes(t *testing.T) {
	ctx := t.Context()
	events := memstore.NewEventLog()
	bus := eventbus.New(ctx, zerolog.Nop())
	blocklist := filtering.NewBlockList([]string{"update.*"})
	engine := ingestion.New(events, bus, blocklist, zerolog.Nop())

	var received []floorcast.EntityStateChanged
	unsub := eventbus.Subscribe(bus, "collector", func(_ context.Context, e floorcast.EntityStateChanged) error {
		received = append(received, e)
		return nil
	})
	_ = unsub

	source := make(chan floorcast.Event, 2)
	source <- rawEvent("ext-1", "update.core")
	source <- rawEvent("ext-2", "light.kitchen")
	close(source)

	require.NoError(t, engine.Run(ctx, source))
	bus.WaitAll()

	require.Len(t, received, 1)
	require.Equal(t, "light.kitchen", received[0].EntityID)

	timeline, err := events.GetTimelineBetween(ctx, 0, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, timeline, 1, "blocked entity must not be persisted")
	require.Equal(t, "light.kitchen", timeline[0].EntityID)
}

func TestEngine_DuplicateExternalIDPublishesFirstSerial(t *testing.T) {
	ctx := t.Context()
	events := memstore.NewEventLog()
	bus := eventbus.New(ctx, zerolog.Nop())
	blocklist := filtering.NewBlockList(nil)
	engine := ingestion.New(events, bus, blocklist, zerolog.Nop())

	var serials []int64
	eventbus.Subscribe(bus, "collector", func(_ context.Context, e floorcast.EntityStateChanged) error {
		serials = append(serials, e.Event.Serial)
		return nil
	})

	dup := rawEvent("dup-ext", "sensor.a")
	source := make(chan floorcast.Event, 2)
	source <- dup
	source <- dup
	close(source)

	require.NoError(t, engine.Run(ctx, source))
	bus.WaitAll()

	require.Len(t, serials, 2)
	require.Equal(t, serials[0], serials[1])
}
