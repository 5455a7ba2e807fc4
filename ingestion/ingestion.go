// Package ingestion drains a source of raw upstream events, drops
// blocked entities, persists the rest, and publishes
// floorcast.EntityStateChanged for every persisted event. Grounded on
// the original IngestionService, generalized from an async generator
// pipeline to a Go channel consumed in a single goroutine.
package ingestion

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/patallen/floorcast"
	"github.com/patallen/floorcast/eventbus"
	"github.com/patallen/floorcast/filtering"
)

// Engine persists filtered raw events and publishes them on the bus.
type Engine struct {
	events    floorcast.EventLogStore
	bus       *eventbus.Bus
	blocklist *filtering.BlockList
	log       zerolog.Logger
}

// New builds an ingestion Engine.
func New(events floorcast.EventLogStore, bus *eventbus.Bus, blocklist *filtering.BlockList, log zerolog.Logger) *Engine {
	return &Engine{
		events:    events,
		bus:       bus,
		blocklist: blocklist,
		log:       log.With().Str("component", "ingestion").Logger(),
	}
}

// Run drains source until it closes or ctx is cancelled, filtering,
// persisting, and publishing each raw event in turn. A persist error is
// returned so the caller (the reconnect supervisor) can tear down the
// upstream session and retry.
func (e *Engine) Run(ctx context.Context, source <-chan floorcast.Event) error {
	e.log.Info().Msg("ingestion started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-source:
			if !ok {
				return nil
			}
			if e.blocklist.ShouldBlock(raw.EntityID) {
				continue
			}
			if err := e.processEvent(ctx, raw); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) processEvent(ctx context.Context, raw floorcast.Event) error {
	persisted, err := e.events.Create(ctx, raw)
	if err != nil {
		return fmt.Errorf("ingestion: persist event: %w", err)
	}

	e.log.Info().
		Str("event_id", persisted.EventID.String()).
		Str("entity_id", persisted.EntityID).
		Int64("serial", persisted.Serial).
		Str("event_type", persisted.EventType).
		Msg("event persisted")

	eventbus.Publish(e.bus, floorcast.EntityStateChanged{
		EntityID: persisted.EntityID,
		State:    persisted.State,
		Event:    persisted,
	})
	return nil
}
