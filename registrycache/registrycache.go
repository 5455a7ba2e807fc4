// Package registrycache implements a read-mostly cache of the
// upstream topology (entities, devices, areas, floors), kept current by
// subscribing to floorcast.RegistryUpdated on the event bus. Grounded
// on the original RegistryService: start empty, replace wholesale on
// every update, serve the latest snapshot to readers.
package registrycache

import (
	"context"
	"sync/atomic"

	"github.com/patallen/floorcast"
	"github.com/patallen/floorcast/eventbus"
)

// Cache holds the most recently published Registry.
type Cache struct {
	current atomic.Pointer[floorcast.Registry]
}

// New builds an empty Cache, since no registry is known until the first
// successful upstream registry fetch.
func New() *Cache {
	c := &Cache{}
	empty := floorcast.EmptyRegistry()
	c.current.Store(&empty)
	return c
}

// Get returns the current Registry.
func (c *Cache) Get() floorcast.Registry {
	return *c.current.Load()
}

// Subscribe registers the cache's RegistryUpdated handler on bus.
func Subscribe(bus *eventbus.Bus, c *Cache) eventbus.Unsubscribe {
	return eventbus.Subscribe(bus, "registry_cache", c.onRegistryUpdated)
}

func (c *Cache) onRegistryUpdated(_ context.Context, ev floorcast.RegistryUpdated) error {
	reg := ev.Registry
	c.current.Store(&reg)
	return nil
}
