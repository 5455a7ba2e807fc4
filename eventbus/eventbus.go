// Package eventbus implements the typed in-process publish/subscribe
// bus. Subscriber keys are event variants (Go types, looked up by their
// reflect.Type), not string topics. Any Go type can be published or
// subscribed to; the bus does not restrict the set of variants.
//
// Dispatch is per-handler FIFO: each handler owns a single serial
// worker, so it observes events in publish order, but there is no
// ordering guarantee across handlers. A failing or panicking handler is
// caught, logged, and does not affect its siblings. A handler whose
// context is cancelled is never logged as a failure.
package eventbus

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// Handler is the shape every bus subscriber implements for variant T.
type Handler[T any] func(ctx context.Context, event T) error

// Unsubscribe removes a subscription. It is idempotent and safe to call
// while a dispatch to that handler is in flight — the in-flight call is
// allowed to run to completion.
type Unsubscribe func()

// Bus is a type-keyed publish/subscribe dispatcher.
type Bus struct {
	ctx    context.Context
	log    zerolog.Logger
	mu     sync.Mutex
	nextID uint64
	subs   map[reflect.Type][]*subscription
	wg     sync.WaitGroup
}

// New creates a Bus. ctx is handed to every handler invocation; a
// handler returning ctx.Err() (context.Canceled) is never logged as a
// failure.
func New(ctx context.Context, log zerolog.Logger) *Bus {
	return &Bus{
		ctx:  ctx,
		log:  log.With().Str("component", "eventbus").Logger(),
		subs: make(map[reflect.Type][]*subscription),
	}
}

// subscription is a single handler's per-handler FIFO worker: an
// unbounded task queue drained by one dedicated goroutine. handler is
// a type-erased Handler[T]; Publish recovers it via type assertion
// since it already knows T from its own type parameter.
type subscription struct {
	id      uint64
	name    string
	handler any
	queue   *taskQueue
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { s.queue.closeWhenDrained() })
}

// Subscribe registers handler for every future Publish of a T. The
// returned Unsubscribe detaches it; events already queued for this
// handler still drain to completion.
func Subscribe[T any](bus *Bus, name string, handler Handler[T]) Unsubscribe {
	typ := reflect.TypeOf((*T)(nil)).Elem()

	sub := &subscription{
		id:      bus.newID(),
		name:    name,
		handler: handler,
		queue:   newTaskQueue(),
		done:    make(chan struct{}),
	}

	bus.mu.Lock()
	bus.subs[typ] = append(bus.subs[typ], sub)
	bus.mu.Unlock()

	go func() {
		defer close(sub.done)
		sub.queue.run()
	}()

	return func() {
		bus.mu.Lock()
		list := bus.subs[typ]
		for i, s := range list {
			if s.id == sub.id {
				bus.subs[typ] = append(append([]*subscription{}, list[:i]...), list[i+1:]...)
				break
			}
		}
		bus.mu.Unlock()
		sub.stop()
	}
}

func (bus *Bus) newID() uint64 {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.nextID++
	return bus.nextID
}

// Publish synchronously enumerates the handler set for type-of(event)
// and enqueues a dispatch task to each matching handler's worker,
// returning immediately without waiting for any handler to run.
func Publish[T any](bus *Bus, event T) {
	typ := reflect.TypeOf((*T)(nil)).Elem()

	bus.mu.Lock()
	subs := make([]*subscription, len(bus.subs[typ]))
	copy(subs, bus.subs[typ])
	bus.mu.Unlock()

	for _, sub := range subs {
		handler, ok := sub.handler.(Handler[T])
		if !ok {
			continue
		}
		sub := sub
		bus.wg.Add(1)
		sub.queue.push(func() {
			defer bus.wg.Done()
			dispatch(bus, sub.name, handler, event)
		})
	}
}

// dispatch invokes handler, recovering a panic and logging either as a
// failure attributed to name. A context.Canceled error is treated as
// cancellation, not failure, and is never logged.
func dispatch[T any](bus *Bus, name string, handler Handler[T], event T) {
	defer func() {
		if r := recover(); r != nil {
			bus.log.Error().Interface("panic", r).Str("handler", name).Msg("bus handler panicked")
		}
	}()

	err := handler(bus.ctx, event)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	bus.log.Error().Err(err).Str("handler", name).Msg("bus handler failed")
}

// WaitAll awaits completion of all outstanding dispatch tasks. Used by
// tests and graceful shutdown.
func (bus *Bus) WaitAll() {
	bus.wg.Wait()
}
