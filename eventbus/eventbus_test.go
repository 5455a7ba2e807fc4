package eventbus_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patallen/floorcast/eventbus"
)

type widgetCreated struct{ ID int }

func TestPublish_PerHandlerFIFO(t *testing.T) {
	t.Parallel()

	bus := eventbus.New(context.Background(), zerolog.Nop())

	var mu sync.Mutex
	var seen []int

	unsub := eventbus.Subscribe(bus, "collector", func(_ context.Context, e widgetCreated) error {
		mu.Lock()
		seen = append(seen, e.ID)
		mu.Unlock()
		return nil
	})
	defer unsub()

	for i := 0; i < 50; i++ {
		eventbus.Publish(bus, widgetCreated{ID: i})
	}
	bus.WaitAll()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 50)
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestPublish_IsolatesFailingHandler(t *testing.T) {
	t.Parallel()

	bus := eventbus.New(context.Background(), zerolog.Nop())

	var goodCount int
	var mu sync.Mutex

	unsubBad := eventbus.Subscribe(bus, "bad", func(_ context.Context, _ widgetCreated) error {
		return errors.New("boom")
	})
	defer unsubBad()

	unsubGood := eventbus.Subscribe(bus, "good", func(_ context.Context, _ widgetCreated) error {
		mu.Lock()
		goodCount++
		mu.Unlock()
		return nil
	})
	defer unsubGood()

	eventbus.Publish(bus, widgetCreated{ID: 1})
	bus.WaitAll()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, goodCount)
}

func TestUnsubscribe_StopsFutureDelivery(t *testing.T) {
	t.Parallel()

	bus := eventbus.New(context.Background(), zerolog.Nop())

	var mu sync.Mutex
	count := 0

	unsub := eventbus.Subscribe(bus, "counter", func(_ context.Context, _ widgetCreated) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	eventbus.Publish(bus, widgetCreated{ID: 1})
	bus.WaitAll()
	unsub()
	unsub() // idempotent
	eventbus.Publish(bus, widgetCreated{ID: 2})
	bus.WaitAll()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestPublish_PanicRecoveredAndIsolated(t *testing.T) {
	t.Parallel()

	bus := eventbus.New(context.Background(), zerolog.Nop())

	unsubPanic := eventbus.Subscribe(bus, "panicker", func(_ context.Context, _ widgetCreated) error {
		panic("kaboom")
	})
	defer unsubPanic()

	done := make(chan struct{})
	unsubOK := eventbus.Subscribe(bus, "ok", func(_ context.Context, _ widgetCreated) error {
		close(done)
		return nil
	})
	defer unsubOK()

	eventbus.Publish(bus, widgetCreated{ID: 1})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sibling handler did not run after a panicking sibling")
	}
}
