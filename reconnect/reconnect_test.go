package reconnect_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/patallen/floorcast"
	"github.com/patallen/floorcast/reconnect"
)

func TestBackoff_DoublesUpToLimit(t *testing.T) {
	b := reconnect.NewBackoff(time.Second, 8*time.Second)

	require.Equal(t, time.Second, b.Wait())
	require.Equal(t, time.Second, b.Next())
	require.Equal(t, 2*time.Second, b.Wait())
	require.Equal(t, 2*time.Second, b.Next())
	require.Equal(t, 4*time.Second, b.Wait())
	require.Equal(t, 4*time.Second, b.Next())
	require.Equal(t, 8*time.Second, b.Wait())
	require.Equal(t, 8*time.Second, b.Next())
	require.Equal(t, 8*time.Second, b.Wait(), "capped at limit")
}

func TestBackoff_ResetReturnsToInitial(t *testing.T) {
	b := reconnect.NewBackoff(time.Second, 8*time.Second)
	b.Next()
	b.Next()
	b.Reset()
	require.Equal(t, time.Second, b.Wait())
}

func TestSupervisor_RetriesOnConnectionErrorThenSucceeds(t *testing.T) {
	backoff := reconnect.NewBackoff(time.Millisecond, 4*time.Millisecond)
	sup := reconnect.NewSupervisor(backoff, zerolog.Nop())

	attempts := 0
	err := sup.Run(t.Context(), func(_ context.Context, onConnected func()) error {
		attempts++
		if attempts < 3 {
			return &floorcast.UpstreamConnectionError{Err: errors.New("refused")}
		}
		onConnected()
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestSupervisor_StopsOnNonRetryableError(t *testing.T) {
	backoff := reconnect.NewBackoff(time.Millisecond, 4*time.Millisecond)
	sup := reconnect.NewSupervisor(backoff, zerolog.Nop())

	boom := errors.New("boom")
	err := sup.Run(t.Context(), func(_ context.Context, _ func()) error {
		return boom
	})

	require.ErrorIs(t, err, boom)
}
