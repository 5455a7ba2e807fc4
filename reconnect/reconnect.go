// Package reconnect implements the reconnect supervisor: exponential
// backoff around a session that can fail with
// floorcast.ErrUpstreamConnection, floorcast.ErrUpstreamAuth or
// floorcast.ErrStorage, plus the wrapper loop that restarts the session
// on those errors. Grounded on
// original_source/floorcast/infrastructure/backoff.py's Backoff class.
package reconnect

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/patallen/floorcast"
)

// Backoff tracks the current retry delay: it starts at Initial, doubles
// on every Next call up to Limit, and resets to Initial on Reset.
type Backoff struct {
	initial time.Duration
	limit   time.Duration
	current time.Duration
}

// NewBackoff builds a Backoff starting at initial, doubling up to limit.
func NewBackoff(initial, limit time.Duration) *Backoff {
	return &Backoff{initial: initial, limit: limit, current: initial}
}

// Reset returns the delay to its initial value, called after a
// successful connection.
func (b *Backoff) Reset() {
	b.current = b.initial
}

// Wait returns the delay to use for the current retry.
func (b *Backoff) Wait() time.Duration {
	return b.current
}

// Next doubles the delay, capped at limit, and returns the prior
// (pre-doubling) value — the delay the caller should actually sleep for
// before the next attempt.
func (b *Backoff) Next() time.Duration {
	wait := b.current
	doubled := b.current * 2
	if doubled > b.limit {
		doubled = b.limit
	}
	b.current = doubled
	return wait
}

// Session is one attempt at running the upstream client. onConnected is
// invoked once the session's handshake and registry fetch succeed —
// before the session settles in to stream events — so the supervisor
// can reset its backoff immediately rather than waiting for the whole
// session to end. Run blocks until the session ends, returning
// floorcast.ErrUpstreamConnection, floorcast.ErrUpstreamAuth or
// floorcast.ErrStorage (or a wrapping error matched by errors.Is) for a
// retryable failure.
type Session func(ctx context.Context, onConnected func()) error

// Supervisor restarts a Session on retryable failure with exponential
// backoff.
type Supervisor struct {
	backoff *Backoff
	log     zerolog.Logger
}

// NewSupervisor builds a Supervisor.
func NewSupervisor(backoff *Backoff, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		backoff: backoff,
		log:     log.With().Str("component", "reconnect").Logger(),
	}
}

// Run drives session repeatedly until ctx is cancelled. Any error
// matching floorcast.ErrUpstreamConnection, floorcast.ErrUpstreamAuth
// or floorcast.ErrStorage triggers a backoff sleep and retry; a nil
// return, context.Canceled, or any other error stops the loop.
func (s *Supervisor) Run(ctx context.Context, session Session) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := session(ctx, s.backoff.Reset)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		if !errors.Is(err, floorcast.ErrUpstreamConnection) && !errors.Is(err, floorcast.ErrUpstreamAuth) && !errors.Is(err, floorcast.ErrStorage) {
			return err
		}

		wait := s.backoff.Next()
		s.log.Warn().Err(err).Dur("backoff", wait).Msg("upstream session ended, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
