// Package session implements the subscriber session manager.
// It owns the set of connected sessions and, per named subscription,
// the set of sessions subscribed to it; it fans out
// floorcast.EntityStateChanged to every session carrying
// "entity_states", and drives each session's send/receive loops.
// Transport shape (a single sender goroutine that is the only writer, a
// blocking reader goroutine that tears the session down on any read
// error, each ending the other when it fails) is grounded
// on other_examples' gorilla/websocket subscriber loop
// (jcalabro-atlas/internal/pds/firehose.go); the frame routing and
// join-point semantics are grounded on
// original_source/floorcast/api/routes.py and domain/websocket.py.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/patallen/floorcast"
	"github.com/patallen/floorcast/eventbus"
	"github.com/patallen/floorcast/registrycache"
	"github.com/patallen/floorcast/wsapi"
)

// Session is one connected subscriber.
type Session struct {
	ID    string
	conn  *websocket.Conn
	queue *outboundQueue
	log   zerolog.Logger
}

func newSession(conn *websocket.Conn, log zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:    id,
		conn:  conn,
		queue: newOutboundQueue(),
		log:   log.With().Str("session_id", id).Logger(),
	}
}

func (s *Session) enqueue(frame any) {
	encoded, err := json.Marshal(frame)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode outbound frame")
		return
	}
	s.queue.push(encoded)
}

// Manager owns every connected Session and the subscription sets.
type Manager struct {
	bus       *eventbus.Bus
	registry  *registrycache.Cache
	recon     floorcast.StateReconstructor
	log       zerolog.Logger

	mu            sync.Mutex
	sessions      map[*Session]struct{}
	subscriptions map[string]map[*Session]struct{}
}

// New builds a Manager. Subscriptions start with the single recognized
// name, "entity_states".
func New(bus *eventbus.Bus, registry *registrycache.Cache, recon floorcast.StateReconstructor, log zerolog.Logger) *Manager {
	return &Manager{
		bus:      bus,
		registry: registry,
		recon:    recon,
		log:      log.With().Str("component", "session_manager").Logger(),
		sessions: make(map[*Session]struct{}),
		subscriptions: map[string]map[*Session]struct{}{
			wsapi.SubscriptionEntityStates: {},
		},
	}
}

// Subscribe registers the manager's EntityStateChanged handler on bus.
func Subscribe(bus *eventbus.Bus, m *Manager) eventbus.Unsubscribe {
	return eventbus.Subscribe(bus, "session_manager", m.onEntityStateChanged)
}

func (m *Manager) onEntityStateChanged(_ context.Context, ev floorcast.EntityStateChanged) error {
	frame := wsapi.NewEntityStateChangeFrame(ev)

	m.mu.Lock()
	subs := make([]*Session, 0, len(m.subscriptions[wsapi.SubscriptionEntityStates]))
	for s := range m.subscriptions[wsapi.SubscriptionEntityStates] {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.enqueue(frame)
	}
	return nil
}

// Accept runs one subscriber's whole lifecycle: create Session, send
// the registry and initial snapshot, drive sender/receiver loops
// concurrently until either ends, then tear the session down. It
// blocks until the session disconnects.
func (m *Manager) Accept(ctx context.Context, conn *websocket.Conn) error {
	sess := newSession(conn, m.log)
	m.register(sess)
	sess.log.Info().Msg("subscriber connected")
	defer func() {
		m.unregister(sess)
		sess.log.Info().Msg("subscriber disconnected")
	}()

	sess.enqueue(wsapi.NewRegistryFrame(m.registry.Get()))

	state, err := m.recon.GetStateAt(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("session: initial snapshot: %w", err)
	}
	sess.enqueue(wsapi.NewSnapshotFrame(state.State))

	var g errgroup.Group
	g.Go(func() error { return m.senderLoop(sess) })
	g.Go(func() error { return m.receiverLoop(sess) })
	return g.Wait()
}

func (m *Manager) senderLoop(sess *Session) error {
	for {
		frame, ok := sess.queue.pop()
		if !ok {
			return nil
		}
		if err := sess.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			sess.queue.close()
			_ = sess.conn.Close()
			return err
		}
	}
}

func (m *Manager) receiverLoop(sess *Session) error {
	defer sess.queue.close()
	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			return err
		}

		var inbound wsapi.InboundFrame
		if err := json.Unmarshal(raw, &inbound); err != nil {
			sess.enqueue(wsapi.NewErrorFrame("malformed frame"))
			continue
		}

		if protoErr := m.route(sess, inbound); protoErr != nil {
			sess.log.Warn().Err(protoErr).Msg("protocol error")
			sess.enqueue(wsapi.NewErrorFrame(protoErr.Error()))
		}
	}
}

func (m *Manager) route(sess *Session, inbound wsapi.InboundFrame) error {
	switch inbound.Type {
	case wsapi.TypePing:
		sess.enqueue(wsapi.NewPongFrame())
		return nil
	case wsapi.TypeSubscribe:
		return m.changeSubscription(sess, inbound.Data, true)
	case wsapi.TypeUnsubscribe:
		return m.changeSubscription(sess, inbound.Data, false)
	default:
		return &floorcast.ProtocolError{Message: fmt.Sprintf("unknown frame type %q", inbound.Type)}
	}
}

func (m *Manager) changeSubscription(sess *Session, name string, add bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.subscriptions[name]
	if !ok {
		return &floorcast.ProtocolError{Message: fmt.Sprintf("unknown subscription %q", name)}
	}
	if add {
		set[sess] = struct{}{}
	} else {
		delete(set, sess)
	}
	return nil
}

func (m *Manager) register(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess] = struct{}{}
}

func (m *Manager) unregister(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sess)
	for _, set := range m.subscriptions {
		delete(set, sess)
	}
}
