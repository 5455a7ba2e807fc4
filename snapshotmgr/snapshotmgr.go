// Package snapshotmgr implements a subscriber to
// floorcast.EntityStateChanged that maintains an in-memory running
// state cache and takes a new snapshot whenever the configured
// snapshotpolicy.Policy approves. Grounded on the original
// SnapshotManager: initialize from the current reconstructed state,
// then fold every subsequent EntityStateChanged into the cache and
// consult the policy once per event.
package snapshotmgr

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/patallen/floorcast"
	"github.com/patallen/floorcast/eventbus"
	"github.com/patallen/floorcast/snapshotpolicy"
)

// Manager owns the running state cache and decides when to persist a
// new Snapshot.
type Manager struct {
	snapshots floorcast.SnapshotStore
	recon     floorcast.StateReconstructor
	policy    snapshotpolicy.Policy
	log       zerolog.Logger

	mu                 sync.Mutex
	stateCache         floorcast.StateMap
	lastSnapshotTime   time.Time
	lastSnapshotEventID int64
}

// New builds a Manager. Call Initialize once before subscribing it to
// the bus, so the running cache starts from the latest durable state
// rather than empty.
func New(snapshots floorcast.SnapshotStore, recon floorcast.StateReconstructor, policy snapshotpolicy.Policy, log zerolog.Logger) *Manager {
	return &Manager{
		snapshots:  snapshots,
		recon:      recon,
		policy:     policy,
		log:        log.With().Str("component", "snapshot_manager").Logger(),
		stateCache: floorcast.StateMap{},
	}
}

// Initialize seeds the running cache from the current reconstructed
// state. Must be called before the ingestion engine starts
// publishing EntityStateChanged.
func (m *Manager) Initialize(ctx context.Context) error {
	current, err := m.recon.GetStateAt(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCache = current.State.Clone()
	if current.SnapshotTime != nil {
		m.lastSnapshotTime = *current.SnapshotTime
	}
	if current.LastEventID != nil {
		m.lastSnapshotEventID = *current.LastEventID
	}
	return nil
}

// Subscribe registers the manager's EntityStateChanged handler on bus.
func Subscribe(bus *eventbus.Bus, m *Manager) eventbus.Unsubscribe {
	return eventbus.Subscribe(bus, "snapshot_manager", m.onEntityStateChanged)
}

func (m *Manager) onEntityStateChanged(ctx context.Context, ev floorcast.EntityStateChanged) error {
	m.mu.Lock()
	m.stateCache[ev.EntityID] = floorcast.EntityState{Value: ev.State, Unit: ev.Event.Unit}
	lastEventID := ev.Event.Serial
	lastSnapshotTime := m.lastSnapshotTime
	eventsSinceSnapshot := lastEventID - m.lastSnapshotEventID
	noSnapshotYet := lastSnapshotTime.IsZero()
	stateCopy := m.stateCache.Clone()
	m.mu.Unlock()

	if !noSnapshotYet && !m.policy.ShouldSnapshot(eventsSinceSnapshot, lastSnapshotTime) {
		return nil
	}

	snapshot, err := m.snapshots.Create(ctx, floorcast.Snapshot{
		State:       stateCopy,
		LastEventID: lastEventID,
	})
	if err != nil {
		return &floorcast.StorageError{Op: "create snapshot", Err: err}
	}

	m.mu.Lock()
	m.lastSnapshotTime = snapshot.CreatedAt
	m.lastSnapshotEventID = snapshot.LastEventID
	m.mu.Unlock()

	m.log.Info().
		Int64("snapshot_id", snapshot.ID).
		Int64("last_event_id", snapshot.LastEventID).
		Msg("snapshot taken")
	return nil
}
