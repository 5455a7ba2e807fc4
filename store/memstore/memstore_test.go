package memstore_test

import (
	"testing"

	"github.com/patallen/floorcast"
	"github.com/patallen/floorcast/internal/storetest"
	"github.com/patallen/floorcast/store/memstore"
)

func TestEventLog(t *testing.T) {
	storetest.RunEventLog(t, func(t *testing.T) floorcast.EventLogStore {
		return memstore.NewEventLog()
	})
}

func TestSnapshotStore(t *testing.T) {
	storetest.RunSnapshot(t, func(t *testing.T) floorcast.SnapshotStore {
		return memstore.NewSnapshotStore()
	})
}
