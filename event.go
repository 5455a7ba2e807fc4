// Package floorcast holds the domain model shared by every floorcast
// component: the append-only event log, snapshots, the read-mostly
// topology registry, and the store contracts components are built
// against.
package floorcast

import (
	"time"

	"github.com/google/uuid"
)

// Event is one upstream state change, persisted verbatim in the event
// log. Serial is assigned by the store on insert and is the log's
// primary ordering key; ExternalID is the upstream-assigned
// deduplication key.
type Event struct {
	Serial     int64
	ExternalID string
	EventID    uuid.UUID
	EntityID   string
	Domain     string
	EventType  string
	Timestamp  time.Time
	State      *string
	Unit       *string
	Data       map[string]any
	Metadata   map[string]any
}

// NewEventID mints a locally-unique event identifier for a freshly
// observed upstream event, before it has been assigned a Serial.
func NewEventID() uuid.UUID {
	return uuid.New()
}

// ParseEventID parses the text form of an EventID as stored in a
// backing store's event_id column.
func ParseEventID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// CompactEvent is the minimal projection of an Event used during
// timeline replay; it drops Data/Metadata so that reconstructing
// state over a long window stays cheap.
type CompactEvent struct {
	Serial    int64
	EntityID  string
	Timestamp time.Time
	State     *string
	Unit      *string
}

// TimestampMillis returns the timestamp as Unix milliseconds, the wire
// form used in the `entity.state_change` frame.
func (c CompactEvent) TimestampMillis() int64 {
	return c.Timestamp.UnixMilli()
}
