// Package snapshotpolicy implements the closed set of snapshot-timing
// policies: pure total functions of
// (eventsSinceSnapshot, lastSnapshotTime) deciding whether the snapshot
// manager should take a new snapshot.
package snapshotpolicy

import "time"

// Policy decides whether a snapshot should be taken given how many
// events have accumulated since the last one and when the last one was
// taken.
type Policy interface {
	ShouldSnapshot(eventsSinceSnapshot int64, lastSnapshotTime time.Time) bool
}

// ElapsedTime approves a snapshot once interval has elapsed since the
// last one.
type ElapsedTime struct {
	Interval time.Duration
}

// NewElapsedTime builds an ElapsedTime policy with the given interval
// in seconds, matching the `SNAPSHOT_INTERVAL_SECONDS` config unit.
func NewElapsedTime(intervalSeconds int) ElapsedTime {
	return ElapsedTime{Interval: time.Duration(intervalSeconds) * time.Second}
}

func (p ElapsedTime) ShouldSnapshot(_ int64, lastSnapshotTime time.Time) bool {
	return time.Since(lastSnapshotTime) >= p.Interval
}

// EventCount approves a snapshot once maxEvents have accumulated since
// the last one.
type EventCount struct {
	MaxEvents int64
}

func NewEventCount(maxEvents int64) EventCount {
	return EventCount{MaxEvents: maxEvents}
}

func (p EventCount) ShouldSnapshot(eventsSinceSnapshot int64, _ time.Time) bool {
	return eventsSinceSnapshot >= p.MaxEvents
}

// Hybrid approves a snapshot when either EventCount or ElapsedTime
// would (logical OR).
type Hybrid struct {
	eventCount  EventCount
	elapsedTime ElapsedTime
}

func NewHybrid(maxEvents int64, intervalSeconds int) Hybrid {
	return Hybrid{
		eventCount:  NewEventCount(maxEvents),
		elapsedTime: NewElapsedTime(intervalSeconds),
	}
}

func (p Hybrid) ShouldSnapshot(eventsSinceSnapshot int64, lastSnapshotTime time.Time) bool {
	return p.eventCount.ShouldSnapshot(eventsSinceSnapshot, lastSnapshotTime) ||
		p.elapsedTime.ShouldSnapshot(eventsSinceSnapshot, lastSnapshotTime)
}

var (
	_ Policy = ElapsedTime{}
	_ Policy = EventCount{}
	_ Policy = Hybrid{}
)
