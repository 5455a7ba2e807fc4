package floorcast

// These three types are the closed taxonomy of variants the typed
// event bus carries. Subscribers key on the Go type itself, not
// on a string topic.

// EntityStateChanged is published by the ingestion engine once an
// event has been durably persisted.
type EntityStateChanged struct {
	EntityID string
	State    *string
	Event    Event
}

// RegistryUpdated is published whenever the upstream client completes
// a fresh registry fetch, normally right after a successful (re)connect.
type RegistryUpdated struct {
	Registry Registry
}

// StateReconstructed carries the result of a full state reconstruction.
// No component in this repository publishes or subscribes to it.
type StateReconstructed struct {
	State       StateMap
	LastEventID *int64
}
