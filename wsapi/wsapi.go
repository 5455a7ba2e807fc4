// Package wsapi defines the subscriber WebSocket protocol: the JSON
// envelope and frame payloads exchanged between floorcast and a
// connected subscriber. A direct port of
// original_source/floorcast/domain/websocket.py's frame taxonomy into
// Go structs, generalized from the original's narrower
// `connected`/`snapshot`/`event` set to floorcast's full server/client
// frame set.
package wsapi

import "github.com/patallen/floorcast"

// Frame types, both directions.
const (
	TypeRegistry         = "registry"
	TypeSnapshot         = "snapshot"
	TypeEntityStateChange = "entity.state_change"
	TypePong             = "pong"
	TypePing             = "ping"
	TypeSubscribe        = "subscribe"
	TypeUnsubscribe      = "unsubscribe"
	TypeError            = "error"
)

// SubscriptionEntityStates is the only subscription name currently
// recognized.
const SubscriptionEntityStates = "entity_states"

// Envelope is the outer JSON shape of every frame in both directions:
// {"type": "...", ...fields}. Each outbound frame is its own concrete
// struct below carrying Type plus that type's fields, built by a New*
// helper; inbound frames decode directly into InboundFrame.
type Envelope struct {
	Type string `json:"type"`
}

// RegistryFrame is sent unsolicited on connect.
type RegistryFrame struct {
	Type     string         `json:"type"`
	Registry map[string]any `json:"registry"`
}

func NewRegistryFrame(registry floorcast.Registry) RegistryFrame {
	return RegistryFrame{Type: TypeRegistry, Registry: registry.ToMap()}
}

// entityStateView is the wire shape of one entry in a snapshot's state
// map: {value, unit}.
type entityStateView struct {
	Value *string `json:"value"`
	Unit  *string `json:"unit"`
}

// SnapshotFrame is sent unsolicited on connect, right after the
// registry frame.
type SnapshotFrame struct {
	Type  string                     `json:"type"`
	State map[string]entityStateView `json:"state"`
}

func NewSnapshotFrame(state floorcast.StateMap) SnapshotFrame {
	out := make(map[string]entityStateView, len(state))
	for id, s := range state {
		out[id] = entityStateView{Value: s.Value, Unit: s.Unit}
	}
	return SnapshotFrame{Type: TypeSnapshot, State: out}
}

// EntityStateChangeFrame is the live fan-out frame pushed to every
// session subscribed to entity state changes.
type EntityStateChangeFrame struct {
	Type      string  `json:"type"`
	ID        int64   `json:"id"`
	Timestamp int64   `json:"timestamp"`
	EntityID  string  `json:"entity_id"`
	State     *string `json:"state"`
	Unit      *string `json:"unit"`
}

func NewEntityStateChangeFrame(ev floorcast.EntityStateChanged) EntityStateChangeFrame {
	return EntityStateChangeFrame{
		Type:      TypeEntityStateChange,
		ID:        ev.Event.Serial,
		Timestamp: ev.Event.Timestamp.UnixMilli(),
		EntityID:  ev.EntityID,
		State:     ev.State,
		Unit:      ev.Event.Unit,
	}
}

// PongFrame answers a client ping.
type PongFrame struct {
	Type string `json:"type"`
}

func NewPongFrame() PongFrame { return PongFrame{Type: TypePong} }

// ErrorFrame reports a ProtocolError to the offending session without
// disconnecting it.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Message: message}
}

// InboundFrame is the shape of every client → server frame: `ping`
// carries no payload; `subscribe`/`unsubscribe` carry a bare
// subscription name string.
type InboundFrame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}
