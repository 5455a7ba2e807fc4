// Package upstream implements the upstream client: a consumer of a
// framed bidirectional WebSocket channel shaped like Home Assistant's
// WS API, performing an auth handshake, four registry list requests,
// and a `state_changed` subscription, then yielding raw
// floorcast.Event values. Grounded on
// original_source/floorcast/adapters/home_assistant.py and
// ha_protocol.py, transported over gorilla/websocket instead of the
// Python original's `websockets` package.
package upstream

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/patallen/floorcast"
)

// handshakeFrame is the shape of the handshake frames the upstream hub
// sends (`auth_required`, `auth_ok`, `auth_invalid`); only Type is read.
type handshakeFrame struct {
	Type string `json:"type"`
}

type authFrame struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

// commandFrame is the envelope for every outbound request: registry
// list calls and the events subscription.
type commandFrame struct {
	ID        int    `json:"id"`
	Type      string `json:"type"`
	EventType string `json:"event_type,omitempty"`
}

// resultFrame is the envelope for a response to a commandFrame.
type resultFrame struct {
	ID      int             `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
}

// eventEnvelope wraps an inbound `state_changed` push.
type eventEnvelope struct {
	ID    int       `json:"id"`
	Type  string    `json:"type"`
	Event haEventRaw `json:"event"`
}

type haEventRaw struct {
	EventType string         `json:"event_type"`
	TimeFired string         `json:"time_fired"`
	Data      haStateChange  `json:"data"`
	Context   haContext      `json:"context"`
}

type haStateChange struct {
	EntityID string     `json:"entity_id"`
	NewState *haNewState `json:"new_state"`
}

type haNewState struct {
	State      *string           `json:"state"`
	Attributes map[string]any    `json:"attributes"`
}

type haContext struct {
	ID string `json:"id"`
}

// registryEntry is the shape shared by the four registry list results
// (floor/entity/area/device), read field-by-field since each list uses
// a different subset.
type registryEntry map[string]any

func (e registryEntry) str(key string) string {
	v, _ := e[key].(string)
	return v
}

func (e registryEntry) strPtr(key string) *string {
	v, ok := e[key].(string)
	if !ok || v == "" {
		return nil
	}
	return &v
}

func (e registryEntry) intPtr(key string) *int {
	v, ok := e[key].(float64)
	if !ok {
		return nil
	}
	n := int(v)
	return &n
}

func entityFromRegistryEntry(e registryEntry) floorcast.Entity {
	entityID := e.str("entity_id")
	domain := entityID
	if idx := strings.IndexByte(entityID, '.'); idx >= 0 {
		domain = entityID[:idx]
	}
	displayName := e.str("name")
	if displayName == "" {
		displayName = e.str("original_name")
	}
	if displayName == "" {
		displayName = entityID
	}
	return floorcast.Entity{
		ID:             entityID,
		Domain:         domain,
		DisplayName:    displayName,
		DeviceID:       e.str("device_id"),
		AreaID:         e.strPtr("area_id"),
		EntityCategory: e.strPtr("entity_category"),
	}
}

func deviceFromRegistryEntry(e registryEntry) floorcast.Device {
	displayName := e.str("name_by_user")
	if displayName == "" {
		displayName = e.str("name")
	}
	return floorcast.Device{
		ID:          e.str("id"),
		AreaID:      e.strPtr("area_id"),
		DisplayName: displayName,
	}
}

func areaFromRegistryEntry(e registryEntry) floorcast.Area {
	return floorcast.Area{
		ID:          e.str("area_id"),
		DisplayName: e.str("name"),
		FloorID:     e.strPtr("floor_id"),
	}
}

func floorFromRegistryEntry(e registryEntry) floorcast.Floor {
	return floorcast.Floor{
		ID:          e.str("floor_id"),
		DisplayName: e.str("name"),
		Level:       e.intPtr("level"),
	}
}

// toDomainEvent maps one inbound state_changed push to a raw
// floorcast.Event, ready for the entity filter and ingestion engine.
// context.id becomes ExternalID, the upstream dedup key.
func toDomainEvent(env eventEnvelope) (floorcast.Event, error) {
	ev := env.Event
	firedAt, err := time.Parse(time.RFC3339Nano, ev.TimeFired)
	if err != nil {
		return floorcast.Event{}, fmt.Errorf("upstream: parse time_fired %q: %w", ev.TimeFired, err)
	}

	entityID := ev.Data.EntityID
	domain := entityID
	if idx := strings.IndexByte(entityID, '.'); idx >= 0 {
		domain = entityID[:idx]
	}

	var state *string
	var unit *string
	data := map[string]any{}
	if ev.Data.NewState != nil {
		state = ev.Data.NewState.State
		data = ev.Data.NewState.Attributes
		if data == nil {
			data = map[string]any{}
		}
		if u, ok := data["unit_of_measurement"].(string); ok {
			unit = &u
		}
	}

	return floorcast.Event{
		ExternalID: ev.Context.ID,
		EventID:    floorcast.NewEventID(),
		EntityID:   entityID,
		Domain:     domain,
		EventType:  ev.EventType,
		Timestamp:  firedAt.UTC(),
		State:      state,
		Unit:       unit,
		Data:       data,
		Metadata:   map[string]any{},
	}, nil
}
