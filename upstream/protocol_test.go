package upstream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToDomainEvent_MapsStateChange(t *testing.T) {
	raw := []byte(`{
		"id": 7,
		"type": "event",
		"event": {
			"event_type": "state_changed",
			"time_fired": "2026-07-30T12:00:00.000000+00:00",
			"data": {
				"entity_id": "sensor.kitchen_temp",
				"new_state": {
					"state": "21.5",
					"attributes": {"unit_of_measurement": "°C"}
				}
			},
			"context": {"id": "01HXYZCONTEXTID"}
		}
	}`)

	var env eventEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))

	ev, err := toDomainEvent(env)
	require.NoError(t, err)
	require.Equal(t, "01HXYZCONTEXTID", ev.ExternalID)
	require.Equal(t, "sensor.kitchen_temp", ev.EntityID)
	require.Equal(t, "sensor", ev.Domain)
	require.Equal(t, "21.5", *ev.State)
	require.Equal(t, "°C", *ev.Unit)
}

func TestEntityFromRegistryEntry_FallsBackToOriginalName(t *testing.T) {
	e := registryEntry{
		"entity_id":     "light.kitchen",
		"original_name": "Kitchen Light",
		"device_id":     "dev-1",
		"area_id":       "area-1",
	}
	ent := entityFromRegistryEntry(e)
	require.Equal(t, "light.kitchen", ent.ID)
	require.Equal(t, "light", ent.Domain)
	require.Equal(t, "Kitchen Light", ent.DisplayName)
	require.Equal(t, "dev-1", ent.DeviceID)
	require.Equal(t, "area-1", *ent.AreaID)
}

func TestDeviceFromRegistryEntry_PrefersUserAssignedName(t *testing.T) {
	e := registryEntry{"id": "dev-1", "name": "Generic Device", "name_by_user": "My Hub"}
	d := deviceFromRegistryEntry(e)
	require.Equal(t, "My Hub", d.DisplayName)
}
