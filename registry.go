package floorcast

// Area is a named physical area (e.g. "Kitchen"), optionally assigned
// to a Floor.
type Area struct {
	ID          string
	DisplayName string
	FloorID     *string
}

// Entity is an addressable thing in the upstream system, named
// "<domain>.<id>".
type Entity struct {
	ID             string
	Domain         string
	DisplayName    string
	DeviceID       string
	AreaID         *string
	EntityCategory *string
}

// Device is a physical device that owns one or more entities.
type Device struct {
	ID          string
	AreaID      *string
	DisplayName string
}

// Floor is a building level that groups areas.
type Floor struct {
	ID          string
	DisplayName string
	Level       *int
}

// Registry is the read-mostly topology snapshot: four id-keyed maps
// replaced wholesale on upstream reconnect.
type Registry struct {
	Entities map[string]Entity
	Devices  map[string]Device
	Areas    map[string]Area
	Floors   map[string]Floor
}

// EmptyRegistry returns a Registry with no entries, the value the
// registry cache holds before the first RegistryUpdated event arrives.
func EmptyRegistry() Registry {
	return Registry{
		Entities: map[string]Entity{},
		Devices:  map[string]Device{},
		Areas:    map[string]Area{},
		Floors:   map[string]Floor{},
	}
}

// ToMap renders the registry into the nested-map shape the `registry`
// WS frame sends on the wire.
func (r Registry) ToMap() map[string]any {
	entities := make(map[string]any, len(r.Entities))
	for id, e := range r.Entities {
		entities[id] = map[string]any{
			"id":              e.ID,
			"domain":          e.Domain,
			"display_name":    e.DisplayName,
			"device_id":       e.DeviceID,
			"area_id":         e.AreaID,
			"entity_category": e.EntityCategory,
		}
	}
	devices := make(map[string]any, len(r.Devices))
	for id, d := range r.Devices {
		devices[id] = map[string]any{
			"id":           d.ID,
			"area_id":      d.AreaID,
			"display_name": d.DisplayName,
		}
	}
	areas := make(map[string]any, len(r.Areas))
	for id, a := range r.Areas {
		areas[id] = map[string]any{
			"id":           a.ID,
			"display_name": a.DisplayName,
			"floor_id":     a.FloorID,
		}
	}
	floors := make(map[string]any, len(r.Floors))
	for id, f := range r.Floors {
		floors[id] = map[string]any{
			"id":           f.ID,
			"display_name": f.DisplayName,
			"level":        f.Level,
		}
	}
	return map[string]any{
		"entities": entities,
		"devices":  devices,
		"areas":    areas,
		"floors":   floors,
	}
}
