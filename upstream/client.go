package upstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/patallen/floorcast"
	"github.com/patallen/floorcast/eventbus"
)

// Config holds the connection parameters for one upstream hub.
type Config struct {
	URL         string
	AccessToken string
}

// Client owns one upstream WebSocket connection: handshake, registry
// fetch, and the `state_changed` subscription.
type Client struct {
	cfg     Config
	conn    *websocket.Conn
	nextID  int
	log     zerolog.Logger
}

// Dial opens the WebSocket connection and runs the auth handshake.
// The hub may or may not require auth: if its first frame isn't
// `auth_required`, the handshake is skipped, matching the original
// adapter's behavior.
func Dial(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, &floorcast.UpstreamConnectionError{Err: fmt.Errorf("dial %s: %w", cfg.URL, err)}
	}

	c := &Client{cfg: cfg, conn: conn, nextID: 1, log: log.With().Str("component", "upstream").Logger()}
	if err := c.authenticate(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) authenticate() error {
	var first handshakeFrame
	if err := c.conn.ReadJSON(&first); err != nil {
		return &floorcast.UpstreamConnectionError{Err: fmt.Errorf("read handshake frame: %w", err)}
	}
	if first.Type != "auth_required" {
		c.log.Info().Msg("upstream authentication not required")
		return nil
	}

	if err := c.conn.WriteJSON(authFrame{Type: "auth", AccessToken: c.cfg.AccessToken}); err != nil {
		return &floorcast.UpstreamConnectionError{Err: fmt.Errorf("send auth frame: %w", err)}
	}

	var result handshakeFrame
	if err := c.conn.ReadJSON(&result); err != nil {
		return &floorcast.UpstreamConnectionError{Err: fmt.Errorf("read auth result: %w", err)}
	}
	switch result.Type {
	case "auth_ok":
		c.log.Info().Msg("authenticated with upstream")
		return nil
	case "auth_invalid":
		return &floorcast.UpstreamAuthError{Err: fmt.Errorf("upstream rejected access token")}
	default:
		return &floorcast.UpstreamAuthError{Err: fmt.Errorf("unexpected handshake frame type %q", result.Type)}
	}
}

func (c *Client) callWait(method string) (json.RawMessage, error) {
	id := c.nextID
	c.nextID++

	if err := c.conn.WriteJSON(commandFrame{ID: id, Type: method}); err != nil {
		return nil, &floorcast.UpstreamConnectionError{Err: fmt.Errorf("send %s: %w", method, err)}
	}
	var res resultFrame
	if err := c.conn.ReadJSON(&res); err != nil {
		return nil, &floorcast.UpstreamConnectionError{Err: fmt.Errorf("read %s result: %w", method, err)}
	}
	if res.ID != id {
		return nil, &floorcast.UpstreamConnectionError{Err: fmt.Errorf("%s: unexpected response id %d (want %d)", method, res.ID, id)}
	}
	if !res.Success {
		return nil, &floorcast.UpstreamConnectionError{Err: fmt.Errorf("%s: upstream reported failure", method)}
	}
	return res.Result, nil
}

// FetchRegistry issues the four registry list requests.
func (c *Client) FetchRegistry() (floorcast.Registry, error) {
	floors, err := c.callWait("config/floor_registry/list")
	if err != nil {
		return floorcast.Registry{}, err
	}
	entities, err := c.callWait("config/entity_registry/list")
	if err != nil {
		return floorcast.Registry{}, err
	}
	areas, err := c.callWait("config/area_registry/list")
	if err != nil {
		return floorcast.Registry{}, err
	}
	devices, err := c.callWait("config/device_registry/list")
	if err != nil {
		return floorcast.Registry{}, err
	}

	reg := floorcast.Registry{
		Entities: map[string]floorcast.Entity{},
		Devices:  map[string]floorcast.Device{},
		Areas:    map[string]floorcast.Area{},
		Floors:   map[string]floorcast.Floor{},
	}
	if err := decodeEntries(entities, func(e registryEntry) { ent := entityFromRegistryEntry(e); reg.Entities[ent.ID] = ent }); err != nil {
		return floorcast.Registry{}, err
	}
	if err := decodeEntries(devices, func(e registryEntry) { d := deviceFromRegistryEntry(e); reg.Devices[d.ID] = d }); err != nil {
		return floorcast.Registry{}, err
	}
	if err := decodeEntries(areas, func(e registryEntry) { a := areaFromRegistryEntry(e); reg.Areas[a.ID] = a }); err != nil {
		return floorcast.Registry{}, err
	}
	if err := decodeEntries(floors, func(e registryEntry) { f := floorFromRegistryEntry(e); reg.Floors[f.ID] = f }); err != nil {
		return floorcast.Registry{}, err
	}

	c.log.Info().
		Int("entities", len(reg.Entities)).
		Int("floors", len(reg.Floors)).
		Int("areas", len(reg.Areas)).
		Int("devices", len(reg.Devices)).
		Msg("fetched registry from upstream")
	return reg, nil
}

func decodeEntries(raw json.RawMessage, apply func(registryEntry)) error {
	var entries []registryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return &floorcast.UpstreamConnectionError{Err: fmt.Errorf("decode registry list: %w", err)}
	}
	for _, e := range entries {
		apply(e)
	}
	return nil
}

// Subscribe requests the upstream event stream for eventType (e.g.
// `state_changed`).
func (c *Client) Subscribe(eventType string) error {
	id := c.nextID
	c.nextID++

	if err := c.conn.WriteJSON(commandFrame{ID: id, Type: "subscribe_events", EventType: eventType}); err != nil {
		return &floorcast.UpstreamConnectionError{Err: fmt.Errorf("send subscribe_events: %w", err)}
	}
	var res resultFrame
	if err := c.conn.ReadJSON(&res); err != nil {
		return &floorcast.UpstreamConnectionError{Err: fmt.Errorf("read subscribe_events result: %w", err)}
	}
	if !res.Success {
		return &floorcast.UpstreamConnectionError{Err: fmt.Errorf("subscribe_events: upstream reported failure")}
	}
	c.log.Info().Str("event_type", eventType).Msg("subscribed to upstream events")
	return nil
}

// Stream decodes inbound frames and sends each state_changed event to
// out. Result frames unrelated to the subscription (late registry
// responses) are logged and skipped, matching the original's
// `HAResult` branch. Stream returns when ctx is cancelled or the
// connection fails.
func (c *Client) Stream(ctx context.Context, out chan<- floorcast.Event) error {
	defer close(out)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var raw json.RawMessage
		if err := c.conn.ReadJSON(&raw); err != nil {
			return &floorcast.UpstreamConnectionError{Err: fmt.Errorf("read event frame: %w", err)}
		}

		var envelope eventEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return &floorcast.UpstreamConnectionError{Err: fmt.Errorf("decode event frame: %w", err)}
		}
		if envelope.Type != "event" {
			c.log.Warn().Str("type", envelope.Type).Msg("non-event frame received while streaming")
			continue
		}

		ev, err := toDomainEvent(envelope)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed upstream event")
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunSession is a reconnect.Session: connect, authenticate, fetch the
// registry, subscribe, publish the registry, and stream events into the
// ingestion engine until the connection drops or ctx is cancelled.
func RunSession(cfg Config, bus *eventbus.Bus, log zerolog.Logger, consume func(ctx context.Context, events <-chan floorcast.Event) error) func(ctx context.Context, onConnected func()) error {
	return func(ctx context.Context, onConnected func()) error {
		client, err := Dial(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		registry, err := client.FetchRegistry()
		if err != nil {
			return err
		}
		if err := client.Subscribe("state_changed"); err != nil {
			return err
		}

		eventbus.Publish(bus, floorcast.RegistryUpdated{Registry: registry})
		onConnected()

		events := make(chan floorcast.Event)
		streamErr := make(chan error, 1)
		go func() { streamErr <- client.Stream(ctx, events) }()

		if err := consume(ctx, events); err != nil {
			return err
		}
		return <-streamErr
	}
}
