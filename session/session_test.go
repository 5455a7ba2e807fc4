package session_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/patallen/floorcast"
	"github.com/patallen/floorcast/eventbus"
	"github.com/patallen/floorcast/reconstruct"
	"github.com/patallen/floorcast/registrycache"
	"github.com/patallen/floorcast/session"
	"github.com/patallen/floorcast/store/memstore"
)

func strPtr(s string) *string { return &s }

func newTestServer(t *testing.T, m *session.Manager) (wsURL string, upgrader websocket.Upgrader) {
	upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		_ = m.Accept(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", upgrader
}

func newManager(t *testing.T) (*session.Manager, *eventbus.Bus) {
	ctx := t.Context()
	bus := eventbus.New(ctx, zerolog.Nop())
	registry := registrycache.New()
	events := memstore.NewEventLog()
	snapshots := memstore.NewSnapshotStore()
	recon := reconstruct.New(snapshots, events, zerolog.Nop())
	m := session.New(bus, registry, recon, zerolog.Nop())
	session.Subscribe(bus, m)
	return m, bus
}

func TestAccept_SendsRegistryThenSnapshotOnConnect(t *testing.T) {
	m, _ := newManager(t)
	url, _ := newTestServer(t, m)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var registryFrame map[string]any
	require.NoError(t, conn.ReadJSON(&registryFrame))
	require.Equal(t, "registry", registryFrame["type"])

	var snapshotFrame map[string]any
	require.NoError(t, conn.ReadJSON(&snapshotFrame))
	require.Equal(t, "snapshot", snapshotFrame["type"])
}

func TestPing_IsAnsweredWithPong(t *testing.T) {
	m, _ := newManager(t)
	url, _ := newTestServer(t, m)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var discard map[string]any
	require.NoError(t, conn.ReadJSON(&discard)) // registry
	require.NoError(t, conn.ReadJSON(&discard)) // snapshot

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	var pong map[string]any
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, "pong", pong["type"])
}

func TestSubscribe_UnknownNameYieldsProtocolErrorWithoutDisconnect(t *testing.T) {
	m, _ := newManager(t)
	url, _ := newTestServer(t, m)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var discard map[string]any
	require.NoError(t, conn.ReadJSON(&discard)) // registry
	require.NoError(t, conn.ReadJSON(&discard)) // snapshot

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "data": "bogus"}))

	var errFrame map[string]any
	require.NoError(t, conn.ReadJSON(&errFrame))
	require.Equal(t, "error", errFrame["type"])

	// connection survives: a ping still gets answered.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var pong map[string]any
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, "pong", pong["type"])
}

func TestEntityStateChanged_FansOutToSubscribedSession(t *testing.T) {
	m, bus := newManager(t)
	url, _ := newTestServer(t, m)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var discard map[string]any
	require.NoError(t, conn.ReadJSON(&discard)) // registry
	require.NoError(t, conn.ReadJSON(&discard)) // snapshot

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "data": "entity_states"}))

	eventbus.Publish(bus, floorcast.EntityStateChanged{
		EntityID: "sensor.kitchen",
		State:    strPtr("21.5"),
		Event:    floorcast.Event{Serial: 1, EntityID: "sensor.kitchen", Timestamp: time.Now().UTC(), State: strPtr("21.5")},
	})
	bus.WaitAll()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var changeFrame map[string]any
	require.NoError(t, conn.ReadJSON(&changeFrame))
	require.Equal(t, "entity.state_change", changeFrame["type"])
	require.Equal(t, "sensor.kitchen", changeFrame["entity_id"])
}
