package upstream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/patallen/floorcast"
)

func dialTestServer(t *testing.T, handle func(conn *websocket.Conn)) *Client {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		handle(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(t.Context(), Config{URL: url}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSubscribe_UpstreamFailureReturnsConnectionError(t *testing.T) {
	client := dialTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = conn.WriteJSON(handshakeFrame{Type: "auth_not_required"})

		var cmd commandFrame
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		_ = conn.WriteJSON(resultFrame{ID: cmd.ID, Type: "result", Success: false})
	})

	err := client.Subscribe("state_changed")
	require.Error(t, err)
	var connErr *floorcast.UpstreamConnectionError
	require.ErrorAs(t, err, &connErr)
}
