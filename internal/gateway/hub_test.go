package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/observability"
)

func startHub(t *testing.T, registry *observability.Registry) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(16, 8, "", registry)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", hub.ServeWS)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n },
		2*time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastReachesUnsubscribedClient(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dialWS(t, srv)
	waitForClients(t, hub, 1)

	// No subscriptions means the client gets every channel.
	hub.Broadcast("marketplace", []byte(`{"seq":1}`))
	assert.JSONEq(t, `{"seq":1}`, string(readMessage(t, conn)))

	hub.Broadcast("bridge", []byte(`{"seq":2}`))
	assert.JSONEq(t, `{"seq":2}`, string(readMessage(t, conn)))
}

func TestHub_SubscribeNarrowsChannels(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dialWS(t, srv)
	waitForClients(t, hub, 1)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "channel": "bridge"}))
	assert.JSONEq(t, `{"type":"subscribed","channel":"bridge"}`, string(readMessage(t, conn)))

	hub.Broadcast("marketplace", []byte(`{"skip":true}`))
	hub.Broadcast("bridge", []byte(`{"keep":true}`))

	// The first payload after the ack must be the bridge one.
	assert.JSONEq(t, `{"keep":true}`, string(readMessage(t, conn)))
}

func TestHub_UnsubscribeRestoresFirehose(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dialWS(t, srv)
	waitForClients(t, hub, 1)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "channel": "bridge"}))
	readMessage(t, conn)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "unsubscribe", "channel": "bridge"}))
	assert.JSONEq(t, `{"type":"unsubscribed","channel":"bridge"}`, string(readMessage(t, conn)))

	// Back to an empty set, so every channel flows again.
	hub.Broadcast("marketplace", []byte(`{"all":true}`))
	assert.JSONEq(t, `{"all":true}`, string(readMessage(t, conn)))
}

func TestHub_ControlMessageErrors(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dialWS(t, srv)
	waitForClients(t, hub, 1)

	cases := []struct {
		send string
		want string
	}{
		{`not json`, "invalid message"},
		{`{"type":"subscribe"}`, "channel is required"},
		{`{"type":"shout","channel":"bridge"}`, "unknown message type"},
	}
	for _, tc := range cases {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tc.send)))
		var reply map[string]string
		require.NoError(t, json.Unmarshal(readMessage(t, conn), &reply))
		assert.Equal(t, "error", reply["type"], tc.send)
		assert.Contains(t, reply["error"], tc.want, tc.send)
	}
}

func TestHub_DisconnectUpdatesCount(t *testing.T) {
	registry := observability.OpenAPIMetrics()
	hub, srv := startHub(t, registry)

	first := dialWS(t, srv)
	dialWS(t, srv)
	waitForClients(t, hub, 2)

	gauge := registry.NewGauge("openapi_ws_clients", "", nil)
	assert.Equal(t, 2.0, gauge.Value())

	first.Close()
	waitForClients(t, hub, 1)
	assert.Equal(t, 1.0, gauge.Value())
}

func TestHub_BroadcastOnlyToSubscribedAmongMany(t *testing.T) {
	hub, srv := startHub(t, nil)

	marketWatcher := dialWS(t, srv)
	bridgeWatcher := dialWS(t, srv)
	waitForClients(t, hub, 2)

	require.NoError(t, marketWatcher.WriteJSON(map[string]string{"type": "subscribe", "channel": "marketplace"}))
	readMessage(t, marketWatcher)
	require.NoError(t, bridgeWatcher.WriteJSON(map[string]string{"type": "subscribe", "channel": "bridge"}))
	readMessage(t, bridgeWatcher)

	hub.Broadcast("bridge", []byte(`{"dest":"bridge"}`))

	assert.JSONEq(t, `{"dest":"bridge"}`, string(readMessage(t, bridgeWatcher)))

	// The marketplace watcher must see nothing.
	marketWatcher.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err := marketWatcher.ReadMessage()
	assert.Error(t, err, "filtered client should time out waiting")
}
