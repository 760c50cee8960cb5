package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub, url, _ := startStoppableHub(t)
	return hub, url
}

func startStoppableHub(t *testing.T) (*Hub, string, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	e := echo.New()
	e.GET("/ws", hub.HandleWebSocket)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws", cancel
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	require.NoError(t, hub.Broadcast("catalog-sync:progress", map[string]string{"externalId": "tt1"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "catalog-sync:progress", msg.Type)
	assert.NotEmpty(t, msg.Timestamp)
}

func TestHub_SubscribeSetsPrefixes(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{hub: hub}

	hub.handleIncoming(incomingMessage{client: client, message: []byte(`{"type":"subscribe","payload":{"prefixes":["catalog-sync:"]}}`)})
	assert.Equal(t, []string{"catalog-sync:"}, client.prefixes)

	hub.handleIncoming(incomingMessage{client: client, message: []byte(`not json`)})
	assert.Equal(t, []string{"catalog-sync:"}, client.prefixes)

	hub.handleIncoming(incomingMessage{client: client, message: []byte(`{"type":"subscribe"}`)})
	assert.Empty(t, client.prefixes)
}

func TestClient_Wants(t *testing.T) {
	c := &Client{}
	assert.True(t, c.wants("anything"))

	c.prefixes = []string{"catalog-sync:", "scheduler:"}
	assert.True(t, c.wants("catalog-sync:progress"))
	assert.True(t, c.wants("scheduler:task:started"))
	assert.False(t, c.wants("logs:entry"))
}

func TestHub_BroadcastDoesNotBlockWithoutLoop(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, hub.Broadcast("e", i))
	}
	assert.ErrorIs(t, hub.Broadcast("e", "overflow"), ErrHubFull)
}

func assertClosedByServer(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	var netErr net.Error
	assert.False(t, errors.As(err, &netErr) && netErr.Timeout(), "connection should be closed, got %v", err)
}

func TestHub_StopClosesClients(t *testing.T) {
	hub, url, stop := startStoppableHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	stop()

	assertClosedByServer(t, conn)
	waitForClients(t, hub, 0)
}

func TestHub_ConnectAfterStopIsClosed(t *testing.T) {
	hub, url, stop := startStoppableHub(t)
	stop()
	<-hub.done

	conn := dial(t, url)
	assertClosedByServer(t, conn)
	assert.Zero(t, hub.ClientCount())
}
