package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, origins ...string) (*Hub, *httptest.Server) {
	t.Helper()
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	hub := NewHub(origins)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var e Event
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

func TestHub_BroadcastsToSubscribers(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")
	waitForClients(t, hub, 1)

	hub.Publish("trip_started", "staff-1", map[string]string{"tripId": "t1"})

	e := readEvent(t, conn)
	assert.Equal(t, "trip_started", e.Type)
	assert.Equal(t, "staff-1", e.StaffID)
	assert.Equal(t, map[string]interface{}{"tripId": "t1"}, e.Data)
	assert.False(t, e.Timestamp.IsZero())
}

func TestHub_StaffFilter(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "?staffId=staff-2")
	waitForClients(t, hub, 1)

	hub.Publish("trip_started", "staff-1", nil)
	hub.Publish("trip_ended", "staff-2", nil)

	e := readEvent(t, conn)
	assert.Equal(t, "trip_ended", e.Type)
	assert.Equal(t, "staff-2", e.StaffID)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")
	waitForClients(t, hub, 1)

	require.NoError(t, conn.Close())
	waitForClients(t, hub, 0)
}

func TestHub_RejectsUnknownOrigin(t *testing.T) {
	_, srv := startHub(t, "https://dashboard.example.com")
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_PublishWithoutRunDoesNotBlock(t *testing.T) {
	hub := NewHub([]string{"*"})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish("route_point", "", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a saturated hub")
	}
}
