package gallery

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdsmith18542/clickfit/logging"
)

func dialHub(t *testing.T, hub *Hub, header http.Header) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHub_Broadcasts(t *testing.T) {
	hub := NewHub(logging.NewTestLogger(), "*")
	conn := dialHub(t, hub, nil)

	hub.Publish(Event{Type: EventCreated, Filename: "image-1-1.png"})
	ev := readEvent(t, conn)
	assert.Equal(t, EventCreated, ev.Type)
	assert.Equal(t, "image-1-1.png", ev.Filename)
	assert.False(t, ev.At.IsZero())
}

func TestHub_DropsRepeatedEvents(t *testing.T) {
	hub := NewHub(logging.NewTestLogger(), "*")
	conn := dialHub(t, hub, nil)

	hub.Publish(Event{Type: EventDeleted, Filename: "a.png"})
	hub.Publish(Event{Type: EventDeleted, Filename: "a.png"})
	hub.Publish(Event{Type: EventDeleted, Filename: "b.png"})

	assert.Equal(t, "a.png", readEvent(t, conn).Filename)
	assert.Equal(t, "b.png", readEvent(t, conn).Filename)
}

func TestHub_RepeatAfterWindowIsSent(t *testing.T) {
	hub := NewHub(logging.NewTestLogger(), "*")
	clock := time.Now()
	hub.now = func() time.Time { return clock }
	conn := dialHub(t, hub, nil)

	hub.Publish(Event{Type: EventCreated, Filename: "a.png"})
	clock = clock.Add(dedupeWindow + time.Second)
	hub.Publish(Event{Type: EventCreated, Filename: "a.png"})

	first := readEvent(t, conn)
	second := readEvent(t, conn)
	assert.True(t, second.At.After(first.At))
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub(logging.NewTestLogger(), "http://localhost:3000")
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_CloseDisconnects(t *testing.T) {
	hub := NewHub(logging.NewTestLogger(), "*")
	conn := dialHub(t, hub, nil)

	require.NoError(t, hub.Close())
	assert.Zero(t, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

// serverConn returns the server side of a fresh websocket connection that no
// goroutine writes to.
func serverConn(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	select {
	case conn := <-conns:
		t.Cleanup(func() { conn.Close() })
		return conn, peer
	case <-time.After(2 * time.Second):
		t.Fatal("websocket upgrade timed out")
		return nil, nil
	}
}

func TestHub_StalledClientDoesNotBlockPublish(t *testing.T) {
	hub := NewHub(logging.NewTestLogger(), "*")
	healthy := dialHub(t, hub, nil)

	conn, peer := serverConn(t)
	stalled := &client{conn: conn, send: make(chan []byte, 1)}
	hub.mu.Lock()
	hub.clients[stalled] = struct{}{}
	hub.mu.Unlock()
	require.Equal(t, 2, hub.Clients())

	done := make(chan struct{})
	go func() {
		hub.Publish(Event{Type: EventCreated, Filename: "a.png"})
		hub.Publish(Event{Type: EventCreated, Filename: "b.png"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled subscriber")
	}

	assert.Equal(t, 1, hub.Clients())
	assert.Equal(t, "a.png", readEvent(t, healthy).Filename)
	assert.Equal(t, "b.png", readEvent(t, healthy).Filename)

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := peer.ReadMessage()
	assert.Error(t, err)
}

func TestHub_ClientGoneIsRemoved(t *testing.T) {
	hub := NewHub(logging.NewTestLogger(), "*")
	conn := dialHub(t, hub, nil)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(Event{Type: EventCreated, Filename: "a.png"})
}
