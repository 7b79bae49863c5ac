package gallery

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kdsmith18542/clickfit/logging"
)

// EventType names a change to the set of stored images.
type EventType string

const (
	EventCreated EventType = "created"
	EventDeleted EventType = "deleted"
)

// Event is pushed to every connected browser.
type Event struct {
	Type     EventType `json:"type"`
	Filename string    `json:"filename"`
	At       time.Time `json:"at"`
}

// Publisher receives gallery events.
type Publisher interface {
	Publish(Event)
}

// The watcher and the HTTP handlers can both report the same change; a
// repeat of the same event inside this window is dropped.
const dedupeWindow = 2 * time.Second

const (
	writeTimeout = 10 * time.Second
	// Events queued per client before it is considered stalled.
	sendBuffer = 32
)

// client is one subscriber. Only its writer goroutine writes data frames to
// conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans gallery events out to websocket clients.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	recent   map[Event]time.Time
	upgrader websocket.Upgrader
	logger   *logging.Logger
	now      func() time.Time
}

// NewHub creates a hub. allowedOrigin is the CORS origin of the front end;
// "*" or empty accepts any origin.
func NewHub(logger *logging.Logger, allowedOrigin string) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		recent:  make(map[Event]time.Time),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
		logger: logger,
		now:    time.Now,
	}
}

// ServeHTTP upgrades the connection and keeps it registered until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("gallery subscriber connected", "remote", r.RemoteAddr)

	go h.writeLoop(c)

	// Clients never send anything meaningful; reading only detects close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

func (h *Hub) writeLoop(c *client) {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
}

// dropLocked unregisters c and closes its queue and socket. h.mu must be
// held.
func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	c.conn.Close()
}

// Publish queues ev for every client without blocking. A client whose queue
// is full is disconnected. A zero At is stamped with the current time.
func (h *Hub) Publish(ev Event) {
	now := h.now()
	key := Event{Type: ev.Type, Filename: ev.Filename}
	if ev.At.IsZero() {
		ev.At = now
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for k, at := range h.recent {
		if now.Sub(at) > dedupeWindow {
			delete(h.recent, k)
		}
	}
	if _, dup := h.recent[key]; dup {
		return
	}
	h.recent[key] = now

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping stalled gallery subscriber", "remote", c.conn.RemoteAddr())
			h.dropLocked(c)
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		h.dropLocked(c)
	}
	return nil
}
