package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fleetwatch/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is a single message pushed to websocket clients.
type Event struct {
	Type     string    `json:"type"` // "metric_update", "alert_triggered", "alert_resolved"
	ServerID int64     `json:"server_id"`
	Data     any       `json:"data"`
	Time     time.Time `json:"ts"`
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub broadcasts collection events to all connected websocket clients.
// A client whose send buffer is full misses events instead of stalling
// the broadcast.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]struct{}
	broadcast  chan Event
	register   chan *client
	unregister chan *client
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run is the hub's event loop. It blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			slog.Debug("websocket client connected", "clients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			slog.Debug("websocket client disconnected", "clients", n)

		case ev := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					// Slow client, skip this event.
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) publish(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		slog.Warn("event broadcast dropped, hub backlog full", "type", ev.Type)
	}
}

func (h *Hub) PublishMetricUpdate(ctx context.Context, serverID int64, snap model.MetricSnapshot) error {
	h.publish(Event{Type: "metric_update", ServerID: serverID, Data: snap, Time: time.Now()})
	return nil
}

func (h *Hub) PublishAlertTriggered(ctx context.Context, alert model.Alert) error {
	h.publish(Event{Type: "alert_triggered", ServerID: alert.ServerID, Data: alert, Time: time.Now()})
	return nil
}

func (h *Hub) PublishAlertResolved(ctx context.Context, alert model.Alert) error {
	h.publish(Event{Type: "alert_resolved", ServerID: alert.ServerID, Data: alert, Time: time.Now()})
	return nil
}

// ServeWS upgrades an HTTP request to a websocket connection and attaches it
// to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan Event, sendBufferSize)}
	h.register <- c

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients only listen; inbound messages just keep the connection alive.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
