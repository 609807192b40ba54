// Package broadcast fans live transcript views out to websocket clients,
// grouped by room.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"accountability-call-service/internal/observability/metrics"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

// ErrHubStopped is returned by Serve once the hub's Run loop has exited.
var ErrHubStopped = errors.New("broadcast hub stopped")

// Options configures a Hub.
type Options struct {
	// AllowedOrigins lists browser origins allowed to connect. "*" allows any.
	// Empty allows any origin.
	AllowedOrigins []string
	Metrics        *metrics.Metrics
}

type message struct {
	room    string
	payload []byte
}

type client struct {
	id   string
	room string
	conn *websocket.Conn
	send chan []byte
}

// Hub manages websocket connections.
type Hub struct {
	rooms      map[string]map[*client]struct{}
	broadcast  chan message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader
	metrics    *metrics.Metrics
}

// NewHub creates a hub. Call Run before serving clients.
func NewHub(opts Options) *Hub {
	m := opts.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	h := &Hub{
		rooms:      make(map[string]map[*client]struct{}),
		broadcast:  make(chan message, 100),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		metrics:    m,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: originChecker(opts.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.rooms {
				for c := range clients {
					h.remove(c)
				}
			}
			return

		case c := <-h.register:
			clients, ok := h.rooms[c.room]
			if !ok {
				clients = make(map[*client]struct{})
				h.rooms[c.room] = clients
			}
			clients[c] = struct{}{}
			h.metrics.RecordLiveClient(1)
			log.Debug().Str("room", c.room).Str("client", c.id).Int("roomClients", len(clients)).Msg("Live client connected")

		case c := <-h.unregister:
			if _, ok := h.rooms[c.room][c]; ok {
				h.remove(c)
				log.Debug().Str("room", c.room).Str("client", c.id).Msg("Live client disconnected")
			}

		case msg := <-h.broadcast:
			for c := range h.rooms[msg.room] {
				select {
				case c.send <- msg.payload:
				default:
					log.Warn().Str("room", c.room).Str("client", c.id).Msg("Live client too slow, disconnecting")
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	clients := h.rooms[c.room]
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, c.room)
	}
	close(c.send)
	h.metrics.RecordLiveClient(-1)
}

// Broadcast queues payload for every client of room. Payloads that fail to
// encode are logged and skipped.
func (h *Hub) Broadcast(room string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("Failed to encode live update")
		return
	}
	select {
	case h.broadcast <- message{room: room, payload: b}:
	case <-h.done:
	}
}

// Serve upgrades the request to a websocket subscribed to room. initial, when
// non-nil, is sent before any broadcast. Serve blocks until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, room string, initial any) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		id:   uuid.NewString(),
		room: room,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if initial != nil {
		if b, err := json.Marshal(initial); err == nil {
			c.send <- b
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return ErrHubStopped
	}

	go c.writePump()
	c.readPump()

	select {
	case h.unregister <- c:
	case <-h.done:
	}
	return nil
}

// readPump drains client frames so pongs and close messages are processed.
func (c *client) readPump() {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
