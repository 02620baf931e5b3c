// Package events pushes view updates to browser clients over WebSocket.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/datastream-chat/backend/internal/model/chat"
	"github.com/zhouzirui/datastream-chat/backend/internal/view"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// Event is one outgoing view update.
type Event struct {
	Type      string         `json:"type"`
	Loading   *bool          `json:"loading,omitempty"`
	Turn      *view.Entry    `json:"turn,omitempty"`
	Sessions  []chat.Summary `json:"sessions,omitempty"`
	ActiveID  string         `json:"activeId,omitempty"`
	Snapshot  *view.Snapshot `json:"snapshot,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans view calls out to every connected client. Slow clients are dropped.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	snapshot func() view.Snapshot
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHub creates a hub; snapshot, when set, is sent to each client on connect.
// snapshot runs with the hub locked and must not call back into the hub.
func NewHub(snapshot func() view.Snapshot, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:  make(map[*client]struct{}),
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logger.With().Str("component", "events").Logger(),
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Hub) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleWebSocket)
}

func (h *Hub) SetLoading(on bool) {
	h.broadcast(Event{Type: "loading", Loading: &on})
}

func (h *Hub) Reset() {
	h.broadcast(Event{Type: "reset"})
}

func (h *Hub) AppendTurn(turn chat.Turn, fresh bool) {
	h.broadcast(Event{Type: "turn", Turn: &view.Entry{Role: turn.Role, Text: turn.Text(), Fresh: fresh}})
}

func (h *Hub) RenderSessions(sessions []chat.Summary, activeID string) {
	h.broadcast(Event{Type: "sessions", Sessions: sessions, ActiveID: activeID})
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(event Event) {
	event.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("type", event.Type).Msg("failed to encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn().Msg("dropping slow websocket client")
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	// Snapshot and registration happen under one lock so no broadcast falls between them.
	h.mu.Lock()
	if h.snapshot != nil {
		snap := h.snapshot()
		if data, err := json.Marshal(Event{Type: "snapshot", Snapshot: &snap, Timestamp: time.Now().UnixMilli()}); err == nil {
			c.send <- data
		}
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards inbound frames and unregisters the client once the connection closes.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			c.close()
		}
		h.mu.Unlock()
		h.log.Debug().Msg("websocket client disconnected")
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()

	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
