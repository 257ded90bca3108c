package ui

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/goodtune/gravityease/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Message types pushed to display clients.
const (
	MessageSnapshot     = "snapshot"
	MessageAnnouncement = "announcement"
	MessageSummary      = "summary"
)

const (
	clientBuffer = 16
	writeWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	// Displays connect from the local network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the envelope written to each websocket client.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func encodeMessage(msgType string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Data: raw})
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Hub fans out messages to connected display clients. A client that cannot
// keep up is disconnected rather than slowing the broadcaster.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	logger  zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger.With().Str("component", "hub").Logger(),
	}
}

// Register adds conn and starts its pumps. initial, when non-nil, is the
// first message the client receives.
func (h *Hub) Register(conn *websocket.Conn, initial []byte) {
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if initial != nil {
		c.send <- initial
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketClients.Set(float64(count))
	h.logger.Debug().Str("remote_addr", conn.RemoteAddr().String()).Int("clients", count).Msg("Display connected")

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast sends data to every client under the given message type.
func (h *Hub) Broadcast(msgType string, data interface{}) {
	msg, err := encodeMessage(msgType, data)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msgType).Msg("Failed to encode message")
		return
	}

	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		if !c.enqueue(msg) {
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn().Str("remote_addr", c.conn.RemoteAddr().String()).Msg("Dropping slow display client")
		h.unregister(c)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) unregister(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		count := len(h.clients)
		h.mu.Unlock()

		close(c.send)
		metrics.WebsocketClients.Set(float64(count))
	})
}

func (h *Hub) writePump(c *client) {
	defer func() { _ = c.conn.Close() }()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug().Err(err).Msg("Websocket write failed")
			h.unregister(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// readPump discards client input and notices disconnects.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.unregister(c)
			return
		}
	}
}
