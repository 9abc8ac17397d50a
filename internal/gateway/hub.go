package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/observability"
)

// ---------------------------------------------------------------------------
// WebSocket hub — fans live event envelopes out to dashboard clients.
// Clients subscribe to channels ("marketplace", "bridge"); a client with no
// subscriptions receives every channel, matching the plain relay the
// dashboard started with.
// ---------------------------------------------------------------------------

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// controlMessage is what clients send to manage their channel set.
type controlMessage struct {
	Type    string `json:"type"` // subscribe|unsubscribe
	Channel string `json:"channel"`
}

type broadcastMessage struct {
	channel string
	payload []byte
}

// Client is one WebSocket connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	channels map[string]struct{}
}

// subscribed reports whether the client wants messages for channel. An
// empty channel set means everything.
func (c *Client) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.channels) == 0 {
		return true
	}
	_, ok := c.channels[channel]
	return ok
}

func (c *Client) subscribe(channel string) {
	c.mu.Lock()
	if c.channels == nil {
		c.channels = make(map[string]struct{})
	}
	c.channels[channel] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) unsubscribe(channel string) {
	c.mu.Lock()
	delete(c.channels, channel)
	c.mu.Unlock()
}

// Hub owns the client set. All registration and broadcasting goes through
// the Run loop, so the map needs no lock. Run must be started before
// ServeWS accepts connections.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMessage
	clients    map[*Client]struct{}

	clientBuffer  int
	allowedOrigin string
	clientsGauge  *observability.Gauge

	clientCount atomic.Int64
	broadcasts  atomic.Int64
	dropped     atomic.Int64
}

// NewHub creates a hub. A nil registry gets a private one so the gauge
// lookup never fails.
func NewHub(broadcastBuffer, clientBuffer int, allowedOrigin string, registry *observability.Registry) *Hub {
	if broadcastBuffer <= 0 {
		broadcastBuffer = 256
	}
	if clientBuffer <= 0 {
		clientBuffer = 64
	}
	if registry == nil {
		registry = observability.NewRegistry()
	}
	return &Hub{
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan broadcastMessage, broadcastBuffer),
		clients:       make(map[*Client]struct{}),
		clientBuffer:  clientBuffer,
		allowedOrigin: allowedOrigin,
		clientsGauge: registry.NewGauge("openapi_ws_clients",
			"Connected WebSocket clients", nil),
	}
}

// Run processes registrations and broadcasts. Blocks until ctx is
// cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("WebSocket hub started")
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.setCount(0)
			log.Info().Msg("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.setCount(len(h.clients))
			log.Debug().Str("client", client.id).Int("total", len(h.clients)).Msg("ws client registered")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.setCount(len(h.clients))
				log.Debug().Str("client", client.id).Int("total", len(h.clients)).Msg("ws client unregistered")
			}

		case msg := <-h.broadcast:
			h.broadcasts.Add(1)
			for client := range h.clients {
				if !client.subscribed(msg.channel) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// Slow consumer: drop the connection rather than
					// buffer without bound.
					h.dropped.Add(1)
					delete(h.clients, client)
					close(client.send)
					h.setCount(len(h.clients))
					log.Warn().Str("client", client.id).Msg("ws client send buffer full, dropping")
				}
			}
		}
	}
}

// Broadcast queues payload for every client subscribed to channel. Drops
// the message when the hub's queue is full rather than blocking the feed.
func (h *Hub) Broadcast(channel string, payload []byte) {
	select {
	case h.broadcast <- broadcastMessage{channel: channel, payload: payload}:
	default:
		h.dropped.Add(1)
		log.Warn().Str("channel", channel).Msg("ws broadcast queue full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

func (h *Hub) setCount(n int) {
	h.clientCount.Store(int64(n))
	h.clientsGauge.Set(float64(n))
}

// ServeWS upgrades the request and starts the client pumps.
func (h *Hub) ServeWS(c *gin.Context) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if h.allowedOrigin == "" || h.allowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == h.allowedOrigin
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.clientBuffer),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump consumes control messages until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("client", c.id).Msg("ws read error")
			}
			return
		}
		c.handleControl(message)
	}
}

func (c *Client) handleControl(message []byte) {
	var msg controlMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reply(map[string]string{"type": "error", "error": "invalid message"})
		return
	}
	if msg.Channel == "" {
		c.reply(map[string]string{"type": "error", "error": "channel is required"})
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Channel)
		c.reply(map[string]string{"type": "subscribed", "channel": msg.Channel})
	case "unsubscribe":
		c.unsubscribe(msg.Channel)
		c.reply(map[string]string{"type": "unsubscribed", "channel": msg.Channel})
	default:
		c.reply(map[string]string{"type": "error", "error": "unknown message type"})
	}
}

// reply queues a control response, dropping it if the client is backed up.
func (c *Client) reply(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump relays queued payloads and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// HubStats is a snapshot of hub counters.
type HubStats struct {
	Clients    int   `json:"clients"`
	Broadcasts int64 `json:"broadcasts"`
	Dropped    int64 `json:"dropped"`
}

func (h *Hub) Stats() HubStats {
	return HubStats{
		Clients:    h.ClientCount(),
		Broadcasts: h.broadcasts.Load(),
		Dropped:    h.dropped.Load(),
	}
}
