package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/classroom-core/internal/infrastructure/config"
	"github.com/nerrad567/classroom-core/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsSendBufferSize = 256
)

// Live feed channels.
const (
	ChannelTelemetry = "telemetry.updated"
	ChannelControl   = "control.sent"
	ChannelFiring    = "rule.fired"
)

// Channels lists the channels a client may subscribe to.
func Channels() []string {
	return []string{ChannelTelemetry, ChannelControl, ChannelFiring}
}

// WSMessage is a message sent to or from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub fans classroom events out to dashboards. Each live feed channel keeps
// its own subscriber set, so a broadcast touches only the clients that
// asked for it.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	feeds   map[string]map[*WSClient]struct{}
}

// WSClient is one connected dashboard.
type WSClient struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	principal Principal
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true }, // CORS middleware decides
}

// NewHub creates a hub with an empty feed for every channel.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	feeds := make(map[string]map[*WSClient]struct{}, len(Channels()))
	for _, ch := range Channels() {
		feeds[ch] = make(map[*WSClient]struct{})
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
		feeds:   feeds,
	}
}

// Run blocks until ctx is cancelled, then disconnects every dashboard.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.dropLocked(client)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// Broadcast sends payload to the subscribers of channel. Unknown channels
// have no subscribers.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding live event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.feeds[channel] {
		client.trySend(data)
	}
}

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) attach(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("dashboard connected", "username", client.principal.Username, "clients", n)
}

func (h *Hub) detach(client *WSClient) {
	h.mu.Lock()
	h.dropLocked(client)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("dashboard disconnected", "username", client.principal.Username, "clients", n)
}

// dropLocked removes client from every feed and closes its queue once.
func (h *Hub) dropLocked(client *WSClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for _, subs := range h.feeds {
		delete(subs, client)
	}
	close(client.send)
}

// follow adds or removes client from the named feeds. A subscribe naming
// an unknown channel changes nothing and returns that channel.
func (h *Hub) follow(client *WSClient, channels []string, subscribe bool) (unknown string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subscribe {
		for _, ch := range channels {
			if _, ok := h.feeds[ch]; !ok {
				return ch
			}
		}
	}
	for _, ch := range channels {
		subs, ok := h.feeds[ch]
		if !ok {
			continue
		}
		if subscribe {
			subs[client] = struct{}{}
		} else {
			delete(subs, client)
		}
	}
	return ""
}

func (h *Hub) following(client *WSClient, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.feeds[channel][client]
	return ok
}

// handleWebSocket upgrades the connection. With authentication enabled a
// ticket from POST /auth/ws-ticket is required in the query string.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	principal := Principal{Username: benchUsername}
	if s.secCfg.AuthEnabled {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		p, ok := s.tickets.consume(ticket)
		if !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
		principal = p
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:       s.hub,
		conn:      conn,
		send:      make(chan []byte, wsSendBufferSize),
		principal: principal,
	}
	s.hub.attach(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// wsInbound is a client message. Payload is decoded per message type.
type wsInbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	alive := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }
	alive("") //nolint:errcheck // best-effort deadline
	c.conn.SetPongHandler(alive)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "username", c.principal.Username, "error", err)
			}
			return
		}
		alive("") //nolint:errcheck // any client frame proves liveness
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pings := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		pings.Stop()
		c.conn.Close()
	}()

	wait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(wait)) //nolint:errcheck // surfaced by the write
		return c.conn.WriteMessage(kind, data)
	}

	for {
		var err error
		select {
		case data, open := <-c.send:
			if !open {
				write(websocket.CloseMessage, nil) //nolint:errcheck // best-effort close frame
				return
			}
			err = write(websocket.TextMessage, data)
		case <-pings.C:
			err = write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg wsInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.updateSubscriptions(msg, true)
	case WSTypeUnsubscribe:
		c.updateSubscriptions(msg, false)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func (c *WSClient) updateSubscriptions(msg wsInbound, subscribe bool) {
	var req WSSubscribePayload
	if len(msg.Payload) == 0 || json.Unmarshal(msg.Payload, &req) != nil {
		c.sendError(msg.ID, "invalid "+msg.Type+" payload")
		return
	}
	if ch := c.hub.follow(c, req.Channels, subscribe); ch != "" {
		c.sendError(msg.ID, "unknown channel: "+ch)
		return
	}

	key := "unsubscribed"
	if subscribe {
		key = "subscribed"
		c.hub.logger.Debug("dashboard subscribed", "username", c.principal.Username, "channels", req.Channels)
	}
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{key: req.Channels})
}

// trySend queues data without blocking; a full queue drops it. Callers
// outside the hub lock may race detach, so a closed queue is tolerated.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // queue closed by detach
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err == nil {
		c.trySend(data)
	}
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
