package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-ism7/internal/auth"
	"github.com/nerrad567/gray-logic-ism7/internal/bridges/ism7"
	"github.com/nerrad567/gray-logic-ism7/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ism7/internal/infrastructure/logging"
)

// Message types exchanged on the live feed.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Channels. Append ":<device_id>" to either one to receive a single device,
// e.g. "parameter.reading:boiler".
const (
	ChannelParameterReading = "parameter.reading"
	ChannelParameterWrite   = "parameter.write"
)

// channelPermissions lists the permission each channel family requires.
var channelPermissions = map[string]auth.Permission{
	ChannelParameterReading: auth.PermParameterRead,
	ChannelParameterWrite:   auth.PermHistoryRead,
}

const wsSendBufferSize = 256

// WSMessage is one frame of the live feed, in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// writeEvent is the payload broadcast on parameter.write.
type writeEvent struct {
	CommandID string              `json:"command_id"`
	DeviceID  string              `json:"device_id"`
	PTID      int                 `json:"ptid"`
	Path      string              `json:"path,omitempty"`
	Value     string              `json:"value"`
	Source    string              `json:"source"`
	Status    ism7.AckStatus      `json:"status"`
	ErrorCode string              `json:"error_code,omitempty"`
	Commands  []ism7.WriteCommand `json:"commands,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Hub fans bridge events out to WebSocket clients. It implements
// ism7.ReadingListener and ism7.WriteListener.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connected feed consumer.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	username string
	role     auth.Role

	mu       sync.RWMutex
	channels map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub. Timing settings are applied per connection by the
// server, so only the logger is kept here.
func NewHub(_ config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

func (h *Hub) register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "user", c.username, "clients", n)
}

// unregister removes c. The send channel is closed exactly once, by
// whichever of unregister and Run removes the client first.
func (h *Hub) unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
	}
	h.logger.Debug("websocket client disconnected", "user", c.username, "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends payload to every client subscribed to channel or to
// channel scoped to deviceID. An empty deviceID only matches the plain
// channel.
func (h *Hub) Broadcast(channel, deviceID string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("marshalling websocket event failed", "channel", channel, "error", err)
		return
	}

	scoped := ""
	if deviceID != "" {
		scoped = channel + ":" + deviceID
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c.wants(channel, scoped) {
			c.trySend(data)
		}
	}
}

// OnReading publishes r on parameter.reading.
func (h *Hub) OnReading(r ism7.Reading) {
	h.Broadcast(ChannelParameterReading, r.DeviceID, r)
}

// OnWrite publishes the outcome of a write request on parameter.write.
func (h *Hub) OnWrite(w ism7.WriteRecord) {
	h.Broadcast(ChannelParameterWrite, w.DeviceID, writeEvent{
		CommandID: w.CommandID,
		DeviceID:  w.DeviceID,
		PTID:      w.PTID,
		Path:      w.Path,
		Value:     w.Value,
		Source:    w.Source,
		Status:    w.Status,
		ErrorCode: w.ErrorCode,
		Commands:  w.Commands,
		Timestamp: w.Timestamp,
	})
}

var (
	_ ism7.ReadingListener = (*Hub)(nil)
	_ ism7.WriteListener   = (*Hub)(nil)
)

// parseChannel splits "family[:device]" and checks the family is known.
func parseChannel(ch string) (family, device string, err error) {
	family, device, _ = strings.Cut(ch, ":")
	if _, ok := channelPermissions[family]; !ok {
		return "", "", fmt.Errorf("unknown channel %q", ch)
	}
	return family, device, nil
}

// handleWebSocket upgrades an authenticated request to the live feed.
// Browsers authenticate with a single-use ticket from POST /auth/ws-ticket;
// other clients may pass their JWT as the token query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.websocketClaims(w, r)
	if !ok {
		return
	}
	if err := auth.Authorize(claims, auth.PermParameterRead); err != nil {
		writeForbidden(w, "insufficient permissions")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		username: claims.Subject,
		role:     claims.Role,
		channels: make(map[string]struct{}),
	}
	s.hub.register(c)

	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

func (s *Server) websocketClaims(w http.ResponseWriter, r *http.Request) (*auth.CustomClaims, bool) {
	q := r.URL.Query()
	switch {
	case q.Get("ticket") != "":
		claims, ok := s.tickets.redeem(q.Get("ticket"))
		if !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return nil, false
		}
		return claims, true
	case q.Get("token") != "":
		claims, err := s.auth.Verify(q.Get("token"))
		if err != nil {
			writeUnauthorized(w, "invalid or expired token")
			return nil, false
		}
		return claims, true
	default:
		writeUnauthorized(w, "ticket or token query parameter is required")
		return nil, false
	}
}

// readLoop handles client frames until the connection fails or goes quiet
// for longer than one ping interval plus the pong timeout.
func (c *WSClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	if err := extend(); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "user", c.username, "error", err)
			}
			return
		}
		// Application traffic counts as liveness too.
		if err := extend(); err != nil {
			return
		}
		c.handleFrame(data)
	}
}

// writeLoop drains the send queue and pings at the configured interval.
func (c *WSClient) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // connection is going away
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleFrame(data []byte) {
	var msg struct {
		Type    string          `json:"type"`
		ID      string          `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(msg.ID, WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.subscribe(msg.ID, msg.Payload)
	case WSTypeUnsubscribe:
		c.unsubscribe(msg.ID, msg.Payload)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.reply(msg.ID, WSTypeError, errorPayload("unknown message type: "+msg.Type))
	}
}

func decodeChannels(raw json.RawMessage) ([]string, error) {
	var p WSSubscribePayload
	if len(raw) == 0 {
		return nil, fmt.Errorf("channels are required")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid channel list")
	}
	if len(p.Channels) == 0 {
		return nil, fmt.Errorf("channels are required")
	}
	return p.Channels, nil
}

// subscribe is all-or-nothing: one unknown or forbidden channel rejects
// the whole request.
func (c *WSClient) subscribe(id string, raw json.RawMessage) {
	channels, err := decodeChannels(raw)
	if err != nil {
		c.reply(id, WSTypeError, errorPayload(err.Error()))
		return
	}
	for _, ch := range channels {
		family, _, err := parseChannel(ch)
		if err != nil {
			c.reply(id, WSTypeError, errorPayload(err.Error()))
			return
		}
		if !auth.HasPermission(c.role, channelPermissions[family]) {
			c.reply(id, WSTypeError, errorPayload("not permitted: "+ch))
			return
		}
	}

	c.mu.Lock()
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Debug("websocket subscribe", "user", c.username, "channels", channels)
	c.reply(id, WSTypeResponse, map[string]any{"subscribed": channels})
}

func (c *WSClient) unsubscribe(id string, raw json.RawMessage) {
	channels, err := decodeChannels(raw)
	if err != nil {
		c.reply(id, WSTypeError, errorPayload(err.Error()))
		return
	}

	c.mu.Lock()
	for _, ch := range channels {
		delete(c.channels, ch)
	}
	c.mu.Unlock()

	c.reply(id, WSTypeResponse, map[string]any{"unsubscribed": channels})
}

func (c *WSClient) wants(channel, scoped string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.channels[channel]; ok {
		return true
	}
	if scoped == "" {
		return false
	}
	_, ok := c.channels[scoped]
	return ok
}

// trySend queues data without blocking. Frames for a slow client are
// dropped, as are frames racing a disconnect.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a channel closed by unregister
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func errorPayload(msg string) map[string]string {
	return map[string]string{"message": msg}
}
