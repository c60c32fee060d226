package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

// frame is the wire format: {"event": "...", "data": {...}}.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type client struct {
	conn  *websocket.Conn
	send  chan []byte
	rooms []string
}

// ConnHooks carries the metric callbacks invoked on connect/disconnect.
// Nil fields are replaced with no-ops.
type ConnHooks struct {
	OnJoin  func()
	OnLeave func()
}

// Hub is the realtime fan-out channel. Each authenticated connection joins
// its user's private room and its role's broadcast room; emits are
// fire-and-forget pushes to every connection in a room.
//
// The hub is injected where fan-out is needed (it is not a process global),
// so tests can substitute a fake Emitter.
type Hub struct {
	tokens   *TokenIssuer
	logger   *zap.Logger
	upgrader websocket.Upgrader
	hooks    ConnHooks

	mu     sync.RWMutex
	rooms  map[string]map[*client]struct{}
	closed bool
}

func NewHub(tokens *TokenIssuer, logger *zap.Logger, hooks ConnHooks) *Hub {
	if hooks.OnJoin == nil {
		hooks.OnJoin = func() {}
	}
	if hooks.OnLeave == nil {
		hooks.OnLeave = func() {}
	}
	return &Hub{
		tokens: tokens,
		logger: logger,
		hooks:  hooks,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The join token is the access control; cross-origin browser
			// clients are expected.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms: make(map[string]map[*client]struct{}),
	}
}

// ServeWS authenticates the join token (query parameter "token"), upgrades
// the connection, and places it in the caller's user and role rooms.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		rooms: []string{UserRoom(claims.UserID), RoleRoom(claims.Role)},
	}

	if !h.register(c) {
		conn.Close()
		return
	}

	h.logger.Info("client connected",
		zap.String("user_id", claims.UserID),
		zap.String("role", string(claims.Role)),
	)

	go h.writePump(c)
	go h.readPump(c, claims.UserID)
}

// EmitToUser pushes an event to every connection in the user's private room.
func (h *Hub) EmitToUser(userID, event string, data any) error {
	return h.EmitToRoom(UserRoom(userID), event, data)
}

// EmitToRoom pushes an event to every connection in a room. A slow client
// whose send buffer is full is skipped: realtime delivery is at-most-once and
// the durable recipient row compensates on the client's next fetch.
func (h *Hub) EmitToRoom(room, event string, data any) error {
	msg, err := json.Marshal(frame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping event for slow client", zap.String("room", room))
		}
	}
	return nil
}

// RoomSize reports the number of connections currently in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every client and rejects future registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	seen := make(map[*client]struct{})
	for _, members := range h.rooms {
		for c := range members {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			close(c.send)
		}
	}
	h.rooms = make(map[string]map[*client]struct{})
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	for _, room := range c.rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*client]struct{})
		}
		h.rooms[room][c] = struct{}{}
	}
	h.hooks.OnJoin()
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := false
	for _, room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			if _, in := members[c]; in {
				delete(members, c)
				removed = true
			}
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	if removed {
		close(c.send)
		h.hooks.OnLeave()
	}
}

// writePump drains the client's send channel onto the wire and keeps the
// connection alive with pings. One writer goroutine per connection; gorilla
// connections do not support concurrent writers.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait)) //nolint:errcheck
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages (the protocol is push-only) and
// unregisters the client when the connection drops.
func (h *Hub) readPump(c *client, userID string) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		h.logger.Info("client disconnected", zap.String("user_id", userID))
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

var _ Emitter = (*Hub)(nil)
