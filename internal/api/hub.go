/*
Package api
File: hub.go
Description:
    The WebSocket layer. The Hub maintains the registry of active clients
    and the user binding table, and is the engine's broadcast surface.
    Each Client runs the usual two pumps: readPump decodes envelopes and
    hands them to the router, writePump drains a bounded send queue in
    batches. A client that cannot keep up with its queue is disconnected
    rather than allowed to stall the simulation.
*/

package api

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/everforgeworks/galaxies-deepspace/internal/game"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 256

	// Commands per second one client may push, plus a burst allowance.
	clientCmdRate  = 20
	clientCmdBurst = 40
)

// upgrader configures the WebSocket handshake. The game client is served
// from the same origin in production; dev builds connect cross-origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type outbound struct {
	event string
	data  any
}

// Client represents a single connected socket.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	log  zerolog.Logger

	id      string // socket id, assigned at upgrade
	ip      string
	send    chan outbound
	limiter *rate.Limiter

	closeOnce sync.Once
	userID    int64 // 0 until authenticated; guarded by hub.mu
}

// ID returns the socket id.
func (c *Client) ID() string { return c.id }

// IP is the remote address without the port, for the auth rate limiters.
func (c *Client) IP() string { return c.ip }

// UserID returns the bound user id, or zero before authentication.
func (c *Client) UserID() int64 {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.userID
}

// Enqueue queues one event for this client. A full queue means the peer has
// stalled; the connection is dropped to protect the server (backpressure).
func (c *Client) Enqueue(event string, data any) {
	select {
	case c.send <- outbound{event: event, data: data}:
	default:
		c.log.Warn().Str("socket_id", c.id).Str("event", event).Msg("send queue full, dropping client (backpressure)")
		c.close()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// Hub maintains the set of active clients. It implements game.Sender.
type Hub struct {
	log    zerolog.Logger
	router *Router

	mu      sync.RWMutex
	clients map[*Client]struct{}
	byUser  map[int64]*Client
}

func NewHub(router *Router, log zerolog.Logger) *Hub {
	h := &Hub{
		log:     log.With().Str("category", "ws").Logger(),
		router:  router,
		clients: make(map[*Client]struct{}),
		byUser:  make(map[int64]*Client),
	}
	router.hub = h
	return h
}

var _ game.Sender = (*Hub)(nil)

// Send queues an event for one user, if connected.
func (h *Hub) Send(userID int64, event string, data any) {
	h.mu.RLock()
	c := h.byUser[userID]
	h.mu.RUnlock()
	if c != nil {
		c.Enqueue(event, data)
	}
}

// BroadcastAll queues an event for every authenticated client. Used for
// global fan-outs like market updates.
func (h *Hub) BroadcastAll(event string, data any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byUser))
	for _, c := range h.byUser {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.Enqueue(event, data)
	}
}

// BindUser associates a client with an authenticated user. A second login
// for the same user displaces the first connection.
func (h *Hub) BindUser(c *Client, userID int64) {
	var displaced *Client
	h.mu.Lock()
	if prev, ok := h.byUser[userID]; ok && prev != c {
		displaced = prev
		prev.userID = 0
	}
	c.userID = userID
	h.byUser[userID] = c
	h.mu.Unlock()

	if displaced != nil {
		h.log.Info().Int64("user_id", userID).Str("socket_id", displaced.id).Msg("displacing previous connection")
		displaced.close()
	}
}

// ConnectedUsers reports how many authenticated clients are online.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser)
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *Client) (userID int64) {
	h.mu.Lock()
	delete(h.clients, c)
	userID = c.userID
	if userID != 0 && h.byUser[userID] == c {
		delete(h.byUser, userID)
	}
	c.userID = 0
	h.mu.Unlock()
	return userID
}

// ServeWs upgrades an HTTP request to a websocket client and starts its pumps.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	client := &Client{
		hub:     h,
		conn:    conn,
		log:     h.log,
		id:      uuid.NewString(),
		ip:      ip,
		send:    make(chan outbound, sendQueueSize),
		limiter: rate.NewLimiter(clientCmdRate, clientCmdBurst),
	}
	h.add(client)
	h.log.Debug().Str("socket_id", client.id).Str("ip", ip).Msg("socket connected")

	go client.writePump()
	go client.readPump()
}

// readPump decodes envelopes off the wire and dispatches them. It owns the
// read side of the connection and tears the client down on exit.
func (c *Client) readPump() {
	defer func() {
		if userID := c.hub.remove(c); userID != 0 {
			c.hub.router.onDisconnect(userID)
		}
		c.close()
		c.log.Debug().Str("socket_id", c.id).Msg("socket closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Str("socket_id", c.id).Msg("read error")
			}
			return
		}
		if !c.limiter.Allow() {
			c.log.Warn().Str("socket_id", c.id).Msg("command rate exceeded, dropping client")
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Debug().Str("socket_id", c.id).Msg("malformed envelope ignored")
			continue
		}
		c.hub.router.dispatch(c, env)
	}
}

// writePump drains the send queue. Each wakeup flushes the whole backlog in
// one frame batch, coalescing duplicate idempotent events.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			batch := c.drainBatch(msg)
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			for _, m := range batch {
				payload, err := encodeEnvelope(m)
				if err != nil {
					c.log.Error().Err(err).Str("event", m.event).Msg("envelope encode failed")
					continue
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainBatch gathers the queued backlog behind first, preserving FIFO order
// but dropping duplicate world:objectDepleted notifications for the same
// object. Depletion is idempotent, one delivery is enough.
func (c *Client) drainBatch(first outbound) []outbound {
	batch := []outbound{first}
	for {
		select {
		case m, ok := <-c.send:
			if !ok {
				return batch
			}
			batch = append(batch, m)
		default:
			return coalesceDepleted(batch)
		}
	}
}

func coalesceDepleted(batch []outbound) []outbound {
	if len(batch) < 2 {
		return batch
	}
	seen := make(map[string]struct{})
	out := batch[:0]
	for _, m := range batch {
		if m.event == game.EvObjectDepleted {
			key := depletedKey(m.data)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, m)
	}
	return out
}

func depletedKey(data any) string {
	if m, ok := data.(map[string]any); ok {
		if id, ok := m["object_id"].(string); ok {
			return id
		}
	}
	b, _ := json.Marshal(data)
	return string(b)
}

func encodeEnvelope(m outbound) ([]byte, error) {
	data, err := json.Marshal(m.data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(Envelope{Event: m.event, Data: data}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
