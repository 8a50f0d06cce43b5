package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// Controls receives the commands issued from the page.
type Controls interface {
	StartRecording()
	StopRecording()
	Submit()
}

type serverMessage struct {
	Type    string     `json:"type"`
	State   *pageState `json:"state,omitempty"`
	Action  string     `json:"action,omitempty"`
	Session uint64     `json:"session,omitempty"`
	Text    string     `json:"text,omitempty"`
}

type clientMessage struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Event   string `json:"event,omitempty"`
	Session uint64 `json:"session,omitempty"`
	Mime    string `json:"mime,omitempty"`
	Error   string `json:"error,omitempty"`
}

type captureHandler interface {
	handleAudio(c *client, data []byte)
	handleCaptureEvent(c *client, msg clientMessage)
	clientLeft(c *client)
}

// Hub tracks the open page connections. The most recently active page is
// the one asked to capture audio.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*client]struct{}
	primary  *client
	controls Controls
	capture  captureHandler
	onJoin   func(*client)
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (h *Hub) setControls(c Controls) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.controls = c
}

func (h *Hub) setCapture(c captureHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.capture = c
}

func (h *Hub) setJoin(fn func(*client)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onJoin = fn
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) primaryClient() *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.primary
}

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.primary = c
	onJoin := h.onJoin
	h.mu.Unlock()

	h.logger.Info("page connected", "remote_addr", r.RemoteAddr)

	go c.writePump()
	if onJoin != nil {
		onJoin(c)
	}
	c.readPump()
}

// Send queues msg for one client. Messages for a client whose buffer is
// full are dropped.
func (h *Hub) Send(c *client, msg serverMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding websocket message", "error", err)
		return false
	}
	return c.enqueue(data)
}

// Broadcast queues msg for every client and reports how many accepted it.
func (h *Hub) Broadcast(msg serverMessage) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding websocket message", "error", err)
		return 0
	}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	sent := 0
	for _, c := range clients {
		if c.enqueue(data) {
			sent++
		}
	}
	return sent
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	if h.primary == c {
		h.primary = nil
		for other := range h.clients {
			h.primary = other
			break
		}
	}
	capture := h.capture
	h.mu.Unlock()

	if !ok {
		return
	}
	if capture != nil {
		capture.clientLeft(c)
	}
	h.logger.Info("page disconnected")
}

func (h *Hub) dispatch(c *client, msg clientMessage) {
	h.mu.Lock()
	h.primary = c
	controls := h.controls
	capture := h.capture
	h.mu.Unlock()

	switch msg.Type {
	case "command":
		if controls == nil {
			return
		}
		switch msg.Command {
		case "start":
			controls.StartRecording()
		case "stop":
			controls.StopRecording()
		case "submit":
			controls.Submit()
		default:
			h.logger.Warn("unknown command", "command", msg.Command)
		}
	case "capture":
		if capture != nil {
			capture.handleCaptureEvent(c, msg)
		}
	default:
		h.logger.Warn("unknown message type", "type", msg.Type)
	}
}

func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		c.hub.logger.Warn("dropping message for slow page")
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read", "error", err)
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			c.hub.mu.Lock()
			capture := c.hub.capture
			c.hub.mu.Unlock()
			if capture != nil {
				capture.handleAudio(c, data)
			}
		case websocket.TextMessage:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.hub.logger.Warn("invalid websocket message", "error", err)
				continue
			}
			c.hub.dispatch(c, msg)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
