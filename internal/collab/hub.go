package collab

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rustpress/rustpress-core/internal/ids"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Hub fans out a document's operations to every connected client,
// grounded on the register/unregister/broadcast channel pattern of
// streamspace's websocket.Hub, scoped per document instead of per org.
type Hub struct {
	documentID ids.ID

	mu      sync.RWMutex
	clients map[*Conn]struct{}

	register   chan *Conn
	unregister chan *Conn
	broadcast  chan []byte

	logger *slog.Logger
}

// Conn wraps one WebSocket connection belonging to a participant.
type Conn struct {
	hub    *Hub
	ws     *websocket.Conn
	userID ids.ID
	send   chan []byte
}

// NewHub constructs a Hub for documentID. Call Run in its own goroutine.
func NewHub(documentID ids.ID, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		documentID: documentID,
		clients:    make(map[*Conn]struct{}),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		broadcast:  make(chan []byte, sendBuffer),
		logger:     logger,
	}
}

// Run drives the hub's event loop until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			stale := make([]*Conn, 0)
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					stale = append(stale, c)
				}
			}
			h.mu.RUnlock()

			if len(stale) > 0 {
				h.mu.Lock()
				for _, c := range stale {
					delete(h.clients, c)
					close(c.send)
				}
				h.mu.Unlock()
			}
		}
	}
}

// BroadcastOperation marshals op and fans it out to every connected client.
func (h *Hub) BroadcastOperation(op Operation) error {
	raw, err := json.Marshal(struct {
		Type      string    `json:"type"`
		Operation Operation `json:"operation"`
	}{Type: "operation", Operation: op})
	if err != nil {
		return err
	}
	h.broadcast <- raw
	return nil
}

// ClientCount returns the number of connections currently registered.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve adopts ws as a new participant connection and starts its pumps.
// Blocks until the connection closes.
func (h *Hub) Serve(ws *websocket.Conn, userID ids.ID) {
	c := &Conn{hub: h, ws: ws, userID: userID, send: make(chan []byte, sendBuffer)}
	h.register <- c

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	c.readPump()
	<-done
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("collab connection closed unexpectedly", "document", c.hub.documentID, "user", c.userID, "error", err)
			}
			return
		}
	}
}
