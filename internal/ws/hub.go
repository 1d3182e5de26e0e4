package ws

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Envelope is the wire frame for every server-pushed event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Hub maps connection ids to live websocket connections and implements the
// transport the dispatcher writes through. Which user owns which connection
// is the presence registry's business; the hub only addresses sockets.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*connection
}

// connection wraps a socket with a write lock; gorilla/websocket allows at
// most one concurrent writer per connection.
type connection struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*connection)}
}

// Register adds a connection under the given id.
func (h *Hub) Register(connID string, conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[connID] = &connection{ws: conn}
	h.mu.Unlock()
}

// Unregister removes a connection. Unknown ids are no-ops.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	delete(h.conns, connID)
	h.mu.Unlock()
}

// SendToConnection writes one event frame to the connection. A connection
// that disappeared between presence lookup and write is reported as an error
// for the dispatcher to log and swallow.
func (h *Hub) SendToConnection(connID string, event string, payload any) error {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %s not registered", connID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(Envelope{Event: event, Data: payload}); err != nil {
		return fmt.Errorf("write to %s: %w", connID, err)
	}
	return nil
}
