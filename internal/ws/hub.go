package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go-customs-ledger/pkg/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/sirupsen/logrus"
)

// Hub fans ledger events out to every connected WebSocket client.
type Hub struct {
	Clients    map[*websocket.Conn]bool
	Register   chan *websocket.Conn
	Unregister chan *websocket.Conn
	Broadcast  chan []byte
	done       chan struct{}
	mutex      sync.Mutex
	log        *logrus.Logger
}

func NewHub(log *logrus.Logger) *Hub {
	if log == nil {
		log = logger.Discard()
	}
	return &Hub{
		Clients:    make(map[*websocket.Conn]bool),
		Register:   make(chan *websocket.Conn),
		Unregister: make(chan *websocket.Conn),
		Broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run serves the channels until ctx is cancelled, then closes every client.
// Connections that register or leave after that are not waited on.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for conn := range h.Clients {
				conn.Close()
				delete(h.Clients, conn)
			}
			h.mutex.Unlock()
			return

		case conn := <-h.Register:
			h.mutex.Lock()
			h.Clients[conn] = true
			n := len(h.Clients)
			h.mutex.Unlock()
			h.log.WithField("clients", n).Debug("ws client connected")

		case conn := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.Clients[conn]; ok {
				delete(h.Clients, conn)
				conn.Close()
			}
			h.mutex.Unlock()

		case message := <-h.Broadcast:
			h.mutex.Lock()
			for conn := range h.Clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					delete(h.Clients, conn)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Publish encodes a ledger event and queues it for broadcast. It never
// blocks the caller; when the queue is full the event is dropped.
func (h *Hub) Publish(action string, payload any) {
	msg, err := json.Marshal(map[string]interface{}{
		"type":   "ledger_update",
		"action": action,
		"data":   payload,
	})
	if err != nil {
		logger.LogError(h.log, "ws", "Hub", "Publish", action, err)
		return
	}

	select {
	case h.Broadcast <- msg:
	default:
		h.log.WithField("action", action).Warn("ws broadcast queue full, event dropped")
	}
}

// Serve is the WebSocket handler: it registers the connection and blocks
// reading until the client goes away.
func (h *Hub) Serve(c *websocket.Conn) {
	if !h.join(c) {
		return
	}
	defer h.leave(c)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

// join registers c, reporting false once the hub has stopped.
func (h *Hub) join(c *websocket.Conn) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *websocket.Conn) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}
