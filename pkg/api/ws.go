package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/pxfen/framegate/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // same-origin requests have no Origin header
		}
		for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
			if strings.HasPrefix(origin, prefix) {
				return true
			}
		}
		logger.WarnCF("ws", "Rejected WebSocket from disallowed origin", map[string]interface{}{
			"origin": origin,
		})
		return false
	},
}

// wsEvent is one event pushed to websocket clients.
type wsEvent struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// wsHub tracks connected clients and fans events out to them.
type wsHub struct {
	mu         sync.Mutex
	clients    map[*wsClient]bool
	events     chan wsEvent
	register   chan *wsClient
	unregister chan *wsClient
}

func newWSHub() *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		events:     make(chan wsEvent, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

func (h *wsHub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.DebugC("ws", "Client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			logger.DebugC("ws", "Client disconnected")

		case event := <-h.events:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// client too slow, drop it
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// broadcast queues an event for all clients; drops when the hub is backed up.
func (h *wsHub) broadcast(event wsEvent) {
	select {
	case h.events <- event:
	default:
	}
}

func (h *wsHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.DebugCF("ws", "Upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 64)}
	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readPump discards client messages; it exists to detect disconnects.
func (c *wsClient) readPump(h *wsHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
