// Package notify pushes favorites snapshots, feed state and one-shot
// notifications to connected presentation clients over WebSocket.
package notify

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cinefav/logging"
	"cinefav/metrics"
	"cinefav/models"
)

// Message types
const (
	MessageTypeFavorites    = "favorites"
	MessageTypeFeed         = "feed"
	MessageTypeNotification = "notification"
)

// Message is the envelope written to every client
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub fans messages out to all connected clients. Publishing never blocks:
// when the broadcast buffer is full the message is dropped, and a client
// that cannot keep up is disconnected.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	log        zerolog.Logger
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the presentation layer is a native client, not a browser page
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: logging.Component("notify-hub"),
	}
}

// Run dispatches registrations and broadcasts until ctx is done, then
// closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.log.Info().Msg("Notification hub stopped")
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			metrics.StreamConnections.Set(float64(count))
			h.log.Info().Int("total_clients", count).Msg("Stream client connected")

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// Notify publishes a one-shot notification
func (h *Hub) Notify(n models.Notification) {
	h.publish(Message{Type: MessageTypeNotification, Data: n})
}

// Publish broadcasts data under msgType. Feed and favorites payloads are
// rendered by the caller so stream clients see the same shapes as HTTP.
func (h *Hub) Publish(msgType string, data interface{}) {
	h.publish(Message{Type: msgType, Data: data})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and attaches the connection to the hub
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := newClient(h, conn)
	select {
	case h.register <- client:
		client.start()
	case <-h.done:
		_ = conn.Close()
	}
}

func (h *Hub) publish(message Message) {
	select {
	case h.broadcast <- message:
	default:
		h.log.Warn().Str("type", message.Type).Msg("Broadcast buffer full, dropping message")
	}
}

func (h *Hub) broadcastToClients(message Message) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			h.log.Warn().Uint64("client_id", client.id).Msg("Client too slow, disconnecting")
			h.remove(client)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}

	metrics.StreamConnections.Set(float64(count))
	h.log.Info().Int("total_clients", count).Msg("Stream client disconnected")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	metrics.StreamConnections.Set(0)
}
