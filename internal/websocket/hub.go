// Package websocket pushes site events to connected admin clients.
package websocket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"

	"studio-site/internal/domain"
	"studio-site/internal/observability"
)

// Hub fans events out to every connected admin client.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			h.clients[client] = true
			observability.WebSocketConnectionsActive.Inc()
			slog.Info("admin feed client registered", slog.String("remote", client.remote))

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
					observability.WebSocketMessagesSent.Inc()
				default:
					// slow consumer
					h.removeClient(client)
				}
			}
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	observability.WebSocketConnectionsActive.Dec()
	slog.Info("admin feed client unregistered", slog.String("remote", client.remote))
}

func (h *Hub) shutdown() {
	close(h.done)
	for client := range h.clients {
		h.removeClient(client)
	}
	slog.Info("hub shutdown complete")
}

// Broadcast queues message for every client. It returns without blocking
// once the hub has stopped.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// PublishContactMessage sends a contact.created event to the admin feed.
func (h *Hub) PublishContactMessage(_ context.Context, event *domain.ContactMessageEvent) error {
	data, err := json.Marshal(ServerMessage{Type: event.Type, Contact: event})
	if err != nil {
		return fmt.Errorf("failed to marshal feed message: %w", err)
	}
	h.Broadcast(data)
	return nil
}

// Register adds client to the hub. It reports false if the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
