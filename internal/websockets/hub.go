package websockets

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

// Hub fans printer events out to every connected dashboard
type Hub struct {
	clients map[*Client]bool

	register chan *Client

	unregister chan *Client

	broadcast chan models.PrinterEvent

	done chan struct{}

	connected atomic.Int64
	dropped   atomic.Uint64

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		broadcast:  make(chan models.PrinterEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger.With("component", "hub"),
	}
}

// Publish queues an event without blocking. Events are dropped when the hub is backed up.
func (h *Hub) Publish(event models.PrinterEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.dropped.Add(1)
	}
}

// Clients returns the number of connected dashboards
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// Dropped returns how many events were discarded
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Run delivers events until ctx is done, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.connected.Store(0)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
			h.connected.Add(1)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.connected.Add(-1)
			}
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) deliver(event models.PrinterEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode event", "type", event.Type, "error", err)
		return
	}
	message, err := json.Marshal(Message{Type: TypeEvent, Printer: event.Printer, Data: data})
	if err != nil {
		return
	}

	for client := range h.clients {
		if !client.wants(event.Printer) {
			continue
		}
		select {
		case client.send <- message:
		default:
			// Slow client; its pumps exit once send is closed
			close(client.send)
			delete(h.clients, client)
			h.connected.Add(-1)
		}
	}
}
