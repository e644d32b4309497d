// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/metrics"
	"github.com/tomtom215/fswho/internal/models"
	"github.com/tomtom215/fswho/internal/publish"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypeChange = "change"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
)

const broadcastBuffer = 256

// Message represents a WebSocket message
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients   map[*Client]bool
	broadcast chan Message
	register  chan *Client
	mu        sync.RWMutex
	now       func() time.Time
}

// NewHub creates a new Hub. It does nothing until Serve runs.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*Client]bool),
		broadcast: make(chan Message, broadcastBuffer),
		register:  make(chan *Client),
		now:       time.Now,
	}
}

// Serve runs the hub until ctx is cancelled, then disconnects every client.
// It may be called again after it returns.
//
// Registrations are handled before broadcasts so a client that connected
// before a change was queued always receives it.
func (h *Hub) Serve(ctx context.Context) error {
	logging.Info().Msg("websocket hub started")
	for {
		select {
		case client := <-h.register:
			h.add(client)
			continue
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.register:
			h.add(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		}
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	reason := ShutdownReasonContextCanceled
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = ShutdownReasonContextDeadline
	}
	count := h.ClientCount()
	h.closeAllClients()
	logging.Info().
		Str("reason", string(reason)).
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

// String names the hub in supervisor logs.
func (h *Hub) String() string { return "websocket-hub" }

// Register queues a client for registration. It gives up when ctx ends
// first, which happens when the hub is not running.
func (h *Hub) Register(ctx context.Context, client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(n))
	logging.Info().Uint64("client_id", client.id).Int("total_clients", n).Msg("websocket client connected")
}

// unregister removes a client. Calling it for an unknown client is a no-op.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.WebSocketClients.Set(float64(n))
		logging.Info().Uint64("client_id", client.id).Int("total_clients", n).Msg("websocket client disconnected")
	}
}

// sendTo queues a message for one registered client without blocking.
func (h *Hub) sendTo(client *Client, message Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- message:
	default:
	}
}

// sortedClients returns clients in connection order. Caller holds h.mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// broadcastToClients sends a message to every client in connection order.
// Clients whose buffer is full are disconnected.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	var dropped int
	for _, client := range h.sortedClients() {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
			dropped++
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	if dropped > 0 {
		metrics.WebSocketClients.Set(float64(n))
		logging.Warn().Int("dropped", dropped).Msg("disconnected slow websocket clients")
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	for _, client := range h.sortedClients() {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	metrics.WebSocketClients.Set(0)
}

// Broadcast queues a message for all clients. It never blocks and reports
// false when the message was dropped.
func (h *Hub) Broadcast(message Message) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		logging.Warn().Str("message_type", message.Type).Msg("broadcast channel full, dropping message")
		return false
	}
}

// BroadcastChange sends one change message to all clients.
func (h *Hub) BroadcastChange(msg *publish.ChangeMessage) bool {
	return h.Broadcast(Message{Type: MessageTypeChange, Data: msg})
}

// Deliver streams a delivered change to connected clients.
func (h *Hub) Deliver(ctx context.Context, path string, rec models.ChangeRecord) error {
	msg := publish.NewChangeMessage(path, rec, logging.CorrelationIDFromContext(ctx), h.now())
	h.BroadcastChange(msg)
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
