package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
)

// InboundHandler receives frames sent by subscribers, typically user
// chat messages to relay into the session.
type InboundHandler func(data []byte)

// Hub maintains the subscribers of one chat session and broadcasts
// chat events to them.
type Hub struct {
	// session is the session ID this hub serves, for logging.
	session string

	clients map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	inbound InboundHandler

	mu sync.RWMutex
}

// New creates a hub for one session. inbound may be nil when
// subscribers are read-only.
func New(session string, inbound InboundHandler) *Hub {
	return &Hub{
		session:    session,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    inbound,
	}
}

// Run is the hub's main loop. Call it in a goroutine; it returns when
// ctx is cancelled, closing every subscriber.
func (h *Hub) Run(ctx context.Context) {
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
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("subscriber joined", "session", h.session, "subscribers", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("subscriber left", "session", h.session, "subscribers", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// The subscriber's buffer is full; drop it rather
					// than stall the session.
					close(client.send)
					delete(h.clients, client)
					log.Warn("dropped slow subscriber", "session", h.session)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for every subscriber. Messages are dropped
// when the broadcast queue is full.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		log.Warn("broadcast queue full, dropping message", "session", h.session)
	}
}

// BroadcastJSON encodes and broadcasts a JSON chat event.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// Session returns the session ID this hub serves.
func (h *Hub) Session() string { return h.session }

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) handleInbound(data []byte) {
	if h.inbound != nil {
		h.inbound(data)
	}
}
