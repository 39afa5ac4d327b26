package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

const clientBuffer = 64

// Client is one live subscriber. Outbound is closed when the client is
// removed from the hub.
type Client struct {
	ID       uuid.UUID
	Outbound chan Event

	channels map[string]bool
	once     sync.Once
}

// Hub fans events out to the clients subscribed to their channel. A client
// whose buffer is full misses the event rather than blocking the publisher.
type Hub struct {
	log     *logger.Logger
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:     logger.OrNop(log).With("component", "realtime_hub"),
		clients: map[uuid.UUID]*Client{},
	}
}

func (h *Hub) NewClient() *Client {
	c := &Client{
		ID:       uuid.New(),
		Outbound: make(chan Event, clientBuffer),
		channels: map[string]bool{},
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) Subscribe(c *Client, channel string) {
	if c == nil || channel == "" {
		return
	}
	h.mu.Lock()
	c.channels[channel] = true
	h.mu.Unlock()
}

func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.channels[ev.Channel] {
			continue
		}
		select {
		case c.Outbound <- ev:
		default:
			h.log.Warn("client buffer full, dropping event", "client_id", c.ID.String(), "event", string(ev.Type))
		}
	}
}

func (h *Hub) CloseClient(c *Client) {
	if c == nil {
		return
	}
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	c.once.Do(func() { close(c.Outbound) })
}

// ClientCount is the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
