package chat

import (
	"sync"

	"world-chat/internal/metrics"
	"world-chat/internal/types"

	"github.com/rs/zerolog"
)

// Hub owns the live connections and their room membership and performs the
// fan-out. Sends never block: a receiver whose buffer is full is closed.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	metrics *metrics.Collectors
	log     zerolog.Logger
}

func NewHub(m *metrics.Collectors, log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		metrics: m,
		log:     log.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Debug().Str("conn", c.ID).Int("total", total).Msg("registered")
}

// Unregister removes c from the hub and every room.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, c.ID)
	for room, members := range h.rooms {
		if _, ok := members[c.ID]; !ok {
			continue
		}
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) JoinRoom(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[c.ID] = c
}

func (h *Hub) LeaveRoom(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) InRoom(room, connectionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][connectionID]
	return ok
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) Client(connectionID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connectionID]
	return c, ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToRoom encodes payload once and offers it to every member of room
// except excludeConnectionID. It returns how many receivers accepted it.
func (h *Hub) BroadcastToRoom(room, event string, payload any, excludeConnectionID string) int {
	frame, err := types.Encode(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encode failed")
		return 0
	}

	h.mu.RLock()
	receivers := make([]*Client, 0, len(h.rooms[room]))
	for id, c := range h.rooms[room] {
		if id != excludeConnectionID {
			receivers = append(receivers, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range receivers {
		if c.Enqueue(frame) {
			delivered++
			continue
		}
		h.metrics.SendDropped()
		if !c.IsClosed() {
			h.log.Warn().Str("conn", c.ID).Str("event", event).Msg("client buffer full, evicting slow consumer")
			c.Close()
		}
	}
	return delivered
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	h.log.Info().Int("clients", len(clients)).Msg("shutting down all client connections")
	for _, c := range clients {
		c.Close()
	}
}
