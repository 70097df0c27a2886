package realtime

import (
	"log/slog"
	"sync"

	v1 "expertly/shared/contracts/chat/v1"
)

// Hub owns in-memory rooms and personal channels. It is intentionally
// minimal: persistence and authorization live behind the chat service.
type Hub struct {
	log *slog.Logger

	mu       sync.RWMutex
	rooms    map[string]*Room
	personal map[string]map[string]*Client // user id -> session id -> client
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:      log,
		rooms:    make(map[string]*Room),
		personal: make(map[string]map[string]*Client),
	}
}

// Room returns a stable room handle for a conversation id.
func (h *Hub) Room(conversationID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[conversationID]; ok {
		return r
	}
	r := NewRoom(h.log, conversationID)
	h.rooms[conversationID] = r
	return r
}

// Connect registers a client on its personal channel. Every connection of the
// same account receives that account's conversation_updated deliveries.
func (h *Hub) Connect(client *Client) {
	if client == nil || client.UserID == "" {
		return
	}

	h.mu.Lock()
	sessions, ok := h.personal[client.UserID]
	if !ok {
		sessions = make(map[string]*Client)
		h.personal[client.UserID] = sessions
	}
	sessions[client.SessionID] = client
	h.mu.Unlock()

	h.log.Debug("hub.connect", "user_id", client.UserID, "session_id", client.SessionID)
}

// Disconnect removes a client from its personal channel and from all rooms.
func (h *Hub) Disconnect(client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	if sessions, ok := h.personal[client.UserID]; ok {
		delete(sessions, client.SessionID)
		if len(sessions) == 0 {
			delete(h.personal, client.UserID)
		}
	}
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		r.Leave(client.SessionID)
	}

	h.log.Debug("hub.disconnect", "user_id", client.UserID, "session_id", client.SessionID)
}

// SendToUser delivers an envelope to every session of one account.
// Non-blocking per session; reports whether at least one session took it.
func (h *Hub) SendToUser(userID string, env v1.Envelope) bool {
	h.mu.RLock()
	sessions := h.personal[userID]
	clients := make([]*Client, 0, len(sessions))
	for _, c := range sessions {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	delivered := false
	for _, c := range clients {
		if c.TrySend(env) {
			delivered = true
		}
	}
	return delivered
}
