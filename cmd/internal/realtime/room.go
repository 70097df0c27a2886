package realtime

import (
	"log/slog"
	"sync"

	v1 "expertly/shared/contracts/chat/v1"
)

// Room is the in-memory fanout primitive for one conversation.
//
// Concurrency guarantees:
//   - Join/Leave are safe under concurrent Broadcast.
//   - Broadcast never blocks (drops under backpressure).
//   - Broadcast is panic-safe because Client.Send is never closed here.
//
// Unlike a client's lifetime, room membership is transient: clients join and
// leave rooms as the user navigates, so Leave does not shut the client down.
type Room struct {
	log *slog.Logger
	ID  string

	mu      sync.RWMutex
	members map[string]*Client
}

// NewRoom constructs a room for one conversation id.
func NewRoom(log *slog.Logger, id string) *Room {
	return &Room{
		log:     log,
		ID:      id,
		members: make(map[string]*Client),
	}
}

// Join adds a client to the room.
func (r *Room) Join(client *Client) {
	if r == nil || client == nil || client.SessionID == "" {
		return
	}

	r.mu.Lock()
	r.members[client.SessionID] = client
	r.mu.Unlock()

	r.log.Debug("room.member.join",
		"conversation_id", r.ID, "session_id", client.SessionID, "user_id", client.UserID)
}

// Leave removes a client from the room.
func (r *Room) Leave(sessionID string) {
	if r == nil || sessionID == "" {
		return
	}

	r.mu.Lock()
	delete(r.members, sessionID)
	r.mu.Unlock()

	r.log.Debug("room.member.leave", "conversation_id", r.ID, "session_id", sessionID)
}

// Has reports whether sessionID is currently in the room.
func (r *Room) Has(sessionID string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[sessionID]
	return ok
}

// Broadcast fanouts an envelope to every member, sender included.
func (r *Room) Broadcast(env v1.Envelope) {
	r.BroadcastExcept(env, "")
}

// BroadcastExcept fanouts an envelope to every member but exceptSessionID.
// Used for typing/user_active relays, which the originator does not need
// echoed back.
func (r *Room) BroadcastExcept(env v1.Envelope, exceptSessionID string) {
	if r == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for sid, m := range r.members {
		if m == nil || sid == exceptSessionID {
			continue
		}
		m.TrySend(env)
	}
}
