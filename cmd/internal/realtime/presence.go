package realtime

import (
	"context"
	"sync"
	"time"
)

// PresenceStore tracks which accounts are active in which conversations.
//
// Touch marks an account active in a conversation; the mark expires after
// the active window. Deactivate clears every mark for an account (called on
// disconnect). Implementations must be safe for concurrent use.
type PresenceStore interface {
	Touch(ctx context.Context, userID, conversationID string, now time.Time) error
	ActiveIn(ctx context.Context, userID, conversationID string, now time.Time) (bool, error)
	Deactivate(ctx context.Context, userID string) error
}

// MemoryPresence is the single-process PresenceStore. Entries are evicted
// lazily on read and on Touch.
type MemoryPresence struct {
	window time.Duration
	evict  time.Duration

	mu    sync.Mutex
	users map[string]map[string]time.Time // user id -> conversation id -> last active
}

// NewMemoryPresence builds a MemoryPresence with the default windows.
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{
		window: presenceActiveWindow,
		evict:  presenceEvictAfter,
		users:  make(map[string]map[string]time.Time),
	}
}

var _ PresenceStore = (*MemoryPresence)(nil)

func (p *MemoryPresence) Touch(_ context.Context, userID, conversationID string, now time.Time) error {
	if userID == "" || conversationID == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	convs, ok := p.users[userID]
	if !ok {
		convs = make(map[string]time.Time)
		p.users[userID] = convs
	}
	convs[conversationID] = now

	for conv, last := range convs {
		if now.Sub(last) > p.evict {
			delete(convs, conv)
		}
	}
	return nil
}

func (p *MemoryPresence) ActiveIn(_ context.Context, userID, conversationID string, now time.Time) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	convs, ok := p.users[userID]
	if !ok {
		return false, nil
	}
	last, ok := convs[conversationID]
	if !ok {
		return false, nil
	}
	if now.Sub(last) > p.evict {
		delete(convs, conversationID)
		if len(convs) == 0 {
			delete(p.users, userID)
		}
		return false, nil
	}
	return now.Sub(last) <= p.window, nil
}

func (p *MemoryPresence) Deactivate(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.users, userID)
	return nil
}
