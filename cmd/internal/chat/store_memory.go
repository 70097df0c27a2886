package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"expertly/cmd/identity/ids"
)

// MemoryStore is an in-memory Store for tests and local development.
// Safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	conversations map[string]Conversation
	messages      map[string][]Message // conversation id -> messages, oldest first
	byMessageID   map[string]string    // message id -> conversation id
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
		byMessageID:   make(map[string]string),
	}
}

var _ Store = (*MemoryStore)(nil)

func pairKeyMatch(c Conversation, a, b string) bool {
	return (c.InitiatorID == a && c.ExpertID == b) || (c.InitiatorID == b && c.ExpertID == a)
}

func (s *MemoryStore) CreateConversation(_ context.Context, conv Conversation) (Conversation, error) {
	const op = "chat.CreateConversation"

	if conv.InitiatorID == "" || conv.ExpertID == "" || conv.InitiatorID == conv.ExpertID {
		return Conversation{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "two distinct participants required"}
	}

	now := conv.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.conversations {
		if pairKeyMatch(existing, conv.InitiatorID, conv.ExpertID) {
			return existing, nil
		}
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Conversation{}, err
	}
	conv.ID = id
	conv.CreatedAt = now
	conv.UpdatedAt = now
	s.conversations[id] = conv
	return conv, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return Conversation{}, NotFoundError{Op: "chat.GetConversation", Resource: "conversation"}
	}
	return conv, nil
}

func (s *MemoryStore) FindConversationByPair(_ context.Context, a, b string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conv := range s.conversations {
		if pairKeyMatch(conv, a, b) {
			return conv, nil
		}
	}
	return Conversation{}, NotFoundError{Op: "chat.FindConversationByPair", Resource: "conversation"}
}

func (s *MemoryStore) ListConversationsFor(_ context.Context, accountID string) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Conversation
	for _, conv := range s.conversations {
		if conv.HasParticipant(accountID) {
			out = append(out, conv)
		}
	}
	// Most recent activity first; untouched conversations by creation time.
	sort.Slice(out, func(i, j int) bool {
		return activityTime(out[i]).After(activityTime(out[j]))
	})
	return out, nil
}

func activityTime(c Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

func (s *MemoryStore) ConversationIDsFor(_ context.Context, accountID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for id, conv := range s.conversations {
		if conv.HasParticipant(accountID) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) SetConversationLanguage(_ context.Context, conversationID, accountID, language string, now time.Time) error {
	const op = "chat.SetConversationLanguage"

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return NotFoundError{Op: op, Resource: "conversation"}
	}
	switch accountID {
	case conv.InitiatorID:
		conv.InitiatorLanguage = language
	case conv.ExpertID:
		conv.ExpertLanguage = language
	default:
		return ForbiddenError{Op: op, Msg: "not a participant"}
	}
	conv.UpdatedAt = now
	s.conversations[conversationID] = conv
	return nil
}

func (s *MemoryStore) TouchLastMessage(_ context.Context, conversationID, preview string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return NotFoundError{Op: "chat.TouchLastMessage", Resource: "conversation"}
	}
	conv.LastMessage = preview
	conv.LastMessageAt = &at
	conv.UpdatedAt = at
	s.conversations[conversationID] = conv
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg Message) (Message, error) {
	const op = "chat.AppendMessage"

	if msg.ConversationID == "" || msg.SenderID == "" || msg.Content == "" {
		return Message{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "conversation, sender and content required"}
	}

	now := msg.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return Message{}, NotFoundError{Op: op, Resource: "conversation"}
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Message{}, err
	}
	msg.ID = id
	msg.CreatedAt = now
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	s.byMessageID[id] = msg.ConversationID
	return msg, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convID, ok := s.byMessageID[id]
	if !ok {
		return Message{}, NotFoundError{Op: "chat.GetMessage", Resource: "message"}
	}
	for _, msg := range s.messages[convID] {
		if msg.ID == id {
			return msg, nil
		}
	}
	return Message{}, NotFoundError{Op: "chat.GetMessage", Resource: "message"}
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, NotFoundError{Op: "chat.ListMessages", Resource: "conversation"}
	}
	return append([]Message(nil), s.messages[conversationID]...), nil
}

func (s *MemoryStore) UpdateMessageTranslation(_ context.Context, messageID, translated, targetLanguage string, isTranslated bool) (Message, error) {
	const op = "chat.UpdateMessageTranslation"

	s.mu.Lock()
	defer s.mu.Unlock()

	convID, ok := s.byMessageID[messageID]
	if !ok {
		return Message{}, NotFoundError{Op: op, Resource: "message"}
	}
	msgs := s.messages[convID]
	for i, msg := range msgs {
		if msg.ID == messageID {
			msg.TranslatedContent = translated
			msg.TargetLanguage = targetLanguage
			msg.IsTranslated = isTranslated
			msgs[i] = msg
			return msg, nil
		}
	}
	return Message{}, NotFoundError{Op: op, Resource: "message"}
}

func (s *MemoryStore) DeleteConversations(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		for _, msg := range s.messages[id] {
			delete(s.byMessageID, msg.ID)
			deleted++
		}
		delete(s.messages, id)
		delete(s.conversations, id)
	}
	return deleted, nil
}
