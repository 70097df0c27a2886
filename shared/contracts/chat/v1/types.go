package v1

import "time"

// ConversationJoinPayload requests membership in a conversation room.
// Joining requires participation in the conversation.
type ConversationJoinPayload struct {
	ConversationID string `json:"conversationId"`
}

// ConversationLeavePayload leaves a conversation room.
type ConversationLeavePayload struct {
	ConversationID string `json:"conversationId"`
}

// MessageSendPayload submits a message into a conversation.
type MessageSendPayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// MessageNewPayload is broadcast to the conversation room, sender included.
type MessageNewPayload struct {
	MessageID         string    `json:"messageId"`
	ConversationID    string    `json:"conversationId"`
	SenderID          string    `json:"senderId"`
	SenderRole        string    `json:"senderRole,omitempty"`
	Content           string    `json:"content"`
	TranslatedContent string    `json:"translatedContent"`
	SourceLanguage    string    `json:"sourceLanguage,omitempty"`
	TargetLanguage    string    `json:"targetLanguage,omitempty"`
	IsTranslated      bool      `json:"isTranslated"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ConversationUpdatedPayload refreshes one participant's listing entry.
// Language carries that participant's own preference so each side gets its
// own framing of the same update.
type ConversationUpdatedPayload struct {
	ConversationID string     `json:"conversationId"`
	LastMessage    string     `json:"lastMessage"`
	LastMessageAt  *time.Time `json:"lastMessageAt,omitempty"`
	Language       string     `json:"language,omitempty"`
	Counterpart    *Principal `json:"counterpart,omitempty"`
}

// Principal is the display framing of another participant.
type Principal struct {
	ID        string  `json:"id"`
	Role      string  `json:"role"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// UserActivePayload reports presence scoped to a conversation.
type UserActivePayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId,omitempty"`
	Active         bool   `json:"active"`
}

// TypingPayload relays a typing indicator scoped to a conversation.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId,omitempty"`
	IsTyping       bool   `json:"isTyping"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
