package chat

import (
	"context"
	"time"
)

// Store is the conversation/message persistence boundary.
//
// Deletion contract: DeleteConversations removes exactly the listed
// conversations and the messages belonging to them, nothing else, and
// reports how many messages went with them. Callers precompute the ID set
// (ConversationIDsFor) so account-wide deletion can never leak into threads
// the account is not part of.
type Store interface {
	CreateConversation(ctx context.Context, conv Conversation) (Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	FindConversationByPair(ctx context.Context, a, b string) (Conversation, error)
	ListConversationsFor(ctx context.Context, accountID string) ([]Conversation, error)
	ConversationIDsFor(ctx context.Context, accountID string) ([]string, error)

	SetConversationLanguage(ctx context.Context, conversationID, accountID, language string, now time.Time) error
	TouchLastMessage(ctx context.Context, conversationID, preview string, at time.Time) error

	AppendMessage(ctx context.Context, msg Message) (Message, error)
	GetMessage(ctx context.Context, id string) (Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	UpdateMessageTranslation(ctx context.Context, messageID, translated, targetLanguage string, isTranslated bool) (Message, error)

	DeleteConversations(ctx context.Context, ids []string) (int, error)
}
