package chatapi

import (
	"time"

	"expertly/cmd/identity"
	"expertly/cmd/internal/chat"
)

type createConversationRequest struct {
	ExpertID string `json:"expertId"`
}

type setLanguageRequest struct {
	Language string `json:"language"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type translateMessageRequest struct {
	TargetLanguage string `json:"targetLanguage"`
}

type pingRequest struct {
	ConversationID string `json:"conversationId"`
}

// conversationResponse frames a conversation for one viewer: the counterpart
// is resolved to a display card and language is the viewer's own preference.
type conversationResponse struct {
	ID            string                    `json:"id"`
	Counterpart   *identity.ParticipantView `json:"counterpart,omitempty"`
	Language      string                    `json:"language,omitempty"`
	LastMessage   string                    `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time                `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time                 `json:"createdAt"`
}

type conversationListResponse struct {
	Conversations []conversationResponse `json:"conversations"`
}

type createConversationResponse struct {
	Conversation conversationResponse `json:"conversation"`
	Created      bool                 `json:"created"`
}

type messageResponse struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversationId"`
	SenderID          string    `json:"senderId"`
	SenderRole        string    `json:"senderRole,omitempty"`
	Content           string    `json:"content"`
	TranslatedContent string    `json:"translatedContent,omitempty"`
	SourceLanguage    string    `json:"sourceLanguage,omitempty"`
	TargetLanguage    string    `json:"targetLanguage,omitempty"`
	IsTranslated      bool      `json:"isTranslated"`
	DisplayContent    string    `json:"displayContent"`
	CreatedAt         time.Time `json:"createdAt"`
}

type messageListResponse struct {
	Messages []messageResponse `json:"messages"`
}

type sendMessageResponse struct {
	Message      messageResponse      `json:"message"`
	Conversation conversationResponse `json:"conversation"`
}

type deleteAllResponse struct {
	DeletedConversations int `json:"deletedConversations"`
	DeletedMessages      int `json:"deletedMessages"`
}

type expertResponse struct {
	ID                string   `json:"id"`
	Username          string   `json:"username"`
	FullName          string   `json:"fullName"`
	Headline          string   `json:"headline,omitempty"`
	Bio               string   `json:"bio,omitempty"`
	Skills            []string `json:"skills,omitempty"`
	ImageURL          *string  `json:"imageUrl,omitempty"`
	PreferredLanguage string   `json:"preferredLanguage,omitempty"`
}

type expertListResponse struct {
	Experts []expertResponse `json:"experts"`
}

type activityResponse struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Active         bool   `json:"active"`
}

func toMessageResponse(m chat.Message, viewerID string, translationEnabled bool) messageResponse {
	return messageResponse{
		ID:                m.ID,
		ConversationID:    m.ConversationID,
		SenderID:          m.SenderID,
		SenderRole:        string(m.SenderRole),
		Content:           m.Content,
		TranslatedContent: m.TranslatedContent,
		SourceLanguage:    m.SourceLanguage,
		TargetLanguage:    m.TargetLanguage,
		IsTranslated:      m.IsTranslated,
		DisplayContent:    m.DisplayFor(viewerID, translationEnabled),
		CreatedAt:         m.CreatedAt,
	}
}

func toExpertResponse(e identity.Expert) expertResponse {
	return expertResponse{
		ID:                e.Account.ID,
		Username:          e.Account.Username,
		FullName:          e.Profile.FullName,
		Headline:          e.Profile.Headline,
		Bio:               e.Profile.Bio,
		Skills:            e.Profile.Skills,
		ImageURL:          e.Profile.ImageURL,
		PreferredLanguage: e.Account.PreferredLanguage,
	}
}
