package chat

import (
	"strings"
	"time"

	"expertly/cmd/identity"
)

// Conversation is a two-party thread between its initiator (a regular
// account) and an expert. Language preferences are per participant, per
// conversation; empty means "no preference".
type Conversation struct {
	ID          string
	InitiatorID string
	ExpertID    string

	InitiatorLanguage string
	ExpertLanguage    string

	// LastMessage is a preview of the most recent message's original text.
	// Empty until the first message; the visibility rule keys off this.
	LastMessage   string
	LastMessageAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Participants returns both participant IDs, initiator first.
func (c Conversation) Participants() []string {
	return []string{c.InitiatorID, c.ExpertID}
}

// HasParticipant reports whether accountID belongs to this conversation.
func (c Conversation) HasParticipant(accountID string) bool {
	return accountID == c.InitiatorID || accountID == c.ExpertID
}

// Counterpart returns the other participant, or "" if accountID is not one.
func (c Conversation) Counterpart(accountID string) string {
	switch accountID {
	case c.InitiatorID:
		return c.ExpertID
	case c.ExpertID:
		return c.InitiatorID
	}
	return ""
}

// LanguageFor returns accountID's preference in this conversation.
func (c Conversation) LanguageFor(accountID string) string {
	switch accountID {
	case c.InitiatorID:
		return c.InitiatorLanguage
	case c.ExpertID:
		return c.ExpertLanguage
	}
	return ""
}

// VisibleTo implements the listing rule: a conversation shows up for a
// participant once it carries a message, and always for its initiator.
func (c Conversation) VisibleTo(accountID string) bool {
	if !c.HasParticipant(accountID) {
		return false
	}
	return c.LastMessage != "" || accountID == c.InitiatorID
}

// Message is one chat message, stored with its original text and an optional
// translated rendering for the receiving side.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderRole     identity.Role

	Content           string
	TranslatedContent string

	// SourceLanguage is the detected language of Content.
	SourceLanguage string
	// TargetLanguage is the language TranslatedContent was produced for.
	TargetLanguage string

	// IsTranslated is true only when TranslatedContent genuinely differs from
	// Content (ignoring case and surrounding whitespace).
	IsTranslated bool

	CreatedAt time.Time
}

// DisplayFor returns the text a given viewer should see: senders always see
// their original words; everyone else sees the translation when there is one
// and translation display is enabled.
func (m Message) DisplayFor(viewerID string, translationEnabled bool) string {
	if viewerID == m.SenderID {
		return m.Content
	}
	if translationEnabled && m.IsTranslated && m.TranslatedContent != "" {
		return m.TranslatedContent
	}
	return m.Content
}

// sameText reports whether two texts are equal ignoring case and surrounding
// whitespace. Used to decide whether a translation result actually changed
// anything.
func sameText(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
