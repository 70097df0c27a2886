package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"expertly/cmd/identity"
	"expertly/cmd/internal/translate"
)

// ErrTranslationUnavailable is returned by on-demand translation when the
// backend fails; delivery-time translation never surfaces it (it degrades).
var ErrTranslationUnavailable = errors.New("translation_unavailable")

// Service implements conversation operations and the message pipeline.
type Service struct {
	store      Store
	accounts   identity.Store
	translator translate.Service
	logger     *slog.Logger
	now        func() time.Time
}

// NewService wires the chat service.
func NewService(store Store, accounts identity.Store, translator translate.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if translator == nil {
		translator = translate.Noop{}
	}
	return &Service{
		store:      store,
		accounts:   accounts,
		translator: translator,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateOrGet returns the conversation between requester and counterpart,
// creating it if absent. The counterpart must be an expert; conversations
// with oneself or with other regular accounts are rejected.
func (s *Service) CreateOrGet(ctx context.Context, requesterID, counterpartID string) (Conversation, bool, error) {
	const op = "chat.CreateOrGet"

	if requesterID == counterpartID {
		return Conversation{}, false, OpError{Op: op, Kind: ErrInvalidInput, Msg: "cannot start a conversation with yourself"}
	}

	counterpart, err := s.accounts.GetAccount(ctx, counterpartID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Conversation{}, false, NotFoundError{Op: op, Resource: "account"}
		}
		return Conversation{}, false, err
	}
	if counterpart.Role != identity.RoleExpert {
		return Conversation{}, false, ForbiddenError{Op: op, Msg: "conversations can only be started with experts"}
	}

	if existing, err := s.store.FindConversationByPair(ctx, requesterID, counterpartID); err == nil {
		return existing, false, nil
	} else if !IsNotFound(err) {
		return Conversation{}, false, err
	}

	conv, err := s.store.CreateConversation(ctx, Conversation{
		InitiatorID: requesterID,
		ExpertID:    counterpartID,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return Conversation{}, false, err
	}
	return conv, true, nil
}

// List returns the requester's conversations under the visibility rule:
// threads with at least one message, plus empty threads they initiated.
func (s *Service) List(ctx context.Context, requesterID string) ([]Conversation, error) {
	all, err := s.store.ListConversationsFor(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	out := make([]Conversation, 0, len(all))
	for _, conv := range all {
		if conv.VisibleTo(requesterID) {
			out = append(out, conv)
		}
	}
	return out, nil
}

// Get returns one conversation; participants only.
func (s *Service) Get(ctx context.Context, requesterID, conversationID string) (Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return Conversation{}, err
	}
	if !conv.HasParticipant(requesterID) {
		return Conversation{}, ForbiddenError{Op: "chat.Get", Msg: "not a participant"}
	}
	return conv, nil
}

// Messages returns a conversation's messages, oldest first; participants only.
func (s *Service) Messages(ctx context.Context, requesterID, conversationID string) ([]Message, error) {
	if _, err := s.Get(ctx, requesterID, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// SetLanguagePreference records the requester's per-conversation language.
// Empty clears the preference (messages then arrive untranslated).
func (s *Service) SetLanguagePreference(ctx context.Context, requesterID, conversationID, language string) (Conversation, error) {
	lang := identity.NormalizeLanguage(language)
	err := s.store.SetConversationLanguage(ctx, conversationID, requesterID, lang, s.now())
	if err != nil {
		return Conversation{}, err
	}
	return s.store.GetConversation(ctx, conversationID)
}

// DeleteAllFor removes every conversation the account participates in,
// together with those conversations' messages and nothing else. Returns the
// number of conversations and messages removed.
func (s *Service) DeleteAllFor(ctx context.Context, accountID string) (int, int, error) {
	ids, err := s.store.ConversationIDsFor(ctx, accountID)
	if err != nil {
		return 0, 0, err
	}
	if len(ids) == 0 {
		return 0, 0, nil
	}
	messages, err := s.store.DeleteConversations(ctx, ids)
	if err != nil {
		return 0, 0, err
	}
	return len(ids), messages, nil
}

// Send runs the full message pipeline: validate, re-read preferences, detect
// the language, decide on translation, translate best-effort, persist, and
// bump the conversation's last-message preview.
func (s *Service) Send(ctx context.Context, senderID, conversationID, content string) (Message, Conversation, error) {
	const op = "chat.Send"

	if strings.TrimSpace(content) == "" {
		return Message{}, Conversation{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty message"}
	}

	// Preferences are re-read here rather than cached at connect time, so a
	// preference change applies to the very next message.
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return Message{}, Conversation{}, err
	}
	if !conv.HasParticipant(senderID) {
		return Message{}, Conversation{}, ForbiddenError{Op: op, Msg: "not a participant"}
	}
	receiverID := conv.Counterpart(senderID)

	senderRole := identity.RoleUser
	if acc, err := s.accounts.GetAccount(ctx, senderID); err == nil {
		senderRole = acc.Role
	} else if !identity.IsNotFound(err) {
		// An absent account still defaults to the user role; a failing
		// account store must not mislabel history.
		return Message{}, Conversation{}, err
	}

	senderPref := s.effectiveLanguage(ctx, conv, senderID)
	receiverPref := s.effectiveLanguage(ctx, conv, receiverID)

	detected := s.detectLanguage(ctx, content)

	msg := Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderRole:     senderRole,
		Content:        content,
		SourceLanguage: detected,
		CreatedAt:      s.now(),
	}

	switch d := decideTranslation(detected, senderPref, receiverPref); {
	case d.snapshot:
		msg.TranslatedContent = content
		msg.TargetLanguage = d.target
		translationsTotal.WithLabelValues("snapshot").Inc()

	case d.translate:
		result, err := s.translator.Translate(ctx, content, d.source, d.target)
		if err != nil {
			// Degraded delivery: the original text still goes through.
			s.logger.Warn("translation degraded",
				slog.String("conversation_id", conversationID),
				slog.String("target", d.target),
				slog.String("error", err.Error()))
			translationsTotal.WithLabelValues("degraded").Inc()
			break
		}
		msg.TranslatedContent = result
		msg.TargetLanguage = d.target
		msg.IsTranslated = !sameText(result, content)
		translationsTotal.WithLabelValues("ok").Inc()

	default:
		translationsTotal.WithLabelValues("skipped").Inc()
	}

	saved, err := s.store.AppendMessage(ctx, msg)
	if err != nil {
		return Message{}, Conversation{}, err
	}
	messagesTotal.Inc()

	if err := s.store.TouchLastMessage(ctx, conversationID, content, saved.CreatedAt); err != nil {
		return Message{}, Conversation{}, err
	}
	conv.LastMessage = content
	conv.LastMessageAt = &saved.CreatedAt
	conv.UpdatedAt = saved.CreatedAt

	return saved, conv, nil
}

// TranslateMessage re-translates an existing message into target on demand
// and overwrites its stored rendering. Unlike delivery-time translation this
// is not best-effort: the caller asked for it, so failure is an error.
func (s *Service) TranslateMessage(ctx context.Context, requesterID, messageID, target string) (Message, error) {
	const op = "chat.TranslateMessage"

	target = identity.NormalizeLanguage(target)
	if target == "" {
		return Message{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "target language required"}
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return Message{}, err
	}
	if _, err := s.Get(ctx, requesterID, msg.ConversationID); err != nil {
		return Message{}, err
	}

	source := msg.SourceLanguage
	if source == "" {
		source = translate.Auto
	}
	result, err := s.translator.Translate(ctx, msg.Content, source, target)
	if err != nil {
		translationsTotal.WithLabelValues("on_demand_failed").Inc()
		return Message{}, OpError{Op: op, Kind: ErrTranslationUnavailable, Msg: err.Error()}
	}

	translationsTotal.WithLabelValues("on_demand").Inc()
	return s.store.UpdateMessageTranslation(ctx, messageID, result, target, true)
}

// effectiveLanguage resolves a participant's preference: the per-conversation
// setting wins, then the account-level default, then none.
func (s *Service) effectiveLanguage(ctx context.Context, conv Conversation, accountID string) string {
	if lang := identity.NormalizeLanguage(conv.LanguageFor(accountID)); lang != "" {
		return lang
	}
	acc, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return ""
	}
	return identity.NormalizeLanguage(acc.PreferredLanguage)
}

// detectLanguage classifies content, falling back to English when detection
// fails or returns nothing.
func (s *Service) detectLanguage(ctx context.Context, content string) string {
	d, err := s.translator.Detect(ctx, content)
	if err != nil || d.Language == "" {
		if err != nil {
			s.logger.Debug("language detection failed", slog.String("error", err.Error()))
		}
		return "en"
	}
	return identity.NormalizeLanguage(d.Language)
}
