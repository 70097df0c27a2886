package chatapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"expertly/cmd/identity"
	"expertly/cmd/internal/auth/session"
	"expertly/cmd/internal/chat"
	"expertly/cmd/internal/realtime"
)

const (
	accessCookieName = "accessToken"
	maxMessageChars  = 4000
)

// AccessVerifier validates raw access tokens into principals.
type AccessVerifier interface {
	VerifyAccess(raw string) (session.Principal, error)
}

// Handler serves the conversation, expert directory and activity routes.
type Handler struct {
	log      *slog.Logger
	chat     *chat.Service
	accounts identity.Store
	resolver *identity.Resolver
	presence realtime.PresenceStore
	verifier AccessVerifier
	now      func() time.Time
}

// NewHandler constructs a chat API handler.
func NewHandler(log *slog.Logger, chatSvc *chat.Service, accounts identity.Store, verifier AccessVerifier, presence realtime.PresenceStore) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if presence == nil {
		presence = realtime.NewMemoryPresence()
	}
	return &Handler{
		log:      log,
		chat:     chatSvc,
		accounts: accounts,
		resolver: identity.NewResolver(accounts),
		presence: presence,
		verifier: verifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the handler clock. Test use only.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// Register wires the routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat/conversations", h.handleCreateConversation)
	mux.HandleFunc("GET /chat/conversations", h.handleListConversations)
	mux.HandleFunc("DELETE /chat/conversations/all", h.handleDeleteAll)
	mux.HandleFunc("GET /chat/conversations/{id}", h.handleGetConversation)
	mux.HandleFunc("GET /chat/conversations/{id}/messages", h.handleListMessages)
	mux.HandleFunc("POST /chat/conversations/{id}/messages", h.handleSendMessage)
	mux.HandleFunc("PUT /chat/conversations/{id}/language", h.handleSetLanguage)
	mux.HandleFunc("POST /chat/messages/{id}/translate", h.handleTranslateMessage)

	mux.HandleFunc("GET /experts", h.handleListExperts)
	mux.HandleFunc("GET /experts/{id}", h.handleGetExpert)

	mux.HandleFunc("POST /activity/ping", h.handlePing)
	mux.HandleFunc("GET /activity/{userId}/active/{conversationId}", h.handleActive)
}

// ---- conversations ----

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req createConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	conv, created, err := h.chat.CreateOrGet(r.Context(), principal.AccountID, strings.TrimSpace(req.ExpertID))
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, createConversationResponse{
		Conversation: h.toConversationResponse(r.Context(), conv, principal.AccountID),
		Created:      created,
	})
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	convs, err := h.chat.List(r.Context(), principal.AccountID)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	out := make([]conversationResponse, 0, len(convs))
	for _, conv := range convs {
		out = append(out, h.toConversationResponse(r.Context(), conv, principal.AccountID))
	}
	writeJSON(w, http.StatusOK, conversationListResponse{Conversations: out})
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	conv, err := h.chat.Get(r.Context(), principal.AccountID, r.PathValue("id"))
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toConversationResponse(r.Context(), conv, principal.AccountID))
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	conv, err := h.chat.Get(ctx, principal.AccountID, r.PathValue("id"))
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	msgs, err := h.chat.Messages(ctx, principal.AccountID, conv.ID)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	enabled := h.translationEnabled(ctx, conv, principal.AccountID)
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m, principal.AccountID, enabled))
	}
	writeJSON(w, http.StatusOK, messageListResponse{Messages: out})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if len([]rune(req.Content)) > maxMessageChars {
		writeError(w, http.StatusBadRequest, "validation_error", "message is too long")
		return
	}

	ctx := r.Context()
	msg, conv, err := h.chat.Send(ctx, principal.AccountID, r.PathValue("id"), req.Content)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	enabled := h.translationEnabled(ctx, conv, principal.AccountID)
	writeJSON(w, http.StatusCreated, sendMessageResponse{
		Message:      toMessageResponse(msg, principal.AccountID, enabled),
		Conversation: h.toConversationResponse(ctx, conv, principal.AccountID),
	})
}

func (h *Handler) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req setLanguageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	conv, err := h.chat.SetLanguagePreference(r.Context(), principal.AccountID, r.PathValue("id"), req.Language)
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toConversationResponse(r.Context(), conv, principal.AccountID))
}

func (h *Handler) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	conversations, messages, err := h.chat.DeleteAllFor(r.Context(), principal.AccountID)
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteAllResponse{
		DeletedConversations: conversations,
		DeletedMessages:      messages,
	})
}

func (h *Handler) handleTranslateMessage(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req translateMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	msg, err := h.chat.TranslateMessage(r.Context(), principal.AccountID, r.PathValue("id"), req.TargetLanguage)
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	// On-demand results always display as translations.
	writeJSON(w, http.StatusOK, toMessageResponse(msg, principal.AccountID, true))
}

// ---- expert directory ----

func (h *Handler) handleListExperts(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAuth(w, r); !ok {
		return
	}

	experts, err := h.accounts.ListExperts(r.Context())
	if err != nil {
		h.log.Error("chatapi.experts.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	out := make([]expertResponse, 0, len(experts))
	for _, e := range experts {
		out = append(out, toExpertResponse(e))
	}
	writeJSON(w, http.StatusOK, expertListResponse{Experts: out})
}

func (h *Handler) handleGetExpert(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAuth(w, r); !ok {
		return
	}

	ctx := r.Context()
	acc, err := h.accounts.GetAccount(ctx, r.PathValue("id"))
	if err != nil || acc.Role != identity.RoleExpert {
		writeError(w, http.StatusNotFound, "not_found", "expert not found")
		return
	}
	profile, err := h.accounts.GetExpertProfile(ctx, acc.ID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "expert not found")
			return
		}
		h.log.Error("chatapi.experts.get.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toExpertResponse(identity.Expert{Account: acc, Profile: profile}))
}

// ---- activity ----

func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req pingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	// Only participants can mark themselves active in a conversation.
	if _, err := h.chat.Get(ctx, principal.AccountID, strings.TrimSpace(req.ConversationID)); err != nil {
		h.writeChatError(w, err)
		return
	}
	if err := h.presence.Touch(ctx, principal.AccountID, strings.TrimSpace(req.ConversationID), h.now()); err != nil {
		h.log.Error("chatapi.activity.ping.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, activityResponse{
		UserID:         principal.AccountID,
		ConversationID: strings.TrimSpace(req.ConversationID),
		Active:         true,
	})
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	userID := r.PathValue("userId")
	conversationID := r.PathValue("conversationId")

	ctx := r.Context()
	// The asker must participate in the conversation they are probing.
	if _, err := h.chat.Get(ctx, principal.AccountID, conversationID); err != nil {
		h.writeChatError(w, err)
		return
	}
	active, err := h.presence.ActiveIn(ctx, userID, conversationID, h.now())
	if err != nil {
		h.log.Error("chatapi.activity.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, activityResponse{
		UserID:         userID,
		ConversationID: conversationID,
		Active:         active,
	})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.Principal, bool) {
	raw := bearerToken(r)
	if raw == "" {
		if c, err := r.Cookie(accessCookieName); err == nil {
			raw = strings.TrimSpace(c.Value)
		}
	}
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing access token")
		return session.Principal{}, false
	}
	principal, err := h.verifier.VerifyAccess(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid access token")
		return session.Principal{}, false
	}
	return principal, true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (h *Handler) toConversationResponse(ctx context.Context, conv chat.Conversation, viewerID string) conversationResponse {
	resp := conversationResponse{
		ID:            conv.ID,
		Language:      conv.LanguageFor(viewerID),
		LastMessage:   conv.LastMessage,
		LastMessageAt: conv.LastMessageAt,
		CreatedAt:     conv.CreatedAt,
	}
	if counterpartID := conv.Counterpart(viewerID); counterpartID != "" {
		if view, err := h.resolver.Resolve(ctx, counterpartID); err == nil {
			resp.Counterpart = &view
		}
	}
	return resp
}

// translationEnabled mirrors the delivery pipeline's preference lookup: the
// per-conversation choice wins, the account-level preference backs it up.
func (h *Handler) translationEnabled(ctx context.Context, conv chat.Conversation, viewerID string) bool {
	if conv.LanguageFor(viewerID) != "" {
		return true
	}
	acc, err := h.accounts.GetAccount(ctx, viewerID)
	return err == nil && acc.PreferredLanguage != ""
}

func (h *Handler) writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrTranslationUnavailable):
		writeError(w, http.StatusServiceUnavailable, "translation_unavailable", "translation backend unavailable")
	case chat.IsForbidden(err):
		writeError(w, http.StatusForbidden, "forbidden", "not allowed")
	case chat.IsNotFound(err) || identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case chat.IsInvalidInput(err) || identity.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "validation_error", "invalid input")
	default:
		h.log.Error("chatapi.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
