package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"expertly/cmd/identity"
	"expertly/cmd/internal/auth/session"
	"expertly/cmd/internal/chat"
	"expertly/cmd/internal/realtime"
	"expertly/cmd/internal/translate"
)

type staticVerifier map[string]session.Principal

func (v staticVerifier) VerifyAccess(raw string) (session.Principal, error) {
	p, ok := v[raw]
	if !ok {
		return session.Principal{}, session.ErrInvalidToken
	}
	return p, nil
}

// prefixTranslator translates by tagging text with the target language and
// can be flipped into a failing backend.
type prefixTranslator struct {
	fail bool
}

func (t *prefixTranslator) Detect(context.Context, string) (translate.Detection, error) {
	return translate.Detection{Language: "en", Confidence: 0.9}, nil
}

func (t *prefixTranslator) Translate(_ context.Context, text, _, target string) (string, error) {
	if t.fail {
		return "", errors.New("backend down")
	}
	return "[" + target + "] " + text, nil
}

type fixture struct {
	mux      *http.ServeMux
	handler  *Handler
	accounts *identity.MemoryStore
	chat     *chat.Service
	backend  *prefixTranslator
	presence realtime.PresenceStore

	user   identity.Account
	expert identity.Account
	other  identity.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := slog.New(slog.DiscardHandler)
	accounts := identity.NewMemoryStore()
	backend := &prefixTranslator{}
	svc := chat.NewService(chat.NewMemoryStore(), accounts, backend, log)
	presence := realtime.NewMemoryPresence()

	mk := func(name string, role identity.Role) identity.Account {
		acc, err := accounts.CreateAccount(context.Background(), identity.CreateAccountInput{
			Username: name, Email: name + "@example.com", PasswordHash: "x", Role: role,
		})
		if err != nil {
			t.Fatalf("CreateAccount(%s): %v", name, err)
		}
		return acc
	}
	user := mk("alice", identity.RoleUser)
	expert := mk("drlee", identity.RoleExpert)
	other := mk("bob", identity.RoleUser)

	if _, err := accounts.UpsertExpertProfile(context.Background(), identity.ExpertProfile{
		AccountID: expert.ID, FullName: "Dr. Lee", Headline: "Cardiologist", Skills: []string{"cardiology"},
	}); err != nil {
		t.Fatalf("UpsertExpertProfile: %v", err)
	}

	verifier := staticVerifier{}
	for _, acc := range []identity.Account{user, expert, other} {
		verifier[acc.Username+"-token"] = session.Principal{AccountID: acc.ID, Role: acc.Role}
	}

	h := NewHandler(log, svc, accounts, verifier, presence)
	mux := http.NewServeMux()
	h.Register(mux)

	return &fixture{
		mux: mux, handler: h, accounts: accounts, chat: svc, backend: backend,
		presence: presence, user: user, expert: expert, other: other,
	}
}

func (f *fixture) do(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rec.Body.String())
	}
	return v
}

func (f *fixture) startConversation(t *testing.T) string {
	t.Helper()
	rec := f.do(t, "alice-token", http.MethodPost, "/chat/conversations", createConversationRequest{ExpertID: f.expert.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create conversation: status=%d body=%s", rec.Code, rec.Body.String())
	}
	return decodeInto[createConversationResponse](t, rec).Conversation.ID
}

func TestRequiresAuth(t *testing.T) {
	f := newFixture(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/chat/conversations"},
		{http.MethodGet, "/experts"},
		{http.MethodPost, "/activity/ping"},
	} {
		rec := f.do(t, "", route.method, route.path, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: status=%d", route.method, route.path, rec.Code)
		}
	}

	rec := f.do(t, "bad-token", http.MethodGet, "/chat/conversations", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status=%d", rec.Code)
	}
}

func TestCreateConversation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "alice-token", http.MethodPost, "/chat/conversations", createConversationRequest{ExpertID: f.expert.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeInto[createConversationResponse](t, rec)
	if !resp.Created {
		t.Fatalf("created=false on first call")
	}
	if resp.Conversation.Counterpart == nil || resp.Conversation.Counterpart.Name != "Dr. Lee" {
		t.Fatalf("counterpart=%+v", resp.Conversation.Counterpart)
	}

	// Same pair again: the existing thread comes back.
	rec = f.do(t, "alice-token", http.MethodPost, "/chat/conversations", createConversationRequest{ExpertID: f.expert.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat: status=%d", rec.Code)
	}
	again := decodeInto[createConversationResponse](t, rec)
	if again.Created || again.Conversation.ID != resp.Conversation.ID {
		t.Fatalf("repeat=%+v", again)
	}

	// Regular accounts are not valid counterparts.
	rec = f.do(t, "alice-token", http.MethodPost, "/chat/conversations", createConversationRequest{ExpertID: f.other.ID})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-expert counterpart: status=%d", rec.Code)
	}
}

func TestListVisibility(t *testing.T) {
	f := newFixture(t)
	convID := f.startConversation(t)

	// Empty conversation: visible to the initiator, hidden from the expert.
	rec := f.do(t, "alice-token", http.MethodGet, "/chat/conversations", nil)
	if n := len(decodeInto[conversationListResponse](t, rec).Conversations); n != 1 {
		t.Fatalf("initiator sees %d conversations", n)
	}
	rec = f.do(t, "drlee-token", http.MethodGet, "/chat/conversations", nil)
	if n := len(decodeInto[conversationListResponse](t, rec).Conversations); n != 0 {
		t.Fatalf("expert sees %d empty conversations", n)
	}

	rec = f.do(t, "alice-token", http.MethodPost, "/chat/conversations/"+convID+"/messages", sendMessageRequest{Content: "hello"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, "drlee-token", http.MethodGet, "/chat/conversations", nil)
	list := decodeInto[conversationListResponse](t, rec).Conversations
	if len(list) != 1 || list[0].LastMessage != "hello" {
		t.Fatalf("expert list after message=%+v", list)
	}
}

func TestConversationAccessIsParticipantOnly(t *testing.T) {
	f := newFixture(t)
	convID := f.startConversation(t)

	rec := f.do(t, "bob-token", http.MethodGet, "/chat/conversations/"+convID, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider get: status=%d", rec.Code)
	}
	rec = f.do(t, "bob-token", http.MethodPost, "/chat/conversations/"+convID+"/messages", sendMessageRequest{Content: "hi"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider send: status=%d", rec.Code)
	}
	rec = f.do(t, "alice-token", http.MethodGet, "/chat/conversations/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing conversation: status=%d", rec.Code)
	}
}

func TestLanguagePreferenceDrivesTranslation(t *testing.T) {
	f := newFixture(t)
	convID := f.startConversation(t)

	rec := f.do(t, "drlee-token", http.MethodPut, "/chat/conversations/"+convID+"/language", setLanguageRequest{Language: "FA"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set language: status=%d body=%s", rec.Code, rec.Body.String())
	}
	if lang := decodeInto[conversationResponse](t, rec).Language; lang != "fa" {
		t.Fatalf("language=%q", lang)
	}

	// Outsiders cannot set preferences.
	rec = f.do(t, "bob-token", http.MethodPut, "/chat/conversations/"+convID+"/language", setLanguageRequest{Language: "fa"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider set language: status=%d", rec.Code)
	}

	rec = f.do(t, "alice-token", http.MethodPost, "/chat/conversations/"+convID+"/messages", sendMessageRequest{Content: "hello doctor"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: status=%d", rec.Code)
	}
	sent := decodeInto[sendMessageResponse](t, rec)
	if !sent.Message.IsTranslated || sent.Message.TargetLanguage != "fa" {
		t.Fatalf("message=%+v", sent.Message)
	}
	// The sender always reads their own words.
	if sent.Message.DisplayContent != "hello doctor" {
		t.Fatalf("sender display=%q", sent.Message.DisplayContent)
	}

	// The expert reads the translation.
	rec = f.do(t, "drlee-token", http.MethodGet, "/chat/conversations/"+convID+"/messages", nil)
	msgs := decodeInto[messageListResponse](t, rec).Messages
	if len(msgs) != 1 || msgs[0].DisplayContent != "[fa] hello doctor" {
		t.Fatalf("expert view=%+v", msgs)
	}
}

func TestTranslateMessageOnDemand(t *testing.T) {
	f := newFixture(t)
	convID := f.startConversation(t)

	rec := f.do(t, "alice-token", http.MethodPost, "/chat/conversations/"+convID+"/messages", sendMessageRequest{Content: "hello"})
	msgID := decodeInto[sendMessageResponse](t, rec).Message.ID

	rec = f.do(t, "drlee-token", http.MethodPost, "/chat/messages/"+msgID+"/translate", translateMessageRequest{TargetLanguage: "de"})
	if rec.Code != http.StatusOK {
		t.Fatalf("translate: status=%d body=%s", rec.Code, rec.Body.String())
	}
	got := decodeInto[messageResponse](t, rec)
	if got.TranslatedContent != "[de] hello" || !got.IsTranslated {
		t.Fatalf("translated=%+v", got)
	}

	// Outsiders cannot translate other people's messages.
	rec = f.do(t, "bob-token", http.MethodPost, "/chat/messages/"+msgID+"/translate", translateMessageRequest{TargetLanguage: "de"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider translate: status=%d", rec.Code)
	}

	// A dead backend surfaces as service unavailability, not silence.
	f.backend.fail = true
	rec = f.do(t, "drlee-token", http.MethodPost, "/chat/messages/"+msgID+"/translate", translateMessageRequest{TargetLanguage: "fr"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("backend down: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Error.Code != "translation_unavailable" {
		t.Fatalf("error body=%s", rec.Body.String())
	}
}

func TestDeleteAllConversations(t *testing.T) {
	f := newFixture(t)
	convID := f.startConversation(t)
	f.do(t, "alice-token", http.MethodPost, "/chat/conversations/"+convID+"/messages", sendMessageRequest{Content: "hello"})

	rec := f.do(t, "alice-token", http.MethodDelete, "/chat/conversations/all", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	deleted := decodeInto[deleteAllResponse](t, rec)
	if deleted.DeletedConversations != 1 || deleted.DeletedMessages != 1 {
		t.Fatalf("deleted=%+v", deleted)
	}

	rec = f.do(t, "alice-token", http.MethodGet, "/chat/conversations", nil)
	if n := len(decodeInto[conversationListResponse](t, rec).Conversations); n != 0 {
		t.Fatalf("%d conversations survived", n)
	}
}

func TestExpertDirectory(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "alice-token", http.MethodGet, "/experts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status=%d", rec.Code)
	}
	experts := decodeInto[expertListResponse](t, rec).Experts
	if len(experts) != 1 || experts[0].FullName != "Dr. Lee" {
		t.Fatalf("experts=%+v", experts)
	}

	rec = f.do(t, "alice-token", http.MethodGet, "/experts/"+f.expert.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status=%d", rec.Code)
	}
	if got := decodeInto[expertResponse](t, rec); got.Headline != "Cardiologist" {
		t.Fatalf("expert=%+v", got)
	}

	// Regular accounts are not in the directory.
	rec = f.do(t, "alice-token", http.MethodGet, "/experts/"+f.other.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("non-expert: status=%d", rec.Code)
	}
}

func TestActivityPingAndLookup(t *testing.T) {
	f := newFixture(t)
	convID := f.startConversation(t)

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	f.handler.WithClock(func() time.Time { return base })

	rec := f.do(t, "alice-token", http.MethodPost, "/activity/ping", pingRequest{ConversationID: convID})
	if rec.Code != http.StatusOK {
		t.Fatalf("ping: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, "drlee-token", http.MethodGet, "/activity/"+f.user.ID+"/active/"+convID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup: status=%d", rec.Code)
	}
	if got := decodeInto[activityResponse](t, rec); !got.Active {
		t.Fatalf("active=%v", got.Active)
	}

	// The mark ages out.
	f.handler.WithClock(func() time.Time { return base.Add(10 * time.Minute) })
	rec = f.do(t, "drlee-token", http.MethodGet, "/activity/"+f.user.ID+"/active/"+convID, nil)
	if got := decodeInto[activityResponse](t, rec); got.Active {
		t.Fatalf("stale mark still active")
	}

	// Outsiders cannot probe activity in threads they are not part of.
	rec = f.do(t, "bob-token", http.MethodGet, "/activity/"+f.user.ID+"/active/"+convID, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider lookup: status=%d", rec.Code)
	}
}
