package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"expertly/cmd/identity"
	"expertly/cmd/internal/auth/session"
	"expertly/cmd/internal/chat"
	v1 "expertly/shared/contracts/chat/v1"
)

const (
	wsSubprotocolV1 = "expertly.chat.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// AccessVerifier authenticates the connect-time access token.
type AccessVerifier interface {
	VerifyAccess(raw string) (session.Principal, error)
}

// Messenger is the slice of the chat service the gateway needs.
type Messenger interface {
	Get(ctx context.Context, requesterID, conversationID string) (chat.Conversation, error)
	Send(ctx context.Context, senderID, conversationID, content string) (chat.Message, chat.Conversation, error)
}

// ParticipantResolver frames counterparts for conversation_updated payloads.
type ParticipantResolver interface {
	Resolve(ctx context.Context, accountID string) (identity.ParticipantView, error)
}

// WSGateway is the WebSocket entrypoint.
//
// It authenticates before the upgrade, enforces origin policy, subprotocol
// selection, rate limits and heartbeats, and routes validated envelopes to
// the chat service and the Hub.
type WSGateway struct {
	log      *slog.Logger
	hub      *Hub
	verifier AccessVerifier
	chat     Messenger
	resolver ParticipantResolver
	presence PresenceStore

	originRequired bool
	allowedOrigins []string
	// Derived for websocket.Accept origin checks: Accept authorizes same-host
	// origins by default, cross-origin needs OriginPatterns.
	originPatterns []string
	devInsecure    bool

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewWSGateway constructs a gateway with secure defaults.
func NewWSGateway(log *slog.Logger, hub *Hub, verifier AccessVerifier, chatSvc Messenger, resolver ParticipantResolver, presence PresenceStore) *WSGateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if hub == nil {
		hub = NewHub(log)
	}
	if presence == nil {
		presence = NewMemoryPresence()
	}

	g := &WSGateway{
		log:      log,
		hub:      hub,
		verifier: verifier,
		chat:     chatSvc,
		resolver: resolver,
		presence: presence,
	}

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification), not an origin policy.
	g.devInsecure = envBoolWS("EXPERTLY_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("EXPERTLY_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("EXPERTLY_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("EXPERTLY_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("EXPERTLY_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envIntWS("EXPERTLY_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("EXPERTLY_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("EXPERTLY_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("EXPERTLY_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("EXPERTLY_WS_RATE_WINDOW", rateLimitWindow)

	return g
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// connectToken extracts the access token from the upgrade request:
// Authorization bearer, then ?token=, then the access cookie.
func connectToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if tok := strings.TrimSpace(r.URL.Query().Get("token")); tok != "" {
		return tok
	}
	if c, err := r.Cookie("accessToken"); err == nil {
		return c.Value
	}
	return ""
}

// HandleWS authenticates, upgrades and runs the realtime loop.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Authenticate before the upgrade: unauthenticated sockets never connect.
	principal, err := g.verifier.VerifyAccess(connectToken(r))
	if err != nil {
		g.log.Info("ws.reject.auth", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := NewSessionID(time.Now().UTC())
	if err != nil {
		sessionID = NewRandomHex(13)
	}
	client := NewClient(principal.AccountID, sessionID, g.sendQueueSize)
	g.hub.Connect(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	joined := make(map[string]*Room)

	var closeOnce sync.Once
	// shutdown is idempotent. It does NOT close client.Send: membership
	// removal happens before client.Close so broadcasters stay safe.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Disconnect(client)
			if err := g.presence.Deactivate(context.WithoutCancel(ctx), client.UserID); err != nil {
				g.log.Debug("ws.presence.deactivate.fail", "user_id", client.UserID, "err", err)
			}
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypeConversationJoin:
			room, err := g.onJoin(ctx, client, env)
			if err != nil {
				g.sendChatError(client, err)
				continue readLoop
			}
			joined[room.ID] = room

		case v1.TypeConversationLeave:
			g.onLeave(client, joined, env)

		case v1.TypeMessageSend:
			if err := g.onMessageSend(ctx, client, joined, env, now); err != nil {
				g.sendChatError(client, err)
				continue readLoop
			}

		case v1.TypeUserActive:
			if err := g.onUserActive(ctx, client, joined, env, now); err != nil {
				g.sendChatError(client, err)
				continue readLoop
			}

		case v1.TypeTyping:
			if err := g.onTyping(client, joined, env, now); err != nil {
				g.sendChatError(client, err)
				continue readLoop
			}

		default:
			g.trySendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- handlers ----

func (g *WSGateway) onJoin(ctx context.Context, client *Client, env v1.Envelope) (*Room, error) {
	var p v1.ConversationJoinPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	convID := strings.TrimSpace(p.ConversationID)
	if convID == "" {
		return nil, chat.OpError{Op: "realtime.join", Kind: chat.ErrInvalidInput, Msg: "missing conversationId"}
	}

	// Joining a room requires participation in the conversation.
	if _, err := g.chat.Get(ctx, client.UserID, convID); err != nil {
		return nil, err
	}

	room := g.hub.Room(convID)
	room.Join(client)

	echoPayload, _ := json.Marshal(v1.ConversationJoinPayload{ConversationID: room.ID})
	if !client.TrySend(newEnvelope(v1.TypeConversationJoin, echoPayload, time.Now().UTC())) {
		room.Leave(client.SessionID)
		return nil, errors.New("backpressure: join echo")
	}
	return room, nil
}

func (g *WSGateway) onLeave(client *Client, joined map[string]*Room, env v1.Envelope) {
	var p v1.ConversationLeavePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	if room, ok := joined[strings.TrimSpace(p.ConversationID)]; ok {
		room.Leave(client.SessionID)
		delete(joined, room.ID)
	}
}

func (g *WSGateway) onMessageSend(ctx context.Context, client *Client, joined map[string]*Room, env v1.Envelope, now time.Time) error {
	var p v1.MessageSendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	convID := strings.TrimSpace(p.ConversationID)
	room, ok := joined[convID]
	if !ok {
		return chat.ForbiddenError{Op: "realtime.send", Msg: "join the conversation first"}
	}

	content := strings.TrimSpace(p.Content)
	if content == "" {
		return chat.OpError{Op: "realtime.send", Kind: chat.ErrInvalidInput, Msg: "empty content"}
	}
	if len([]rune(content)) > maxMessageChars {
		return chat.OpError{Op: "realtime.send", Kind: chat.ErrInvalidInput,
			Msg: fmt.Sprintf("message too long: max=%d chars", maxMessageChars)}
	}

	msg, conv, err := g.chat.Send(ctx, client.UserID, convID, content)
	if err != nil {
		return err
	}

	newPayload, _ := json.Marshal(v1.MessageNewPayload{
		MessageID:         msg.ID,
		ConversationID:    msg.ConversationID,
		SenderID:          msg.SenderID,
		SenderRole:        string(msg.SenderRole),
		Content:           msg.Content,
		TranslatedContent: msg.TranslatedContent,
		SourceLanguage:    msg.SourceLanguage,
		TargetLanguage:    msg.TargetLanguage,
		IsTranslated:      msg.IsTranslated,
		CreatedAt:         msg.CreatedAt,
	})
	room.Broadcast(newEnvelope(v1.TypeMessageNew, newPayload, now))

	// Each participant gets the update framed with their own language
	// preference and their counterpart's display identity.
	for _, participantID := range conv.Participants() {
		update := v1.ConversationUpdatedPayload{
			ConversationID: conv.ID,
			LastMessage:    conv.LastMessage,
			LastMessageAt:  conv.LastMessageAt,
			Language:       conv.LanguageFor(participantID),
		}
		if view, err := g.resolver.Resolve(ctx, conv.Counterpart(participantID)); err == nil {
			update.Counterpart = &v1.Principal{
				ID:        view.ID,
				Role:      string(view.Role),
				Name:      view.Name,
				AvatarURL: view.AvatarURL,
			}
		}
		payload, _ := json.Marshal(update)
		g.hub.SendToUser(participantID, newEnvelope(v1.TypeConversationUpdated, payload, now))
	}
	return nil
}

func (g *WSGateway) onUserActive(ctx context.Context, client *Client, joined map[string]*Room, env v1.Envelope, now time.Time) error {
	var p v1.UserActivePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	room, ok := joined[strings.TrimSpace(p.ConversationID)]
	if !ok {
		return chat.ForbiddenError{Op: "realtime.user_active", Msg: "join the conversation first"}
	}

	if p.Active {
		if err := g.presence.Touch(ctx, client.UserID, room.ID, now); err != nil {
			g.log.Debug("ws.presence.touch.fail", "user_id", client.UserID, "err", err)
		}
	}

	relay, _ := json.Marshal(v1.UserActivePayload{
		ConversationID: room.ID,
		UserID:         client.UserID,
		Active:         p.Active,
	})
	room.BroadcastExcept(newEnvelope(v1.TypeUserActive, relay, now), client.SessionID)
	return nil
}

func (g *WSGateway) onTyping(client *Client, joined map[string]*Room, env v1.Envelope, now time.Time) error {
	var p v1.TypingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	room, ok := joined[strings.TrimSpace(p.ConversationID)]
	if !ok {
		return chat.ForbiddenError{Op: "realtime.typing", Msg: "join the conversation first"}
	}

	relay, _ := json.Marshal(v1.TypingPayload{
		ConversationID: room.ID,
		UserID:         client.UserID,
		IsTyping:       p.IsTyping,
	})
	room.BroadcastExcept(newEnvelope(v1.TypeTyping, relay, now), client.SessionID)
	return nil
}

// ---- send helpers ----

func (g *WSGateway) sendChatError(client *Client, err error) {
	switch {
	case chat.IsForbidden(err):
		g.trySendError(client, "forbidden", err.Error())
	case chat.IsNotFound(err):
		g.trySendError(client, "not_found", err.Error())
	case chat.IsInvalidInput(err):
		g.trySendError(client, "validation_error", err.Error())
	default:
		g.log.Warn("ws.event.fail", "err", err)
		g.trySendError(client, "internal", "internal error")
	}
}

func (g *WSGateway) trySendError(client *Client, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	_ = client.TrySend(newEnvelope(v1.TypeError, p, time.Now().UTC()))
}

// ---- envelope IO ----

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewRandomHex(10),
		TS:      ts,
		Payload: payload,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors are typically returned by json.Unmarshal, not conn.Read.
	// This fallback exists for robustness when error strings are propagated.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}
		if origin == a {
			return nil
		}
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host.
	// Keep this strict: only hosts extracted from the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	// Stable in-file sort (avoid importing sort just for this).
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
