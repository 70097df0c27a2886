package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"expertly/cmd/identity"
	"expertly/cmd/internal/auth/session"
	"expertly/cmd/security/password"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 32
)

// Handler wires the HTTP auth endpoints to the identity store and the
// session manager.
type Handler struct {
	log *slog.Logger
	cfg Config

	accounts  identity.Store
	sessions  *session.Manager
	passwords password.Config
	limiter   *failureLimiter
	now       func() time.Time

	dummyHash string
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, accounts identity.Store, sessions *session.Manager) *Handler {
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:       log,
		cfg:       cfg,
		accounts:  accounts,
		sessions:  sessions,
		passwords: password.FromEnv(),
		limiter:   newFailureLimiter(cfg.LoginFailureMax, cfg.LoginFailureWindow),
		now:       func() time.Time { return time.Now().UTC() },
	}

	// Dummy hash for timing-resistant login checks against unknown accounts.
	if hash, err := h.passwords.Hash("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}
	return h
}

// WithClock overrides the handler clock. Test use only.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/expert-register", h.handleExpertRegister)
	mux.HandleFunc("POST /auth/check-username", h.handleCheckUsername)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /auth/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	acc, ok := h.createAccount(w, r, req, identity.RoleUser)
	if !ok {
		return
	}

	pair, err := h.sessions.IssuePair(r.Context(), acc)
	if err != nil {
		h.log.Error("auth.register.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditRegistered(r, acc.ID, string(acc.Role))
	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusCreated, authResponse{
		Account: toAccountResponse(acc),
		Session: toSessionResponse(pair),
	})
}

func (h *Handler) handleExpertRegister(w http.ResponseWriter, r *http.Request) {
	var req expertRegisterRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.FullName) == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "fullName is required")
		return
	}

	acc, ok := h.createAccount(w, r, registerRequest{
		Username:          req.Username,
		Email:             req.Email,
		Password:          req.Password,
		PreferredLanguage: req.PreferredLanguage,
	}, identity.RoleExpert)
	if !ok {
		return
	}

	ctx := r.Context()
	var imageURL *string
	if v := strings.TrimSpace(req.ImageURL); v != "" {
		imageURL = &v
	}
	profile, err := h.accounts.UpsertExpertProfile(ctx, identity.ExpertProfile{
		AccountID: acc.ID,
		FullName:  strings.TrimSpace(req.FullName),
		Headline:  strings.TrimSpace(req.Headline),
		Bio:       strings.TrimSpace(req.Bio),
		Skills:    req.Skills,
		ImageURL:  imageURL,
		UpdatedAt: h.now(),
	})
	if err != nil {
		// Registration is all-or-nothing: without a profile the account
		// would be an expert nobody can discover.
		if delErr := h.accounts.DeleteAccount(ctx, acc.ID); delErr != nil {
			h.log.Error("auth.expert_register.rollback.fail", "err", delErr, "account_id", acc.ID)
		}
		h.writeIdentityError(w, err)
		return
	}

	pair, err := h.sessions.IssuePair(ctx, acc)
	if err != nil {
		h.log.Error("auth.expert_register.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditRegistered(r, acc.ID, string(acc.Role))
	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusCreated, authResponse{
		Account: toAccountResponse(acc),
		Profile: toProfileResponse(profile),
		Session: toSessionResponse(pair),
	})
}

func (h *Handler) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	var req checkUsernameRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := validateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	taken, err := h.accounts.UsernameTaken(r.Context(), req.Username)
	if err != nil {
		h.log.Error("auth.check_username.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, checkUsernameResponse{Available: !taken})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	identifier := strings.TrimSpace(req.Identifier)
	pw := req.Password
	if identifier == "" || pw == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "identifier and password are required")
		return
	}

	now := h.now()
	key := limiterKey(r, h.cfg.TrustProxy)
	if blocked, retryAfter := h.limiter.Blocked(key, now); blocked {
		h.auditLoginRateLimited(r, identifier)
		if retryAfter > 0 {
			w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
		}
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		return
	}

	ctx := r.Context()
	acc, err := h.lookupByIdentifier(ctx, identifier)
	if err != nil {
		// Timing resistance: run a verify even when the account is missing.
		if h.dummyHash != "" {
			_, _ = h.passwords.Verify(h.dummyHash, pw)
		}
		h.limiter.RecordFailure(key, now)
		h.auditLoginFailed(r, "", identifier, "not_found")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	okPw, err := h.passwords.Verify(acc.PasswordHash, pw)
	if err != nil || !okPw {
		h.limiter.RecordFailure(key, now)
		h.auditLoginFailed(r, acc.ID, identifier, "bad_password")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	pair, err := h.sessions.IssuePair(ctx, acc)
	if err != nil {
		h.log.Error("auth.login.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditLoginSuccess(r, acc.ID, identifier)
	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, authResponse{
		Account: toAccountResponse(acc),
		Session: toSessionResponse(pair),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw := cookieValue(r, refreshCookieName)
	if raw == "" && r.ContentLength != 0 {
		var req refreshRequest
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err == nil {
			raw = strings.TrimSpace(req.RefreshToken)
		}
	}
	if raw == "" {
		h.clearSessionCookies(w)
		writeError(w, http.StatusUnauthorized, "unauthorized", "refresh token required")
		return
	}

	pair, acc, err := h.sessions.Rotate(r.Context(), raw)
	if err != nil {
		h.clearSessionCookies(w)
		switch {
		case errors.Is(err, session.ErrTokenRevoked):
			h.auditRefreshDenied(r, "token_revoked")
			writeError(w, http.StatusUnauthorized, "token_revoked", "refresh token already used")
		case errors.Is(err, session.ErrInvalidToken):
			h.auditRefreshDenied(r, "invalid_token")
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid refresh token")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.auditRefreshSuccess(r, acc.ID)
	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, authResponse{
		Account: toAccountResponse(acc),
		Session: toSessionResponse(pair),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Logout never fails: revocation is best effort, cookies always clear.
	if raw := cookieValue(r, refreshCookieName); raw != "" {
		h.sessions.Revoke(r.Context(), raw)
	} else if r.ContentLength != 0 {
		var req refreshRequest
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err == nil && strings.TrimSpace(req.RefreshToken) != "" {
			h.sessions.Revoke(r.Context(), strings.TrimSpace(req.RefreshToken))
		}
	}

	h.auditLogout(r)
	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, logoutResponse{Success: true})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	acc, err := h.accounts.GetAccount(ctx, principal.AccountID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "account not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	resp := meResponse{Account: toAccountResponse(acc)}
	if acc.Role == identity.RoleExpert {
		if profile, err := h.accounts.GetExpertProfile(ctx, acc.ID); err == nil {
			resp.Profile = toProfileResponse(profile)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---- helpers ----

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request, req registerRequest, role identity.Role) (identity.Account, bool) {
	if err := validateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return identity.Account{}, false
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid email address")
		return identity.Account{}, false
	}

	hash, err := h.passwords.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return identity.Account{}, false
		}
		h.log.Error("auth.register.hash.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return identity.Account{}, false
	}

	ctx := r.Context()
	now := h.now()
	acc, err := h.accounts.CreateAccount(ctx, identity.CreateAccountInput{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Role:         role,
		Now:          now,
	})
	if err != nil {
		h.writeIdentityError(w, err)
		return identity.Account{}, false
	}

	if lang := identity.NormalizeLanguage(req.PreferredLanguage); lang != "" {
		if err := h.accounts.SetPreferredLanguage(ctx, acc.ID, lang, now); err != nil {
			h.log.Error("auth.register.language.fail", "err", err, "account_id", acc.ID)
		} else {
			acc.PreferredLanguage = lang
		}
	}
	return acc, true
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.Principal, bool) {
	raw := bearerToken(r)
	if raw == "" {
		raw = cookieValue(r, accessCookieName)
	}
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing access token")
		return session.Principal{}, false
	}
	principal, err := h.sessions.VerifyAccess(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid access token")
		return session.Principal{}, false
	}
	return principal, true
}

func (h *Handler) lookupByIdentifier(ctx context.Context, identifier string) (identity.Account, error) {
	if strings.Contains(identifier, "@") {
		return h.accounts.GetAccountByEmail(ctx, identifier)
	}
	return h.accounts.GetAccountByUsername(ctx, identifier)
}

func (h *Handler) writeIdentityError(w http.ResponseWriter, err error) {
	switch {
	case identity.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", "username or email already exists")
	case identity.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "validation_error", "invalid input")
	case identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "account not found")
	default:
		h.log.Error("auth.store.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
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

func validateUsername(raw string) error {
	name := strings.TrimSpace(raw)
	if len(name) < usernameMinLength {
		return errors.New("username is too short")
	}
	if len(name) > usernameMaxLength {
		return errors.New("username is too long")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '.' || r == '-':
		default:
			return errors.New("username may only contain letters, digits, '_', '.' and '-'")
		}
	}
	return nil
}

func limiterKey(r *http.Request, trustProxy bool) string {
	if ip := clientIP(r, trustProxy); ip != nil {
		return ip.String()
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func retryAfterSeconds(d time.Duration) string {
	secs := int64(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func toSessionResponse(pair session.TokenPair) sessionResponse {
	return sessionResponse{
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}
