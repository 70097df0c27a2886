package session

import (
	"context"
	"log/slog"
	"time"

	"expertly/cmd/identity"
	"expertly/cmd/security/token"
)

// TokenPair is what a successful login or rotation hands back to the client.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Principal is the verified caller identity extracted from an access token.
type Principal struct {
	AccountID string
	Role      identity.Role
}

// Manager issues, verifies, rotates and revokes token pairs.
type Manager struct {
	cfg    Config
	store  identity.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewManager validates cfg and wires the manager.
func NewManager(cfg Config, store identity.Store, logger *slog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the time source. Tests only.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// IssuePair signs a fresh access+refresh pair for acc and records the refresh
// digest in the account ledger (evicting the oldest digest when full).
func (m *Manager) IssuePair(ctx context.Context, acc identity.Account) (TokenPair, error) {
	now := m.now()

	access, accessExp, err := signToken(m.cfg.AccessSecret, acc, kindAccess, m.cfg.Issuer, m.cfg.AccessTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := signToken(m.cfg.RefreshSecret, acc, kindRefresh, m.cfg.Issuer, m.cfg.RefreshTTL, now)
	if err != nil {
		return TokenPair{}, err
	}

	if err := m.store.AppendRefreshTokenHash(ctx, acc.ID, token.HashRefreshTokenHex(refresh), now, refreshExp); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess checks an access token and returns the caller principal.
func (m *Manager) VerifyAccess(raw string) (Principal, error) {
	claims, err := verifyToken(m.cfg.AccessSecret, raw, kindAccess, m.cfg.Issuer, m.now)
	if err != nil {
		return Principal{}, err
	}
	return Principal{AccountID: claims.AccountID(), Role: identity.Role(claims.Role)}, nil
}

// Rotate exchanges a refresh token for a fresh pair.
//
// The presented token must verify cryptographically AND its digest must still
// be in the ledger. The digest is consumed before the new pair is recorded,
// so presenting the same refresh token twice fails the second time with
// ErrTokenRevoked. An evicted digest (sixth device) fails the same way; the
// ledger does not distinguish replay from eviction.
func (m *Manager) Rotate(ctx context.Context, rawRefresh string) (TokenPair, identity.Account, error) {
	claims, err := verifyToken(m.cfg.RefreshSecret, rawRefresh, kindRefresh, m.cfg.Issuer, m.now)
	if err != nil {
		return TokenPair{}, identity.Account{}, err
	}

	acc, err := m.store.GetAccount(ctx, claims.AccountID())
	if err != nil {
		if identity.IsNotFound(err) {
			return TokenPair{}, identity.Account{}, ErrInvalidToken
		}
		return TokenPair{}, identity.Account{}, err
	}

	if err := m.store.ConsumeRefreshTokenHash(ctx, acc.ID, token.HashRefreshTokenHex(rawRefresh)); err != nil {
		if identity.IsNotActive(err) {
			m.logger.Warn("refresh token replay or eviction",
				slog.String("account_id", acc.ID))
			return TokenPair{}, identity.Account{}, ErrTokenRevoked
		}
		return TokenPair{}, identity.Account{}, err
	}

	pair, err := m.IssuePair(ctx, acc)
	if err != nil {
		return TokenPair{}, identity.Account{}, err
	}
	return pair, acc, nil
}

// Revoke retires a refresh token, best-effort: a malformed, expired or
// already-consumed token is logged and swallowed so logout always succeeds.
func (m *Manager) Revoke(ctx context.Context, rawRefresh string) {
	claims, err := verifyToken(m.cfg.RefreshSecret, rawRefresh, kindRefresh, m.cfg.Issuer, m.now)
	if err != nil {
		m.logger.Debug("logout with unverifiable refresh token")
		return
	}

	err = m.store.ConsumeRefreshTokenHash(ctx, claims.AccountID(), token.HashRefreshTokenHex(rawRefresh))
	if err != nil && !identity.IsNotActive(err) {
		m.logger.Warn("logout token removal failed",
			slog.String("account_id", claims.AccountID()),
			slog.String("error", err.Error()))
	}
}

// RevokeAll drops every refresh digest for an account, ending all sessions.
func (m *Manager) RevokeAll(ctx context.Context, accountID string) error {
	return m.store.RevokeAllRefreshTokens(ctx, accountID)
}

// AccessTTL exposes the configured access lifetime for cookie Max-Age.
func (m *Manager) AccessTTL() time.Duration { return m.cfg.AccessTTL }

// RefreshTTL exposes the configured refresh lifetime for cookie Max-Age.
func (m *Manager) RefreshTTL() time.Duration { return m.cfg.RefreshTTL }
