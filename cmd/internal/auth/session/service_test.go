package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"expertly/cmd/identity"
)

func testManager(t *testing.T, store identity.Store) *Manager {
	t.Helper()

	cfg := DefaultConfig()
	cfg.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.RefreshSecret = []byte(strings.Repeat("r", 32))

	m, err := NewManager(cfg, store, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func testAccount(t *testing.T, store *identity.MemoryStore) identity.Account {
	t.Helper()
	acc, err := store.CreateAccount(context.Background(), identity.CreateAccountInput{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "x",
		Role:         identity.RoleUser,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return acc
}

func TestIssuePairAndVerifyAccess(t *testing.T) {
	store := identity.NewMemoryStore()
	acc := testAccount(t, store)
	m := testManager(t, store)

	pair, err := m.IssuePair(context.Background(), acc)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	p, err := m.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if p.AccountID != acc.ID || p.Role != identity.RoleUser {
		t.Fatalf("principal=%+v", p)
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	store := identity.NewMemoryStore()
	acc := testAccount(t, store)
	m := testManager(t, store)

	pair, err := m.IssuePair(context.Background(), acc)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	if _, err := m.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh as access: err=%v", err)
	}
	if _, _, err := m.Rotate(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access as refresh: err=%v", err)
	}
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	store := identity.NewMemoryStore()
	acc := testAccount(t, store)
	m := testManager(t, store)

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	now := base
	m.WithClock(func() time.Time { return now })

	pair, err := m.IssuePair(context.Background(), acc)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	now = base.Add(16 * time.Minute)
	if _, err := m.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired access: err=%v", err)
	}
}

func TestRotateIsSingleUse(t *testing.T) {
	store := identity.NewMemoryStore()
	acc := testAccount(t, store)
	m := testManager(t, store)
	ctx := context.Background()

	pair, err := m.IssuePair(ctx, acc)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	next, got, err := m.Rotate(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first rotate: %v", err)
	}
	if got.ID != acc.ID || next.RefreshToken == pair.RefreshToken {
		t.Fatalf("rotation result: acc=%s same_token=%v", got.ID, next.RefreshToken == pair.RefreshToken)
	}

	// Replaying the consumed token must fail even though its signature is valid.
	if _, _, err := m.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("replay: err=%v want=%v", err, ErrTokenRevoked)
	}

	// The freshly rotated token still works.
	if _, _, err := m.Rotate(ctx, next.RefreshToken); err != nil {
		t.Fatalf("rotate fresh token: %v", err)
	}
}

func TestRotateRejectsForgedToken(t *testing.T) {
	store := identity.NewMemoryStore()
	acc := testAccount(t, store)
	m := testManager(t, store)
	ctx := context.Background()

	if _, err := m.IssuePair(ctx, acc); err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	// Same account, different signing key.
	otherCfg := DefaultConfig()
	otherCfg.AccessSecret = []byte(strings.Repeat("x", 32))
	otherCfg.RefreshSecret = []byte(strings.Repeat("y", 32))
	other, err := NewManager(otherCfg, store, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	forged, err := other.IssuePair(ctx, acc)
	if err != nil {
		t.Fatalf("forged IssuePair: %v", err)
	}

	if _, _, err := m.Rotate(ctx, forged.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("forged rotate: err=%v", err)
	}
	if _, _, err := m.Rotate(ctx, "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage rotate: err=%v", err)
	}
}

func TestEvictedTokenRotatesAsRevoked(t *testing.T) {
	store := identity.NewMemoryStore()
	acc := testAccount(t, store)
	m := testManager(t, store)
	ctx := context.Background()

	first, err := m.IssuePair(ctx, acc)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	// Fill the ledger past the cap; the first digest gets evicted.
	for i := 0; i < identity.MaxRefreshTokensPerAccount; i++ {
		if _, err := m.IssuePair(ctx, acc); err != nil {
			t.Fatalf("IssuePair %d: %v", i, err)
		}
	}

	if _, _, err := m.Rotate(ctx, first.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("evicted rotate: err=%v want=%v", err, ErrTokenRevoked)
	}
}

func TestRevokeIsBestEffort(t *testing.T) {
	store := identity.NewMemoryStore()
	acc := testAccount(t, store)
	m := testManager(t, store)
	ctx := context.Background()

	pair, err := m.IssuePair(ctx, acc)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	// Valid token: digest removed, replay then fails.
	m.Revoke(ctx, pair.RefreshToken)
	if _, _, err := m.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("rotate after revoke: err=%v", err)
	}

	// Garbage and double revokes are swallowed.
	m.Revoke(ctx, "not-a-jwt")
	m.Revoke(ctx, pair.RefreshToken)
}

func TestRevokeAllEndsEverySession(t *testing.T) {
	store := identity.NewMemoryStore()
	acc := testAccount(t, store)
	m := testManager(t, store)
	ctx := context.Background()

	a, err := m.IssuePair(ctx, acc)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	b, err := m.IssuePair(ctx, acc)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	if err := m.RevokeAll(ctx, acc.ID); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	for _, tok := range []string{a.RefreshToken, b.RefreshToken} {
		if _, _, err := m.Rotate(ctx, tok); !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("rotate after revoke-all: err=%v", err)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	good := DefaultConfig()
	good.AccessSecret = []byte(strings.Repeat("a", 32))
	good.RefreshSecret = []byte(strings.Repeat("r", 32))
	if err := good.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	short := good
	short.AccessSecret = []byte("short")
	if err := short.Validate(); err == nil {
		t.Fatalf("short secret accepted")
	}

	same := good
	same.RefreshSecret = same.AccessSecret
	if err := same.Validate(); err == nil {
		t.Fatalf("shared secret accepted")
	}
}
