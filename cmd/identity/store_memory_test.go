package identity

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestAccount(t *testing.T, s *MemoryStore, role Role, name string) Account {
	t.Helper()
	acc, err := s.CreateAccount(context.Background(), CreateAccountInput{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "$argon2id$v=19$m=16384,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g",
		Role:         role,
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s): %v", name, err)
	}
	return acc
}

func TestCreateAccountConflicts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	newTestAccount(t, s, RoleUser, "alice")

	_, err := s.CreateAccount(ctx, CreateAccountInput{
		Username: "ALICE", Email: "other@example.com", PasswordHash: "x", Role: RoleUser,
	})
	if !IsConflict(err) {
		t.Fatalf("username conflict: err=%v", err)
	}

	_, err = s.CreateAccount(ctx, CreateAccountInput{
		Username: "alice2", Email: "Alice@Example.com", PasswordHash: "x", Role: RoleUser,
	})
	if !IsConflict(err) {
		t.Fatalf("email conflict: err=%v", err)
	}
}

func TestLookupsAreCaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	acc := newTestAccount(t, s, RoleUser, "alice")

	got, err := s.GetAccountByUsername(ctx, "  ALICE ")
	if err != nil || got.ID != acc.ID {
		t.Fatalf("GetAccountByUsername: %v %v", got.ID, err)
	}
	got, err = s.GetAccountByEmail(ctx, "Alice@Example.COM")
	if err != nil || got.ID != acc.ID {
		t.Fatalf("GetAccountByEmail: %v %v", got.ID, err)
	}
	taken, err := s.UsernameTaken(ctx, "Alice")
	if err != nil || !taken {
		t.Fatalf("UsernameTaken: %v %v", taken, err)
	}
}

func TestRefreshLedgerFIFOCap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	acc := newTestAccount(t, s, RoleUser, "alice")

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < MaxRefreshTokensPerAccount+2; i++ {
		hash := fmt.Sprintf("%064d", i)
		at := base.Add(time.Duration(i) * time.Minute)
		if err := s.AppendRefreshTokenHash(ctx, acc.ID, hash, at, at.Add(7*24*time.Hour)); err != nil {
			t.Fatalf("AppendRefreshTokenHash(%d): %v", i, err)
		}
	}

	// Oldest two were evicted.
	for i := 0; i < 2; i++ {
		err := s.ConsumeRefreshTokenHash(ctx, acc.ID, fmt.Sprintf("%064d", i))
		if !IsNotActive(err) {
			t.Fatalf("evicted hash %d: err=%v", i, err)
		}
	}
	// Newest five survive.
	for i := 2; i < MaxRefreshTokensPerAccount+2; i++ {
		if err := s.ConsumeRefreshTokenHash(ctx, acc.ID, fmt.Sprintf("%064d", i)); err != nil {
			t.Fatalf("surviving hash %d: %v", i, err)
		}
	}
}

func TestConsumeRefreshTokenHashIsSingleUse(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	acc := newTestAccount(t, s, RoleUser, "alice")

	hash := "aa11" + fmt.Sprintf("%060d", 0)
	now := time.Now().UTC()
	if err := s.AppendRefreshTokenHash(ctx, acc.ID, hash, now, now.Add(7*24*time.Hour)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.ConsumeRefreshTokenHash(ctx, acc.ID, hash); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if err := s.ConsumeRefreshTokenHash(ctx, acc.ID, hash); !IsNotActive(err) {
		t.Fatalf("second consume: err=%v want not_active", err)
	}
}

func TestRevokeAllRefreshTokens(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	acc := newTestAccount(t, s, RoleUser, "alice")

	hash := fmt.Sprintf("%064d", 7)
	now := time.Now().UTC()
	if err := s.AppendRefreshTokenHash(ctx, acc.ID, hash, now, now.Add(7*24*time.Hour)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.RevokeAllRefreshTokens(ctx, acc.ID); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if err := s.ConsumeRefreshTokenHash(ctx, acc.ID, hash); !IsNotActive(err) {
		t.Fatalf("after revoke: err=%v want not_active", err)
	}
}

func TestExpertProfileRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	expert := newTestAccount(t, s, RoleExpert, "drlee")
	user := newTestAccount(t, s, RoleUser, "bob")

	img := "https://cdn.example.com/drlee.png"
	_, err := s.UpsertExpertProfile(ctx, ExpertProfile{
		AccountID: expert.ID,
		FullName:  "Dr. Lee",
		Headline:  "Distributed systems",
		Skills:    []string{"go", "postgres"},
		ImageURL:  &img,
	})
	if err != nil {
		t.Fatalf("UpsertExpertProfile: %v", err)
	}

	if _, err := s.UpsertExpertProfile(ctx, ExpertProfile{AccountID: user.ID, FullName: "Bob"}); !IsInvalidInput(err) {
		t.Fatalf("profile on non-expert: err=%v", err)
	}

	experts, err := s.ListExperts(ctx)
	if err != nil {
		t.Fatalf("ListExperts: %v", err)
	}
	if len(experts) != 1 || experts[0].Profile.FullName != "Dr. Lee" {
		t.Fatalf("unexpected listing: %+v", experts)
	}
}

func TestResolverFramesExpertsByProfile(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	expert := newTestAccount(t, s, RoleExpert, "drlee")
	user := newTestAccount(t, s, RoleUser, "bob")

	img := "https://cdn.example.com/drlee.png"
	if _, err := s.UpsertExpertProfile(ctx, ExpertProfile{
		AccountID: expert.ID, FullName: "Dr. Lee", ImageURL: &img,
	}); err != nil {
		t.Fatalf("UpsertExpertProfile: %v", err)
	}

	r := NewResolver(s)

	view, err := r.Resolve(ctx, expert.ID)
	if err != nil {
		t.Fatalf("Resolve expert: %v", err)
	}
	if view.Name != "Dr. Lee" || view.AvatarURL == nil || *view.AvatarURL != img {
		t.Fatalf("expert view: %+v", view)
	}

	view, err = r.Resolve(ctx, user.ID)
	if err != nil {
		t.Fatalf("Resolve user: %v", err)
	}
	if view.Name != "bob" || view.Role != RoleUser {
		t.Fatalf("user view: %+v", view)
	}
}

func TestResolverExpertWithoutProfileFallsBack(t *testing.T) {
	s := NewMemoryStore()
	expert := newTestAccount(t, s, RoleExpert, "drlee")

	view, err := NewResolver(s).Resolve(context.Background(), expert.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if view.Name != "drlee" {
		t.Fatalf("fallback name: %+v", view)
	}
}
