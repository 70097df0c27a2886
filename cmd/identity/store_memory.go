package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"expertly/cmd/identity/ids"
	"expertly/cmd/security/token"
)

// MemoryStore is an in-memory Store used by tests and local development.
// Safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	accounts   map[string]Account        // id -> account
	byUsername map[string]string         // username_norm -> id
	byEmail    map[string]string         // email_norm -> id
	profiles   map[string]ExpertProfile  // account id -> profile
	refresh    map[string][]RefreshTokenRecord // account id -> ledger, oldest first
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		profiles:   make(map[string]ExpertProfile),
		refresh:    make(map[string][]RefreshTokenRecord),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateAccount(_ context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	username := NormalizeUsername(in.Username)
	email := NormalizeEmail(in.Email)
	if username == "" || email == "" || in.PasswordHash == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username, email and password hash are required"}
	}
	if !in.Role.Valid() {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "unknown role"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[username]; ok {
		return Account{}, ConflictError{Op: op, Field: "username"}
	}
	if _, ok := s.byEmail[email]; ok {
		return Account{}, ConflictError{Op: op, Field: "email"}
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Account{}, err
	}

	acc := Account{
		ID:           id,
		Username:     in.Username,
		UsernameNorm: username,
		Email:        in.Email,
		EmailNorm:    email,
		Role:         in.Role,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.accounts[id] = acc
	s.byUsername[username] = id
	s.byEmail[email] = id
	return acc, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return Account{}, NotFoundError{Op: "identity.GetAccount", Resource: "account"}
	}
	return acc, nil
}

func (s *MemoryStore) GetAccountByUsername(_ context.Context, username string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[NormalizeUsername(username)]
	if !ok {
		return Account{}, NotFoundError{Op: "identity.GetAccountByUsername", Resource: "account"}
	}
	return s.accounts[id], nil
}

func (s *MemoryStore) GetAccountByEmail(_ context.Context, email string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return Account{}, NotFoundError{Op: "identity.GetAccountByEmail", Resource: "account"}
	}
	return s.accounts[id], nil
}

func (s *MemoryStore) UsernameTaken(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byUsername[NormalizeUsername(username)]
	return ok, nil
}

func (s *MemoryStore) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return NotFoundError{Op: "identity.DeleteAccount", Resource: "account"}
	}
	delete(s.accounts, id)
	delete(s.byUsername, acc.UsernameNorm)
	delete(s.byEmail, acc.EmailNorm)
	delete(s.profiles, id)
	delete(s.refresh, id)
	return nil
}

func (s *MemoryStore) SetPreferredLanguage(_ context.Context, accountID, language string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return NotFoundError{Op: "identity.SetPreferredLanguage", Resource: "account"}
	}
	acc.PreferredLanguage = NormalizeLanguage(language)
	acc.UpdatedAt = now
	s.accounts[accountID] = acc
	return nil
}

func (s *MemoryStore) UpsertExpertProfile(_ context.Context, profile ExpertProfile) (ExpertProfile, error) {
	const op = "identity.UpsertExpertProfile"

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[profile.AccountID]
	if !ok {
		return ExpertProfile{}, NotFoundError{Op: op, Resource: "account"}
	}
	if acc.Role != RoleExpert {
		return ExpertProfile{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "account is not an expert"}
	}

	now := profile.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if existing, ok := s.profiles[profile.AccountID]; ok {
		profile.CreatedAt = existing.CreatedAt
	} else if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	profile.Skills = append([]string(nil), profile.Skills...)

	s.profiles[profile.AccountID] = profile
	return profile, nil
}

func (s *MemoryStore) GetExpertProfile(_ context.Context, accountID string) (ExpertProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[accountID]
	if !ok {
		return ExpertProfile{}, NotFoundError{Op: "identity.GetExpertProfile", Resource: "expert_profile"}
	}
	p.Skills = append([]string(nil), p.Skills...)
	return p, nil
}

func (s *MemoryStore) ListExperts(_ context.Context) ([]Expert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Expert, 0, len(s.profiles))
	for accountID, p := range s.profiles {
		acc, ok := s.accounts[accountID]
		if !ok {
			continue
		}
		p.Skills = append([]string(nil), p.Skills...)
		out = append(out, Expert{Account: acc, Profile: p})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Account.ID < out[j].Account.ID
	})
	return out, nil
}

func (s *MemoryStore) AppendRefreshTokenHash(_ context.Context, accountID, tokenHash string, now, expiresAt time.Time) error {
	const op = "identity.AppendRefreshTokenHash"

	if tokenHash == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty token hash"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}

	ledger := s.refresh[accountID]
	// FIFO cap: evict oldest digests so the newest session always fits.
	if overflow := len(ledger) - (MaxRefreshTokensPerAccount - 1); overflow > 0 {
		ledger = append([]RefreshTokenRecord(nil), ledger[overflow:]...)
	}
	ledger = append(ledger, RefreshTokenRecord{TokenHash: tokenHash, CreatedAt: now, ExpiresAt: expiresAt})
	s.refresh[accountID] = ledger
	return nil
}

func (s *MemoryStore) ConsumeRefreshTokenHash(_ context.Context, accountID, tokenHash string) error {
	const op = "identity.ConsumeRefreshTokenHash"

	s.mu.Lock()
	defer s.mu.Unlock()

	ledger := s.refresh[accountID]
	for i, rec := range ledger {
		if token.EqualHex(rec.TokenHash, tokenHash) {
			s.refresh[accountID] = append(ledger[:i:i], ledger[i+1:]...)
			return nil
		}
	}
	// Absent digest: consumed earlier, evicted by the cap, or never issued.
	// Callers treat all three the same to avoid token probing.
	return OpError{Op: op, Kind: ErrNotActive, Msg: "refresh token not active"}
}

func (s *MemoryStore) RevokeAllRefreshTokens(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refresh, accountID)
	return nil
}
