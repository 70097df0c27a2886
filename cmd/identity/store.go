package identity

import (
	"context"
	"time"
)

// CreateAccountInput describes an account registration request.
// PasswordHash must already be an encoded Argon2id string.
type CreateAccountInput struct {
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Now          time.Time
}

// Store is the identity persistence boundary.
//
// Refresh-token contract:
//   - Only digests are stored. AppendRefreshTokenHash enforces the
//     MaxRefreshTokensPerAccount FIFO cap atomically.
//   - ConsumeRefreshTokenHash removes the matching digest in the same
//     operation that finds it; a digest can therefore authorize exactly one
//     rotation. A digest that is absent (already consumed or evicted) yields
//     ErrNotActive.
type Store interface {
	CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	GetAccountByUsername(ctx context.Context, username string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	DeleteAccount(ctx context.Context, id string) error

	SetPreferredLanguage(ctx context.Context, accountID, language string, now time.Time) error

	UpsertExpertProfile(ctx context.Context, profile ExpertProfile) (ExpertProfile, error)
	GetExpertProfile(ctx context.Context, accountID string) (ExpertProfile, error)
	ListExperts(ctx context.Context) ([]Expert, error)

	AppendRefreshTokenHash(ctx context.Context, accountID, tokenHash string, now, expiresAt time.Time) error
	ConsumeRefreshTokenHash(ctx context.Context, accountID, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, accountID string) error
}
