package identity

import "time"

// Role classifies an account. Only experts may be the counterpart of a new
// conversation.
type Role string

const (
	RoleUser   Role = "user"
	RoleExpert Role = "expert"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleExpert || r == RoleAdmin
}

// MaxRefreshTokensPerAccount caps the per-account refresh-token ledger.
// When full, the oldest digest is dropped (FIFO) so the account holder can
// always sign in on a new device.
const MaxRefreshTokensPerAccount = 5

// Account is Expertly's canonical security principal.
type Account struct {
	ID           string
	Username     string
	UsernameNorm string
	Email        string
	EmailNorm    string
	Role         Role

	// PasswordHash is an Argon2id PHC string; the plain password is never stored.
	PasswordHash string

	AvatarURL *string

	// PreferredLanguage is the account-level default used when a conversation
	// has no per-conversation override. Empty means "no preference".
	PreferredLanguage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExpertProfile is the public marketplace profile attached to an expert account.
type ExpertProfile struct {
	AccountID string

	FullName string
	Headline string
	Bio      string
	Skills   []string
	ImageURL *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expert pairs an expert account with its marketplace profile for listings.
type Expert struct {
	Account Account
	Profile ExpertProfile
}

// RefreshTokenRecord is one entry in an account's refresh-token ledger.
// TokenHash is a one-way digest; the plain token never reaches storage.
type RefreshTokenRecord struct {
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}
