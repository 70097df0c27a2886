package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"expertly/cmd/identity/ids"
)

// PostgresStore implements Store on top of pgx.
//
// Uniqueness is enforced by the database (username_norm / email_norm unique
// indexes) and surfaced as ConflictError, so concurrent registrations cannot
// race past an application-level existence check.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool. The caller owns the pool lifecycle.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

// identitySchemaSQL is idempotent and applied at startup by EnsureSchema.
const identitySchemaSQL = `
CREATE SCHEMA IF NOT EXISTS expertly;

CREATE TABLE IF NOT EXISTS expertly.accounts (
    id                 TEXT PRIMARY KEY,
    username           TEXT NOT NULL,
    username_norm      TEXT NOT NULL UNIQUE,
    email              TEXT NOT NULL,
    email_norm         TEXT NOT NULL UNIQUE,
    role               TEXT NOT NULL,
    password_hash      TEXT NOT NULL,
    avatar_url         TEXT,
    preferred_language TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS expertly.expert_profiles (
    account_id TEXT PRIMARY KEY REFERENCES expertly.accounts(id) ON DELETE CASCADE,
    full_name  TEXT NOT NULL,
    headline   TEXT NOT NULL DEFAULT '',
    bio        TEXT NOT NULL DEFAULT '',
    skills     TEXT[] NOT NULL DEFAULT '{}',
    image_url  TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS expertly.account_refresh_tokens (
    account_id TEXT NOT NULL REFERENCES expertly.accounts(id) ON DELETE CASCADE,
    token_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (account_id, token_hash)
);

CREATE INDEX IF NOT EXISTS account_refresh_tokens_created_idx
    ON expertly.account_refresh_tokens (account_id, created_at);
`

// EnsureSchema creates the identity tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, identitySchemaSQL)
	return err
}

const accountColumns = `id, username, username_norm, email, email_norm, role,
	password_hash, avatar_url, preferred_language, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var acc Account
	var role string
	err := row.Scan(
		&acc.ID, &acc.Username, &acc.UsernameNorm, &acc.Email, &acc.EmailNorm,
		&role, &acc.PasswordHash, &acc.AvatarURL, &acc.PreferredLanguage,
		&acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}
	acc.Role = Role(role)
	return acc, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
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
	id, err := ids.NewULID(now)
	if err != nil {
		return Account{}, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO expertly.accounts
			(id, username, username_norm, email, email_norm, role,
			 password_hash, preferred_language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8, $8)
		RETURNING `+accountColumns,
		id, in.Username, username, in.Email, email, string(in.Role),
		in.PasswordHash, now,
	)

	acc, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			field := "username"
			if pgErr.ConstraintName == "accounts_email_norm_key" {
				field = "email"
			}
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, err
	}
	return acc, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM expertly.accounts WHERE id = $1`, id)
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: "identity.GetAccount", Resource: "account"}
	}
	return acc, err
}

func (s *PostgresStore) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM expertly.accounts WHERE username_norm = $1`,
		NormalizeUsername(username))
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: "identity.GetAccountByUsername", Resource: "account"}
	}
	return acc, err
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM expertly.accounts WHERE email_norm = $1`,
		NormalizeEmail(email))
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: "identity.GetAccountByEmail", Resource: "account"}
	}
	return acc, err
}

func (s *PostgresStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM expertly.accounts WHERE username_norm = $1)`,
		NormalizeUsername(username)).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM expertly.accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: "identity.DeleteAccount", Resource: "account"}
	}
	return nil
}

func (s *PostgresStore) SetPreferredLanguage(ctx context.Context, accountID, language string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE expertly.accounts
		SET preferred_language = $2, updated_at = $3
		WHERE id = $1`,
		accountID, NormalizeLanguage(language), now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: "identity.SetPreferredLanguage", Resource: "account"}
	}
	return nil
}

func (s *PostgresStore) UpsertExpertProfile(ctx context.Context, profile ExpertProfile) (ExpertProfile, error) {
	const op = "identity.UpsertExpertProfile"

	now := profile.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO expertly.expert_profiles
			(account_id, full_name, headline, bio, skills, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (account_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			headline  = EXCLUDED.headline,
			bio       = EXCLUDED.bio,
			skills    = EXCLUDED.skills,
			image_url = EXCLUDED.image_url,
			updated_at = EXCLUDED.updated_at
		RETURNING account_id, full_name, headline, bio, skills, image_url, created_at, updated_at`,
		profile.AccountID, profile.FullName, profile.Headline, profile.Bio,
		profile.Skills, profile.ImageURL, now,
	)

	var out ExpertProfile
	err := row.Scan(&out.AccountID, &out.FullName, &out.Headline, &out.Bio,
		&out.Skills, &out.ImageURL, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ExpertProfile{}, NotFoundError{Op: op, Resource: "account"}
		}
		return ExpertProfile{}, err
	}
	return out, nil
}

func (s *PostgresStore) GetExpertProfile(ctx context.Context, accountID string) (ExpertProfile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT account_id, full_name, headline, bio, skills, image_url, created_at, updated_at
		FROM expertly.expert_profiles WHERE account_id = $1`, accountID)

	var p ExpertProfile
	err := row.Scan(&p.AccountID, &p.FullName, &p.Headline, &p.Bio,
		&p.Skills, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ExpertProfile{}, NotFoundError{Op: "identity.GetExpertProfile", Resource: "expert_profile"}
	}
	return p, err
}

func (s *PostgresStore) ListExperts(ctx context.Context) ([]Expert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.username, a.username_norm, a.email, a.email_norm, a.role,
		       a.password_hash, a.avatar_url, a.preferred_language, a.created_at, a.updated_at,
		       p.full_name, p.headline, p.bio, p.skills, p.image_url, p.created_at, p.updated_at
		FROM expertly.expert_profiles p
		JOIN expertly.accounts a ON a.id = p.account_id
		ORDER BY a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Expert
	for rows.Next() {
		var e Expert
		var role string
		err := rows.Scan(
			&e.Account.ID, &e.Account.Username, &e.Account.UsernameNorm,
			&e.Account.Email, &e.Account.EmailNorm, &role,
			&e.Account.PasswordHash, &e.Account.AvatarURL,
			&e.Account.PreferredLanguage, &e.Account.CreatedAt, &e.Account.UpdatedAt,
			&e.Profile.FullName, &e.Profile.Headline, &e.Profile.Bio,
			&e.Profile.Skills, &e.Profile.ImageURL,
			&e.Profile.CreatedAt, &e.Profile.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		e.Account.Role = Role(role)
		e.Profile.AccountID = e.Account.ID
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendRefreshTokenHash(ctx context.Context, accountID, tokenHash string, now, expiresAt time.Time) error {
	const op = "identity.AppendRefreshTokenHash"

	if tokenHash == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty token hash"}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Evict oldest digests so the ledger never exceeds the cap after insert.
	_, err = tx.Exec(ctx, `
		DELETE FROM expertly.account_refresh_tokens
		WHERE account_id = $1 AND token_hash IN (
			SELECT token_hash FROM expertly.account_refresh_tokens
			WHERE account_id = $1
			ORDER BY created_at DESC, token_hash
			OFFSET $2
		)`,
		accountID, MaxRefreshTokensPerAccount-1)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO expertly.account_refresh_tokens (account_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, token_hash) DO UPDATE
			SET created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		accountID, tokenHash, now, expiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return NotFoundError{Op: op, Resource: "account"}
		}
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ConsumeRefreshTokenHash(ctx context.Context, accountID, tokenHash string) error {
	const op = "identity.ConsumeRefreshTokenHash"

	// Find-and-remove in one statement: a digest authorizes exactly one rotation.
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM expertly.account_refresh_tokens
		WHERE account_id = $1 AND token_hash = $2`,
		accountID, tokenHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNotActive, Msg: "refresh token not active"}
	}
	return nil
}

func (s *PostgresStore) RevokeAllRefreshTokens(ctx context.Context, accountID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM expertly.account_refresh_tokens WHERE account_id = $1`, accountID)
	return err
}
