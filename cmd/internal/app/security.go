package app

import (
	"errors"

	"expertly/cmd/security/token"
)

// ValidateSecurityConfig enforces the token-hashing policy at startup.
// Fail-fast: silently falling back to unkeyed digests in production would
// make a database dump enough to forge refresh-token lookups.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// 32 bytes minimum for an HMAC-SHA256 secret, measured as raw bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: EXPERTLY_REQUIRE_TOKEN_HMAC=true but EXPERTLY_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: EXPERTLY_REQUIRE_TOKEN_HMAC=true but EXPERTLY_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}
	return nil
}
