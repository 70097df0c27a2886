package session

import "errors"

var (
	// ErrInvalidToken covers malformed, forged, expired or wrong-kind tokens.
	ErrInvalidToken = errors.New("invalid_token")

	// ErrTokenRevoked means the token verified cryptographically but its
	// digest is no longer in the ledger: already rotated, evicted by the
	// per-account cap, or revoked.
	ErrTokenRevoked = errors.New("token_revoked")
)
