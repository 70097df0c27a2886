package session

import (
	"errors"
	"time"
)

const minSecretBytes = 32

// Config holds signing secrets and lifetimes for both token kinds.
type Config struct {
	// AccessSecret and RefreshSecret MUST differ, so a refresh token can
	// never be replayed as an access token or vice versa.
	AccessSecret  []byte
	RefreshSecret []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	Issuer string
}

// DefaultConfig returns lifetimes matching the web client's cookie policy.
// Secrets must be provided by the caller.
func DefaultConfig() Config {
	return Config{
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "expertly",
	}
}

// Validate rejects weak or shared secrets and nonsense lifetimes.
func (c Config) Validate() error {
	if len(c.AccessSecret) < minSecretBytes {
		return errors.New("session: access secret must be at least 32 bytes")
	}
	if len(c.RefreshSecret) < minSecretBytes {
		return errors.New("session: refresh secret must be at least 32 bytes")
	}
	if string(c.AccessSecret) == string(c.RefreshSecret) {
		return errors.New("session: access and refresh secrets must differ")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("session: token lifetimes must be positive")
	}
	if c.AccessTTL >= c.RefreshTTL {
		return errors.New("session: access lifetime must be shorter than refresh lifetime")
	}
	return nil
}
