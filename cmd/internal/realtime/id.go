package realtime

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"expertly/cmd/identity/ids"
)

// NewSessionID returns a ULID used as websocket session id.
func NewSessionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewRandomHex returns a cryptographically secure random hex string of
// length 2*nBytes. Used for envelope ids, where a rare empty string on
// entropy failure only degrades log tracing.
func NewRandomHex(nBytes int) string {
	if nBytes <= 0 {
		nBytes = 16
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
