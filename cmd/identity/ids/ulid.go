// Package ids provides ID primitives (ULID) used across Expertly services.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a new ULID string (26 chars).
// ULIDs sort lexicographically by creation time, which keeps account,
// conversation and message listings cheap to order.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustNewULID is NewULID for call sites where entropy failure is fatal anyway
// (tests, startup wiring).
func MustNewULID(now time.Time) string {
	id, err := NewULID(now)
	if err != nil {
		panic(err)
	}
	return id
}
