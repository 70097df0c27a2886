package password

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password length validation.
type Policy struct {
	MinLength int
	MaxLength int
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns a baseline suitable for interactive logins.
func DefaultConfig() Config {
	// Parallelism follows available CPUs but is clamped to [1..4] to keep
	// resource usage predictable in containers.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above; safe conversion.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
	}
}

// FromEnv returns DefaultConfig with optional env overrides:
//
//	EXPERTLY_PASSWORD_MEMORY_KIB, EXPERTLY_PASSWORD_ITERATIONS,
//	EXPERTLY_PASSWORD_MIN_LENGTH
//
// Invalid values fall back to defaults rather than failing startup.
func FromEnv() Config {
	cfg := DefaultConfig()

	if v := envUint32("EXPERTLY_PASSWORD_MEMORY_KIB"); v >= 8*1024 {
		cfg.Params.MemoryKiB = v
	}
	if v := envUint32("EXPERTLY_PASSWORD_ITERATIONS"); v >= 1 && v <= 16 {
		cfg.Params.Iterations = v
	}
	if v := envUint32("EXPERTLY_PASSWORD_MIN_LENGTH"); v >= 8 && v <= 128 {
		cfg.Policy.MinLength = int(v)
	}

	return cfg
}

// Validate checks a candidate password against the policy.
func (c Config) Validate(password string) error {
	if len(password) < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if c.Policy.MaxLength > 0 && len(password) > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}
	return nil
}

func envUint32(key string) uint32 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}
