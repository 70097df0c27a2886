package translate

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config controls the Google backend and its failure handling.
type Config struct {
	// APIKey authenticates against the Cloud Translation v2 API.
	// Empty key selects the Noop backend.
	APIKey string `env:"EXPERTLY_TRANSLATE_API_KEY"`

	// BaseURL is overridable for tests.
	BaseURL string `env:"EXPERTLY_TRANSLATE_BASE_URL" envDefault:"https://translation.googleapis.com/language/translate/v2"`

	RequestTimeout time.Duration `env:"EXPERTLY_TRANSLATE_TIMEOUT" envDefault:"5s"`
	MaxRetries     int           `env:"EXPERTLY_TRANSLATE_MAX_RETRIES" envDefault:"2"`
	RetryBackoff   time.Duration `env:"EXPERTLY_TRANSLATE_RETRY_BACKOFF" envDefault:"150ms"`

	// Circuit breaker: open after BreakerFailures consecutive failures,
	// probe again after BreakerCooldown.
	BreakerFailures uint32        `env:"EXPERTLY_TRANSLATE_BREAKER_FAILURES" envDefault:"5"`
	BreakerCooldown time.Duration `env:"EXPERTLY_TRANSLATE_BREAKER_COOLDOWN" envDefault:"30s"`
}

// LoadConfig reads the backend configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("translate: parse config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the production defaults with no API key.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://translation.googleapis.com/language/translate/v2",
		RequestTimeout:  5 * time.Second,
		MaxRetries:      2,
		RetryBackoff:    150 * time.Millisecond,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}
