package authapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	Environment  string `env:"EXPERTLY_ENV" envDefault:"development"`
	CookieDomain string `env:"EXPERTLY_AUTH_COOKIE_DOMAIN"`
	MaxBodyBytes int64  `env:"EXPERTLY_AUTH_MAX_BODY_BYTES" envDefault:"1048576"`
	TrustProxy   bool   `env:"EXPERTLY_AUTH_TRUST_PROXY" envDefault:"false"`

	LoginFailureMax    int           `env:"EXPERTLY_AUTH_LOGIN_FAILURE_MAX" envDefault:"10"`
	LoginFailureWindow time.Duration `env:"EXPERTLY_AUTH_LOGIN_FAILURE_WINDOW" envDefault:"5m"`
}

// DefaultConfig returns the configuration used when no environment
// overrides are present.
func DefaultConfig() Config {
	return Config{
		Environment:        "development",
		MaxBodyBytes:       1 << 20,
		LoginFailureMax:    10,
		LoginFailureWindow: 5 * time.Minute,
	}
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("authapi: parse config: %w", err)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.LoginFailureMax <= 0 {
		cfg.LoginFailureMax = 10
	}
	if cfg.LoginFailureWindow <= 0 {
		cfg.LoginFailureWindow = 5 * time.Minute
	}
	return cfg, nil
}

// Production reports whether cookies should carry cross-site settings.
func (c Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}
