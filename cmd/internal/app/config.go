package app

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"expertly/cmd/internal/auth/session"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr    string `env:"EXPERTLY_HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	Environment string `env:"EXPERTLY_ENV" envDefault:"development"`
	LogLevel    string `env:"EXPERTLY_LOG_LEVEL" envDefault:"info"`
	LogPretty   bool   `env:"EXPERTLY_LOG_PRETTY" envDefault:"false"`

	ReadHeaderTimeout time.Duration `env:"EXPERTLY_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"EXPERTLY_HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"EXPERTLY_HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"EXPERTLY_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"EXPERTLY_HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	DatabaseURL string `env:"EXPERTLY_DATABASE_URL"`
	DBMaxConns  int32  `env:"EXPERTLY_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"EXPERTLY_DB_MIN_CONNS" envDefault:"0"`

	RedisAddr     string `env:"EXPERTLY_REDIS_ADDR"`
	RedisPassword string `env:"EXPERTLY_REDIS_PASSWORD"`
	RedisDB       int    `env:"EXPERTLY_REDIS_DB" envDefault:"0"`

	AccessTokenSecret  string        `env:"EXPERTLY_ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret string        `env:"EXPERTLY_REFRESH_TOKEN_SECRET"`
	AccessTokenTTL     time.Duration `env:"EXPERTLY_ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL    time.Duration `env:"EXPERTLY_REFRESH_TOKEN_TTL" envDefault:"168h"`

	// If true, /readyz returns 503 unless the database is configured and
	// reachable.
	ReadinessRequireDB bool `env:"EXPERTLY_READINESS_REQUIRE_DB" envDefault:"false"`

	// If true, EXPERTLY_TOKEN_HMAC_KEY must be set (>= 32 bytes) so stored
	// refresh-token digests are HMAC-based.
	RequireTokenHMAC bool `env:"EXPERTLY_REQUIRE_TOKEN_HMAC" envDefault:"false"`
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("app: parse config: %w", err)
	}
	return cfg, nil
}

// Production reports whether the app runs with production policies.
func (c Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// SessionConfig derives the token-signing configuration. Missing secrets are
// fatal in production; development gets ephemeral random secrets so every
// restart invalidates old tokens, which is fine locally.
func (c Config) SessionConfig(log Logger) (session.Config, error) {
	access := []byte(strings.TrimSpace(c.AccessTokenSecret))
	refresh := []byte(strings.TrimSpace(c.RefreshTokenSecret))

	if len(access) == 0 || len(refresh) == 0 {
		if c.Production() {
			return session.Config{}, errors.New("app: EXPERTLY_ACCESS_TOKEN_SECRET and EXPERTLY_REFRESH_TOKEN_SECRET are required in production")
		}
		log.Warn("session.secrets.ephemeral", "reason", "token secrets not configured")
		var err error
		if access, err = randomSecret(32); err != nil {
			return session.Config{}, err
		}
		if refresh, err = randomSecret(32); err != nil {
			return session.Config{}, err
		}
	}

	cfg := session.Config{
		AccessSecret:  access,
		RefreshSecret: refresh,
		AccessTTL:     c.AccessTokenTTL,
		RefreshTTL:    c.RefreshTokenTTL,
		Issuer:        "expertly",
	}
	return cfg, cfg.Validate()
}

func randomSecret(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("app: generate secret: %w", err)
	}
	return b, nil
}
