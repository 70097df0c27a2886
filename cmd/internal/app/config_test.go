package app

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestProduction(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want bool
	}{
		{in: "production", want: true},
		{in: "PRODUCTION", want: true},
		{in: " production ", want: true},
		{in: "development", want: false},
		{in: "", want: false},
	}

	for _, tc := range cases {
		cfg := Config{Environment: tc.in}
		if got := cfg.Production(); got != tc.want {
			t.Fatalf("Production(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestSessionConfigRequiresSecretsInProduction(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Environment:     "production",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 168 * time.Hour,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := cfg.SessionConfig(log); err == nil {
		t.Fatal("expected error for missing secrets in production")
	}
}

func TestSessionConfigGeneratesEphemeralSecretsInDev(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Environment:     "development",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 168 * time.Hour,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessCfg, err := cfg.SessionConfig(log)
	if err != nil {
		t.Fatalf("SessionConfig: %v", err)
	}
	if len(sessCfg.AccessSecret) < 32 || len(sessCfg.RefreshSecret) < 32 {
		t.Fatalf("ephemeral secrets too short: %d/%d", len(sessCfg.AccessSecret), len(sessCfg.RefreshSecret))
	}
	if string(sessCfg.AccessSecret) == string(sessCfg.RefreshSecret) {
		t.Fatal("access and refresh secrets must differ")
	}
}

func TestSessionConfigUsesConfiguredSecrets(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Environment:        "production",
		AccessTokenSecret:  strings.Repeat("a", 32),
		RefreshTokenSecret: strings.Repeat("r", 32),
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    168 * time.Hour,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessCfg, err := cfg.SessionConfig(log)
	if err != nil {
		t.Fatalf("SessionConfig: %v", err)
	}
	if string(sessCfg.AccessSecret) != strings.Repeat("a", 32) {
		t.Fatalf("access secret not carried through")
	}
	if sessCfg.Issuer != "expertly" {
		t.Fatalf("issuer=%q want expertly", sessCfg.Issuer)
	}
}

func TestValidateSecurityConfigEnforcesHMACKey(t *testing.T) {
	t.Setenv("EXPERTLY_TOKEN_HMAC_KEY", "")

	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err == nil {
		t.Fatal("expected error when HMAC required but key missing")
	}
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: false}); err != nil {
		t.Fatalf("unexpected error without HMAC requirement: %v", err)
	}

	t.Setenv("EXPERTLY_TOKEN_HMAC_KEY", "too-short")
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err == nil {
		t.Fatal("expected error for short HMAC key")
	}

	t.Setenv("EXPERTLY_TOKEN_HMAC_KEY", strings.Repeat("k", 32))
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err != nil {
		t.Fatalf("unexpected error with valid key: %v", err)
	}
}
