package password

import (
	"strings"
	"testing"
)

func testConfig() Config {
	cfg := DefaultConfig()
	// Keep tests fast; production cost is irrelevant here.
	cfg.Params.MemoryKiB = 16 * 1024
	cfg.Params.Iterations = 1
	return cfg
}

func TestHashAndVerify(t *testing.T) {
	cfg := testConfig()

	enc, err := cfg.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(enc, "$argon2id$v=19$") {
		t.Fatalf("unexpected encoding: %s", enc)
	}

	ok, err := cfg.Verify(enc, "correct horse battery")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}

	ok, err = cfg.Verify(enc, "wrong password")
	if err != nil {
		t.Fatalf("Verify mismatch: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	cfg := testConfig()
	if _, err := cfg.Hash("short"); err != ErrPasswordTooShort {
		t.Fatalf("err=%v want=%v", err, ErrPasswordTooShort)
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	cfg := testConfig()

	cases := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=18$m=65536,t=3,p=1$c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=0,t=3,p=1$c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=1$!!!$aGFzaGhhc2hoYXNoaGFzaA",
	}
	for _, enc := range cases {
		if _, err := cfg.Verify(enc, "whatever"); err != ErrInvalidHash {
			t.Fatalf("Verify(%q): err=%v want=%v", enc, err, ErrInvalidHash)
		}
	}
}

func TestVerifyRejectsOversizedParams(t *testing.T) {
	cfg := testConfig()

	big := DefaultConfig()
	big.Params.MemoryKiB = cfg.Params.MemoryKiB * 8
	big.Policy.MinLength = 8
	enc, err := big.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if _, err := cfg.Verify(enc, "correct horse battery"); err != ErrInvalidHash {
		t.Fatalf("err=%v want=%v", err, ErrInvalidHash)
	}
}
