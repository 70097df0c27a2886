package identity

import "strings"

// NormalizeUsername performs case-insensitive canonicalization.
// Note: for now we only trim + lower-case. Additional rules (unicode
// confusables) can be added later behind a versioned policy.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeLanguage canonicalizes a BCP-47-ish language tag to its lower-case
// primary subtag ("EN-us" -> "en"). Empty input stays empty.
func NormalizeLanguage(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(s, "-_"); i > 0 {
		s = s[:i]
	}
	return s
}
