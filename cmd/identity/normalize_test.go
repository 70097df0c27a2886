package identity

import "testing"

func TestNormalizeUsername(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Alice", "alice"},
		{"  Alice  ", "alice"},
		{"BOB_42", "bob_42"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeUsername(tc.in); got != tc.want {
			t.Fatalf("NormalizeUsername(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeLanguage(t *testing.T) {
	cases := []struct{ in, want string }{
		{"EN", "en"},
		{"en-US", "en"},
		{"pt_BR", "pt"},
		{"  Fa ", "fa"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeLanguage(tc.in); got != tc.want {
			t.Fatalf("NormalizeLanguage(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}
