package chat

import "testing"

func TestDecideTranslation(t *testing.T) {
	cases := []struct {
		name                           string
		detected, senderPref, receiver string
		want                           decision
	}{
		{
			name:     "no receiver preference",
			detected: "fa", senderPref: "fa", receiver: "",
			want: decision{},
		},
		{
			name:     "detected matches receiver",
			detected: "es", senderPref: "", receiver: "es",
			want: decision{snapshot: true, target: "es"},
		},
		{
			name:     "detected matches receiver and sender agrees",
			detected: "es", senderPref: "es", receiver: "es",
			want: decision{snapshot: true, target: "es"},
		},
		{
			name:     "detected matches receiver but sender declared differently",
			detected: "es", senderPref: "fa", receiver: "es",
			want: decision{translate: true, source: "fa", target: "es"},
		},
		{
			name:     "english to non-english goes through auto source",
			detected: "en", senderPref: "", receiver: "fa",
			want: decision{translate: true, source: "", target: "fa"},
		},
		{
			name:     "english to non-english ignores sender hint",
			detected: "en", senderPref: "fa", receiver: "de",
			want: decision{translate: true, source: "", target: "de"},
		},
		{
			name:     "non-english to english uses detected source",
			detected: "fa", senderPref: "", receiver: "en",
			want: decision{translate: true, source: "fa", target: "en"},
		},
		{
			name:     "non-english to english prefers detected over sender hint",
			detected: "fa", senderPref: "ar", receiver: "en",
			want: decision{translate: true, source: "fa", target: "en"},
		},
		{
			name:     "mismatched non-english pair prefers sender hint",
			detected: "es", senderPref: "pt", receiver: "fa",
			want: decision{translate: true, source: "pt", target: "fa"},
		},
		{
			name:     "mismatched non-english pair without hint uses detection",
			detected: "es", senderPref: "", receiver: "fa",
			want: decision{translate: true, source: "es", target: "fa"},
		},
		{
			name:     "sender hint equal to target falls back to detection",
			detected: "fr", senderPref: "es", receiver: "es",
			want: decision{translate: true, source: "fr", target: "es"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decideTranslation(tc.detected, tc.senderPref, tc.receiver)
			if got != tc.want {
				t.Fatalf("decideTranslation(%q,%q,%q)=%+v want %+v",
					tc.detected, tc.senderPref, tc.receiver, got, tc.want)
			}
		})
	}
}

func TestDisplayFor(t *testing.T) {
	msg := Message{
		SenderID:          "sender",
		Content:           "hola",
		TranslatedContent: "hello",
		IsTranslated:      true,
	}

	if got := msg.DisplayFor("sender", true); got != "hola" {
		t.Fatalf("sender sees %q", got)
	}
	if got := msg.DisplayFor("receiver", true); got != "hello" {
		t.Fatalf("receiver sees %q", got)
	}
	if got := msg.DisplayFor("receiver", false); got != "hola" {
		t.Fatalf("receiver with translation off sees %q", got)
	}

	plain := Message{SenderID: "sender", Content: "hola"}
	if got := plain.DisplayFor("receiver", true); got != "hola" {
		t.Fatalf("untranslated message shows %q", got)
	}
}
