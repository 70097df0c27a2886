package app

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestColorizeStatusCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code int
		want string
	}{
		{code: 200, want: ansiGreen},
		{code: 302, want: ansiCyan},
		{code: 404, want: ansiYellow},
		{code: 500, want: ansiRed},
	}

	for _, tc := range cases {
		got := colorizeStatusCode(tc.code, true)
		if !strings.HasPrefix(got, tc.want) {
			t.Fatalf("colorizeStatusCode(%d)=%q want prefix %q", tc.code, got, tc.want)
		}
	}

	if got := colorizeStatusCode(500, false); got != "500" {
		t.Fatalf("colorless status=%q want 500", got)
	}
}

func TestColorizeDurationMS(t *testing.T) {
	t.Parallel()

	if got := colorizeDurationMS(5, false); got != "5ms" {
		t.Fatalf("colorless duration=%q", got)
	}
	if got := colorizeDurationMS(1500, true); !strings.HasPrefix(got, ansiRed) {
		t.Fatalf("slow duration should be red: %q", got)
	}
	if got := colorizeDurationMS(300, true); !strings.HasPrefix(got, ansiYellow) {
		t.Fatalf("medium duration should be yellow: %q", got)
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "", want: `""`},
		{in: "plain", want: "plain"},
		{in: "has space", want: `"has space"`},
		{in: `k="v"`, want: `"k=\"v\""`},
	}

	for _, tc := range cases {
		if got := quoteIfNeeded(tc.in); got != tc.want {
			t.Fatalf("quoteIfNeeded(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestPrettyHandlerOutput(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	h := newPrettyHandler(&sb, &slog.HandlerOptions{Level: slog.LevelInfo}, false)
	log := slog.New(h)

	log.Info("http.request", "method", "GET", "path", "/healthz", "status", 200, "duration_ms", 3)

	out := sb.String()
	for _, want := range []string{"msg=http.request", "method=GET", "path=/healthz", "status=200", "duration_ms=3ms"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestPrettyHandlerGroupsAndAttrs(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	h := newPrettyHandler(&sb, nil, false)
	log := slog.New(h).With("service", "expertly").WithGroup("req")

	log.Info("hit", "id", "abc")

	out := sb.String()
	if !strings.Contains(out, "service=expertly") {
		t.Fatalf("output %q missing bound attr", out)
	}
	if !strings.Contains(out, "req.id=abc") {
		t.Fatalf("output %q missing grouped attr", out)
	}
}

func TestPrettyHandlerRespectsLevel(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	h := newPrettyHandler(&sb, &slog.HandlerOptions{Level: slog.LevelWarn}, false)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("error should be enabled at warn level")
	}
}

func TestValueToString(t *testing.T) {
	t.Parallel()

	when := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		in   slog.Value
		want string
	}{
		{in: slog.StringValue("s"), want: "s"},
		{in: slog.IntValue(7), want: "7"},
		{in: slog.BoolValue(true), want: "true"},
		{in: slog.DurationValue(2 * time.Second), want: "2s"},
		{in: slog.TimeValue(when), want: "2024-06-01T12:00:00Z"},
	}

	for _, tc := range cases {
		if got := valueToString(tc.in); got != tc.want {
			t.Fatalf("valueToString(%v)=%q want=%q", tc.in, got, tc.want)
		}
	}
}
