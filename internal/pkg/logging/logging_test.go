package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "json")
	log.Info("token exchange", "client_secret", "s3cr3t", "access_token", "abc.def", "client_id", "public-id")

	out := buf.String()
	if strings.Contains(out, "s3cr3t") || strings.Contains(out, "abc.def") {
		t.Fatalf("credential leaked into log: %s", out)
	}
	if !strings.Contains(out, "public-id") {
		t.Errorf("non-secret attribute dropped: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
