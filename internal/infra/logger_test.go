package infra

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		env, level string
		want       zerolog.Level
	}{
		{"development", "", zerolog.DebugLevel},
		{"production", "", zerolog.InfoLevel},
		{"production", "warn", zerolog.WarnLevel},
		{"production", "bogus", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		if got := newLogger(&buf, tc.env, tc.level).GetLevel(); got != tc.want {
			t.Fatalf("%s/%q: level = %s, want %s", tc.env, tc.level, got, tc.want)
		}
	}
}

func TestNewLoggerProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "")
	logger.Info().Str("k", "v").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line: %v (%q)", err, buf.String())
	}
	if entry["service"] != "posemind" || entry["k"] != "v" || entry["message"] != "hello" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
