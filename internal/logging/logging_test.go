package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, true},
		{" WARN ", zerolog.WarnLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseLevel(tt.raw)
			if got != tt.want || ok != tt.ok {
				t.Errorf("parseLevel(%q) = %s, %v; want %s, %v", tt.raw, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogTimestamp, "maybe")

	s := defaultSettings(ProfileRuntime)
	applyEnvOverrides(&s)

	if s.level != zerolog.ErrorLevel || !s.noColor || !s.timestamp {
		t.Errorf("settings = %+v", s)
	}
}

func TestNew(t *testing.T) {
	ConfigureTests()

	var buf bytes.Buffer
	log := New("cardsim", &buf)
	log.Debug().Str("sw", "9000").Msg("command")

	out := buf.String()
	if !strings.Contains(out, "command") || !strings.Contains(out, "app=cardsim") || !strings.Contains(out, "sw=9000") {
		t.Errorf("unexpected log line %q", out)
	}
}
