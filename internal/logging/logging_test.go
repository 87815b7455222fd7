package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"rsibot/internal/config"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tc := range cases {
		log := New(config.LoggingConfig{Level: tc.level})
		if log == nil {
			t.Fatalf("level %q: nil logger", tc.level)
		}
		if !log.Core().Enabled(tc.want) {
			t.Fatalf("level %q: expected %v enabled", tc.level, tc.want)
		}
		if tc.want > zapcore.DebugLevel && log.Core().Enabled(tc.want-1) {
			t.Fatalf("level %q: expected %v disabled", tc.level, tc.want-1)
		}
		_ = log.Sync()
	}
}
