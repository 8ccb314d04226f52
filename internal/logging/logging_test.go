package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		want          zapcore.Level
	}{
		{"debug", "console", zapcore.DebugLevel},
		{"info", "json", zapcore.InfoLevel},
		{"warn", "console", zapcore.WarnLevel},
		{"error", "json", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			log, err := New(tt.level, tt.format)
			if err != nil {
				t.Fatal(err)
			}
			if !log.Core().Enabled(tt.want) {
				t.Errorf("level %v disabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && log.Core().Enabled(tt.want-1) {
				t.Errorf("level %v enabled", tt.want-1)
			}
		})
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New("loud", "console"); err == nil {
		t.Error("invalid level accepted")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Error("invalid encoding accepted")
	}
}
