package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level       string
		development bool
		wantErr     bool
	}{
		{"info", false, false},
		{"debug", true, false},
		{"warn", false, false},
		{"loud", false, true},
	}

	for _, tt := range tests {
		logger, err := New(tt.level, tt.development)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q, %v) error = %v, wantErr %v", tt.level, tt.development, err, tt.wantErr)
			continue
		}
		if err == nil && logger == nil {
			t.Errorf("New(%q, %v) returned nil logger", tt.level, tt.development)
		}
	}
}

func TestNew_LevelEnabled(t *testing.T) {
	logger, err := New("warn", false)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("Expected debug to be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("Expected error to be enabled at warn level")
	}
}
