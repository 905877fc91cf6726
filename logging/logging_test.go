package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input       string
		expected    zapcore.Level
		expectError bool
	}{
		{"DEBUG", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"ERROR", zapcore.ErrorLevel, false},
		{"FATAL", zapcore.FatalLevel, false},
		{"LOUD", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if (err != nil) != tt.expectError {
				t.Fatalf("ParseLevel(%q) error = %v, expectError %v", tt.input, err, tt.expectError)
			}
			if level != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, level, tt.expected)
			}
		})
	}
}

func TestNewWritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")

	logger, cleanup, err := New(Options{Level: "INFO", File: path, NoColor: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Sugar().Infof("Job %s: Queued -> Downloading", "abc12345")
	logger.Debug("filtered out")
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "Job abc12345: Queued -> Downloading") {
		t.Errorf("log file missing message: %q", content)
	}
	if !strings.Contains(content, "INFO") {
		t.Errorf("log file missing level: %q", content)
	}
	if strings.Contains(content, "filtered out") {
		t.Errorf("debug line written at INFO level")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, _, err := New(Options{Level: "NOPE"}); err == nil {
		t.Errorf("expected error for unknown level")
	}
}
