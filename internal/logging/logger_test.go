package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
		level  string
	}{
		{"JSON Info", "json", "info"},
		{"JSON Debug", "json", "debug"},
		{"Console Warn", "console", "warn"},
		{"Text Error", "text", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewWriterLogger(&buf, tt.format, tt.level)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			logger.Error("heartbeat")
			if !strings.Contains(buf.String(), "heartbeat") {
				t.Errorf("expected entry in output, got: %s", buf.String())
			}
		})
	}
}

func TestNewLogger_Invalid(t *testing.T) {
	if _, err := NewLogger(Config{Format: "json", Level: "loud"}); err == nil {
		t.Error("expected error for invalid log level")
	}
	if _, err := NewLogger(Config{Format: "xml", Level: "info"}); err == nil {
		t.Error("expected error for invalid log format")
	}
}

func TestStructuredLogging(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriterLogger(&buf, "json", "info")
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("ballots loaded", zap.String("city", "cambridge"), zap.Int("ballots", 42))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "ballots loaded" {
		t.Errorf("expected msg, got %v", entry["msg"])
	}
	if entry["city"] != "cambridge" {
		t.Errorf("expected city field, got %v", entry["city"])
	}
	if entry["ballots"] != float64(42) {
		t.Errorf("expected ballots field, got %v", entry["ballots"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("expected timestamp key")
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewWriterLogger(&buf, "json", "warn")

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	output := buf.String()
	if strings.Contains(output, "info message") || strings.Contains(output, "debug message") {
		t.Errorf("entries below warn should be filtered, got: %s", output)
	}
	if !strings.Contains(output, "warn message") {
		t.Errorf("expected warn message, got: %s", output)
	}
}

func TestCounts(t *testing.T) {
	var buf bytes.Buffer
	counts := &Counts{}
	logger, err := NewLogger(Config{Format: "json", Level: "warn", Counts: counts, Output: zapcore.AddSync(&buf)})
	if err != nil {
		t.Fatal(err)
	}

	child := logger.With(zap.String("precinct", "1-1"))
	logger.Info("filtered")
	logger.Warn("w1")
	child.Warn("w2")
	child.Error("e1")

	if counts.Warnings() != 2 {
		t.Errorf("expected 2 warnings, got %d", counts.Warnings())
	}
	if counts.Errors() != 1 {
		t.Errorf("expected 1 error, got %d", counts.Errors())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Format != "console" || cfg.Level != "info" {
		t.Errorf("expected console/info, got %s/%s", cfg.Format, cfg.Level)
	}
	if cfg.Output == nil {
		t.Error("expected default output to be set")
	}

	if _, err := NewLogger(cfg); err != nil {
		t.Errorf("expected default config to build a logger, got %v", err)
	}
}
