package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration options
type Config struct {
	// Format specifies the log output format: "json" or "console"
	Format string
	// Level specifies the minimum log level: "debug", "info", "warn", "error"
	Level string
	// Output specifies where logs are written (defaults to os.Stderr)
	Output zapcore.WriteSyncer
	// Counts, when set, tallies every written entry by level
	Counts *Counts
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		Format: "console",
		Level:  "info",
		Output: os.Stderr,
	}
}

// NewLogger creates a new zap logger based on the provided configuration
func NewLogger(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "json", "":
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "text", "console":
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	var core zapcore.Core = zapcore.NewCore(encoder, output, level)
	if cfg.Counts != nil {
		core = &countingCore{Core: core, counts: cfg.Counts}
	}

	return zap.New(core, zap.AddCaller()), nil
}

// NewWriterLogger is NewLogger writing to w
func NewWriterLogger(w io.Writer, format, level string) (*zap.Logger, error) {
	return NewLogger(Config{Format: format, Level: level, Output: zapcore.AddSync(w)})
}

// parseLevel converts a string level to zapcore.Level
func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// Counts tallies log entries by severity
type Counts struct {
	warnings atomic.Int64
	errors   atomic.Int64
}

// Warnings returns the number of warn-level entries written
func (c *Counts) Warnings() int64 { return c.warnings.Load() }

// Errors returns the number of error-level (and above) entries written
func (c *Counts) Errors() int64 { return c.errors.Load() }

// countingCore wraps a zapcore.Core to count entries
type countingCore struct {
	zapcore.Core
	counts *Counts
}

// Check determines whether the entry should be logged
//
//nolint:gocritic // hugeParam: interface requires value receiver
func (c *countingCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

// Write logs the entry and bumps its level counter
//
//nolint:gocritic // hugeParam: interface requires value receiver
func (c *countingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	switch {
	case entry.Level >= zapcore.ErrorLevel:
		c.counts.errors.Add(1)
	case entry.Level == zapcore.WarnLevel:
		c.counts.warnings.Add(1)
	}
	return c.Core.Write(entry, fields)
}

// With creates a child core with additional fields
func (c *countingCore) With(fields []zapcore.Field) zapcore.Core {
	return &countingCore{Core: c.Core.With(fields), counts: c.counts}
}
