// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging builds the zerolog logger used by every stage. Console or
// JSON output goes to stderr; when a log file is configured, JSON records are
// also appended there.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-tracker/pkg/types"
)

// New returns a logger for cfg writing to stderr and, optionally, cfg.File.
// The returned close function releases the log file and is always non-nil.
func New(cfg types.LoggingConfig, stderr io.Writer) (zerolog.Logger, func() error, error) {
	noop := func() error { return nil }

	var console io.Writer = stderr
	if strings.ToLower(cfg.Format) != "json" {
		console = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.TimeOnly}
	}

	out := console
	closeFn := noop
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), noop, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), noop, fmt.Errorf("opening log file %s: %w", cfg.File, err)
		}
		out = zerolog.MultiLevelWriter(console, f)
		closeFn = f.Close
	}

	logger := zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
	return logger, closeFn, nil
}

// ParseLevel converts a level name to a zerolog.Level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithPaper adds paper-identifying fields to a logger.
func WithPaper(logger zerolog.Logger, p types.Paper) zerolog.Logger {
	return logger.With().
		Str("paper_id", p.ID).
		Str("title", truncate(p.Title, 80)).
		Logger()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
