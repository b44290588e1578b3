// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides the structured logger used by botstack.
//
// Records go to stderr as text (or JSON) and, when LogDir is set, to a
// daily JSON file named {service}_{YYYY-MM-DD}.log. Every record carries
// the service attribute.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "/srv/botserver-stack/logs/system",
//	    Service: "botstack",
//	})
//	defer logger.Close()
//	logger.Slog().Info("bootstrap started")
//
// Internal packages take the *slog.Logger returned by Slog.
//
// # Thread Safety
//
// Logger is safe for concurrent use.
//
// # Security Considerations
//
// Nothing is redacted. Callers log the presence of credentials, never
// their values.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity. Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelInfo = [...]struct {
	name string
	slog slog.Level
}{
	LevelDebug: {"DEBUG", slog.LevelDebug},
	LevelInfo:  {"INFO", slog.LevelInfo},
	LevelWarn:  {"WARN", slog.LevelWarn},
	LevelError: {"ERROR", slog.LevelError},
}

func (l Level) known() bool { return l >= LevelDebug && int(l) < len(levelInfo) }

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	if !l.known() {
		return "UNKNOWN"
	}
	return levelInfo[l].name
}

// slogLevel maps unknown levels to Info.
func (l Level) slogLevel() slog.Level {
	if !l.known() {
		return slog.LevelInfo
	}
	return levelInfo[l].slog
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures a Logger. The zero value writes Info and above to
// stderr as text.
type Config struct {
	// Level is the minimum level emitted. Default LevelInfo.
	Level Level

	// LogDir enables the JSON file handler. Created with 0750 if missing.
	// A leading ~ expands to the home directory.
	LogDir string

	// Service is attached to every record as "service".
	Service string

	// JSON switches stderr output to JSON. File output is always JSON.
	JSON bool

	// Quiet disables stderr output.
	Quiet bool

	// Stderr replaces os.Stderr.
	Stderr io.Writer

	// Now dates the log file. Default time.Now.
	Now func() time.Time
}

// =============================================================================
// Logger
// =============================================================================

// Logger fans records out to stderr and the optional log file.
//
// # Resource Management
//
// Close releases the file handle. Loggers derived with With share it and
// must not be used after the parent is closed.
type Logger struct {
	slog *slog.Logger
	path string

	mu   sync.Mutex
	file *os.File
}

// New builds a Logger from config. A log file that cannot be opened is
// skipped; Path then returns "".
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.slogLevel()}
	stderr := config.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var handlers []slog.Handler
	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(stderr, opts))
		}
	}

	logger := &Logger{}
	if config.LogDir != "" {
		if file, path, err := openLogFile(config); err == nil {
			logger.file = file
			logger.path = path
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = fanout(handlers)
	}
	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	logger.slog = slog.New(handler)
	return logger
}

func openLogFile(config Config) (*os.File, string, error) {
	dir := expandPath(config.LogDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, "", err
	}
	service := config.Service
	if service == "" {
		service = "botstack"
	}
	now := time.Now
	if config.Now != nil {
		now = config.Now
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", service, now().Format("2006-01-02")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, "", err
	}
	return file, path, nil
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Path returns the log file path, or "" without file logging.
func (l *Logger) Path() string { return l.path }

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child logger sharing the parent's destinations.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), path: l.path}
}

// Close closes the log file. Safe to call more than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// =============================================================================
// Helpers
// =============================================================================

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle returns the first handler error after offering r to all of them.
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
