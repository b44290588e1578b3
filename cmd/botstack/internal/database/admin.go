// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/resilience"
)

// Readiness defaults.
const (
	DefaultReadyAttempts = 30
	DefaultReadyInterval = time.Second

	maxIdentifier = 63
)

// Admin is the administrative surface the bootstrap needs.
type Admin interface {
	Ping(ctx context.Context) error
	DatabaseExists(ctx context.Context, name string) (bool, error)
	CreateDatabase(ctx context.Context, name, owner string) error
	EnsureRole(ctx context.Context, name, password string) (created bool, err error)
	ApplyMigrations(ctx context.Context, database string, migrations []Migration) (applied []string, err error)
	Close(ctx context.Context) error
}

// Connector opens an Admin session.
type Connector func(ctx context.Context) (Admin, error)

// Migration is one SQL file.
type Migration struct {
	Version string
	SQL     string
}

// ReadyConfig bounds WaitReady.
type ReadyConfig struct {
	Attempts int
	Interval time.Duration
	Sleep    resilience.SleepFunc
	Logger   *slog.Logger
}

// WaitReady connects and pings until the database answers.
//
// # Outputs
//
//   - Admin: an open session owned by the caller.
//   - error: ErrNotReady wrapping the last failure, or ctx.Err().
func WaitReady(ctx context.Context, connect Connector, cfg ReadyConfig) (Admin, error) {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultReadyAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReadyInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var admin Admin
	err := resilience.Retry(ctx, resilience.RetryConfig{
		Attempts: cfg.Attempts,
		Interval: cfg.Interval,
		Sleep:    cfg.Sleep,
		OnRetry: func(attempt int, err error) {
			logger.Debug("Database not ready", "attempt", attempt, "error", err)
		},
	}, func(ctx context.Context, attempt int) error {
		a, err := connect(ctx)
		if err != nil {
			return err
		}
		if err := a.Ping(ctx); err != nil {
			_ = a.Close(ctx)
			return err
		}
		admin = a
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrNotReady, cfg.Attempts, err)
	}
	return admin, nil
}

// EnsureDatabase creates name owned by owner if it does not exist.
func EnsureDatabase(ctx context.Context, a Admin, name, owner string) (created bool, err error) {
	if err := validIdentifier(name); err != nil {
		return false, err
	}
	exists, err := a.DatabaseExists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := a.CreateDatabase(ctx, name, owner); err != nil {
		return false, err
	}
	return true, nil
}

// LoadMigrations reads *.sql files from dir sorted by name. A missing
// directory yields no migrations.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), SQL: string(data)})
	}
	return out, nil
}

func validIdentifier(name string) error {
	if name == "" || len(name) > maxIdentifier {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
