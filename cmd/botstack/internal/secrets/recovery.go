// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Recovery decides what to do after a failed lifecycle run.
//
// # Description
//
// When an installed stack is detected (store binary, non-empty store data
// directory, or store config file) the bundle and env file are never
// removed: Recover restarts the store and the caller retries once. With no
// installed stack, stale bundle and env files are deleted so a fresh
// initialization can proceed.
type Recovery struct {
	StackPath  string
	BundlePath string
	EnvPath    string

	// Restart stops and starts the store process. Nil skips the restart.
	Restart func(ctx context.Context) error

	// InstalledFunc, if set, is consulted in addition to the file checks of
	// Installed. Used when the store lives in a container rather than under
	// StackPath.
	InstalledFunc func() bool

	Logger *slog.Logger
}

// StoreBinary returns the path checked for an installed store.
func (r *Recovery) StoreBinary() string {
	return filepath.Join(r.StackPath, "bin", "secrets", "vault")
}

// StoreData returns the store's data directory.
func (r *Recovery) StoreData() string {
	return filepath.Join(r.StackPath, "data", "secrets")
}

// StoreConfig returns the store's config file.
func (r *Recovery) StoreConfig() string {
	return filepath.Join(r.StackPath, "conf", "vault", "config.hcl")
}

// Installed reports whether any trace of an installed store exists.
func (r *Recovery) Installed() bool {
	if fileExists(r.StoreBinary()) || fileExists(r.StoreConfig()) || dirNonEmpty(r.StoreData()) {
		return true
	}
	return r.InstalledFunc != nil && r.InstalledFunc()
}

// Recover acts on a lifecycle failure cause.
//
// # Outputs
//
//   - nil when the caller should retry the lifecycle.
//   - A *RemediationError wrapping ErrManualIntervention when the restart
//     itself failed on an installed stack.
func (r *Recovery) Recover(ctx context.Context, cause error) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if r.Installed() {
		logger.Warn("Secrets store failed on an installed stack; restarting store",
			"error", cause)
		if r.Restart == nil {
			return nil
		}
		if err := r.Restart(ctx); err != nil {
			return r.manual(fmt.Errorf("restart secrets store: %w", err))
		}
		return nil
	}

	logger.Warn("No installed stack found; removing stale secrets files",
		"bundle", r.BundlePath,
		"env", r.EnvPath,
		"error", cause)
	for _, p := range []string{r.BundlePath, r.EnvPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// GiveUp converts the error of a failed retry into ErrManualIntervention
// when the stack is installed.
func (r *Recovery) GiveUp(err error) error {
	if !r.Installed() {
		return err
	}
	var rem *RemediationError
	if errors.As(err, &rem) {
		return err
	}
	return r.manual(err)
}

func (r *Recovery) manual(err error) error {
	return &RemediationError{
		Err: fmt.Errorf("%w: %w", ErrManualIntervention, err),
		Steps: []string{
			"Check " + filepath.Join(r.StackPath, "logs", "secrets") + " for the store's startup error.",
			"Keep " + r.BundlePath + " and " + r.EnvPath + "; they are required to unseal the existing store.",
			"Start the store manually and re-run once it answers on its health endpoint.",
		},
	}
}

// RunWithRecovery runs the lifecycle and, on a failure that is not already
// a remediation, applies rec once and retries.
func (l *Lifecycle) RunWithRecovery(ctx context.Context, seed Seed, rec *Recovery) (*RunResult, error) {
	res, err := l.Run(ctx, seed)
	if err == nil || rec == nil {
		return res, err
	}
	var rem *RemediationError
	if errors.As(err, &rem) || ctx.Err() != nil {
		return res, err
	}

	if rerr := rec.Recover(ctx, err); rerr != nil {
		return res, rerr
	}
	res, err = l.Run(ctx, seed)
	if err != nil {
		return res, rec.GiveUp(err)
	}
	return res, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func dirNonEmpty(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}
