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
	"time"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/resilience"
)

// Lifecycle defaults.
const (
	DefaultHealthAttempts = 30
	DefaultHealthInterval = time.Second
	DefaultSettleDelay    = 2 * time.Second
	DefaultKeyShares      = 1
	DefaultKeyThreshold   = 1
)

// Lifecycle drives the secrets store to an unsealed, populated state.
type Lifecycle struct {
	Store Store

	// BundlePath is the unseal bundle, normally <stack>/conf/vault/init.json.
	BundlePath string

	// EnvPath is the env file receiving VAULT_* entries.
	EnvPath string

	// Addr and the TLS paths are copied into the returned Credentials.
	Addr       string
	CACert     string
	ClientCert string
	ClientKey  string
	CacheTTL   int

	KeyShares    int
	KeyThreshold int

	HealthAttempts int
	HealthInterval time.Duration
	SettleDelay    time.Duration
	Sleep          resilience.SleepFunc

	Logger *slog.Logger
}

// RunResult reports what a run did besides returning credentials.
type RunResult struct {
	Credentials *Credentials
	Initialized bool
	Unsealed    bool
	Written     []string
	Kept        []string
}

// Run executes the lifecycle.
//
// # Description
//
//  1. Probe health until the store answers.
//  2. With a bundle on disk: unseal if sealed and verify.
//  3. Without a bundle: initialize (only if the store is uninitialized),
//     persist the bundle and env file, unseal.
//  4. Persist credentials to the env file.
//  5. Enable the KV v2 engine.
//  6. Write each default record that does not exist yet.
//
// # Outputs
//
//   - *RunResult: credentials and the records written or kept.
//   - error: ErrUnreachable, ErrStillSealed, or ErrCredentialsLost wrapped
//     in a *RemediationError. The bundle is never deleted here.
func (l *Lifecycle) Run(ctx context.Context, seed Seed) (*RunResult, error) {
	l.defaults()
	res := &RunResult{}

	if err := l.waitReachable(ctx); err != nil {
		return res, err
	}

	bundle, err := ReadBundle(l.BundlePath)
	switch {
	case err == nil:
		unsealed, err := l.unseal(ctx, bundle)
		if err != nil {
			return res, err
		}
		res.Unsealed = unsealed
	case errors.Is(err, fs.ErrNotExist):
		bundle, err = l.initialize(ctx)
		if err != nil {
			return res, err
		}
		res.Initialized = true
		res.Unsealed = true
	default:
		return res, err
	}

	l.Store.SetToken(bundle.RootToken)
	creds := &Credentials{
		Addr:       l.Addr,
		Token:      bundle.RootToken,
		CACert:     l.CACert,
		ClientCert: l.ClientCert,
		ClientKey:  l.ClientKey,
		CacheTTL:   l.CacheTTL,
	}
	if err := UpdateEnvFile(l.EnvPath, creds.EnvFileEntries()); err != nil {
		return res, fmt.Errorf("write env file: %w", err)
	}
	res.Credentials = creds

	if err := l.Store.EnableKV(ctx); err != nil {
		return res, err
	}

	written, kept, err := l.seedRecords(ctx, seed)
	res.Written, res.Kept = written, kept
	if err != nil {
		return res, err
	}

	l.Logger.Info("Secrets store ready",
		"initialized", res.Initialized,
		"written", len(written),
		"kept", len(kept))
	return res, nil
}

func (l *Lifecycle) defaults() {
	if l.Logger == nil {
		l.Logger = slog.Default()
	}
	if l.HealthAttempts <= 0 {
		l.HealthAttempts = DefaultHealthAttempts
	}
	if l.HealthInterval <= 0 {
		l.HealthInterval = DefaultHealthInterval
	}
	if l.SettleDelay < 0 {
		l.SettleDelay = 0
	}
	if l.Sleep == nil {
		l.Sleep = resilience.SleepContext
	}
	if l.KeyShares <= 0 {
		l.KeyShares = DefaultKeyShares
	}
	if l.KeyThreshold <= 0 {
		l.KeyThreshold = DefaultKeyThreshold
	}
	if l.CacheTTL <= 0 {
		l.CacheTTL = DefaultCacheTTL
	}
}

func (l *Lifecycle) waitReachable(ctx context.Context) error {
	var last Health
	err := resilience.Retry(ctx, resilience.RetryConfig{
		Attempts: l.HealthAttempts,
		Interval: l.HealthInterval,
		Sleep:    l.Sleep,
	}, func(ctx context.Context, attempt int) error {
		h, err := l.Store.Health(ctx)
		if err != nil {
			l.Logger.Debug("Secrets store not reachable yet", "attempt", attempt, "error", err)
			return err
		}
		last = h
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w after %d attempts: %w", ErrUnreachable, l.HealthAttempts, err)
	}
	l.Logger.Debug("Secrets store reachable",
		"initialized", last.Initialized,
		"sealed", last.Sealed,
		"standby", last.Standby)
	return nil
}

// unseal submits keys up to the threshold when the store is sealed.
func (l *Lifecycle) unseal(ctx context.Context, b *Bundle) (bool, error) {
	status, err := l.Store.SealStatus(ctx)
	if err != nil {
		return false, err
	}
	if !status.Sealed {
		return false, nil
	}

	need := status.Threshold
	if need <= 0 || need > len(b.UnsealKeysB64) {
		need = len(b.UnsealKeysB64)
	}
	for i := 0; i < need; i++ {
		st, err := l.Store.Unseal(ctx, b.UnsealKeysB64[i])
		if err != nil {
			return false, fmt.Errorf("submit unseal key %d/%d: %w", i+1, need, err)
		}
		if !st.Sealed {
			break
		}
	}

	if err := l.Sleep(ctx, l.SettleDelay); err != nil {
		return false, err
	}
	status, err = l.Store.SealStatus(ctx)
	if err != nil {
		return false, err
	}
	if status.Sealed {
		return false, fmt.Errorf("%w (progress %d/%d)", ErrStillSealed, status.Progress, status.Threshold)
	}
	l.Logger.Info("Secrets store unsealed", "keys_submitted", need)
	return true, nil
}

func (l *Lifecycle) initialize(ctx context.Context) (*Bundle, error) {
	status, err := l.Store.SealStatus(ctx)
	if err != nil {
		return nil, err
	}
	if status.Initialized {
		return nil, &RemediationError{
			Err: fmt.Errorf("%w (%s)", ErrCredentialsLost, l.BundlePath),
			Steps: []string{
				"Restore the unseal bundle from backup to " + l.BundlePath + " and re-run.",
				"Or, if the stored secrets are disposable, stop the stack, delete the secrets data directory and re-run to initialize a new store.",
			},
		}
	}

	// The keys exist only in the Init response until they are on disk, so
	// a signal must not interrupt Init or the writes that follow it.
	persistCtx := context.WithoutCancel(ctx)
	bundle, err := l.Store.Init(persistCtx, l.KeyShares, l.KeyThreshold)
	if err != nil {
		return nil, err
	}
	if err := WriteBundle(l.BundlePath, bundle); err != nil {
		return nil, fmt.Errorf("persist unseal bundle: %w", err)
	}
	if err := UpdateEnvFile(l.EnvPath, map[string]string{EnvAddr: l.Addr, EnvToken: bundle.RootToken}); err != nil {
		return nil, fmt.Errorf("write env file: %w", err)
	}
	l.Logger.Info("Secrets store initialized",
		"shares", l.KeyShares,
		"threshold", l.KeyThreshold,
		"bundle", l.BundlePath)

	if _, err := l.unseal(ctx, bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

func (l *Lifecycle) seedRecords(ctx context.Context, seed Seed) (written, kept []string, err error) {
	records := DefaultRecords(seed)
	for _, path := range RecordPaths {
		_, getErr := l.Store.Get(ctx, path)
		switch {
		case getErr == nil:
			kept = append(kept, path)
			continue
		case !errors.Is(getErr, ErrNotFound):
			return written, kept, getErr
		}
		if err := l.Store.Put(ctx, path, records[path]); err != nil {
			return written, kept, err
		}
		written = append(written, path)
	}
	return written, kept, nil
}
