// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Retry
// =============================================================================

// Backoff selects how the wait between attempts grows.
type Backoff int

const (
	// Fixed waits Interval between every attempt.
	Fixed Backoff = iota

	// Linear waits Interval × attempt after each failed attempt.
	Linear
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryConfig bounds a retry loop.
type RetryConfig struct {
	// Attempts is the maximum number of calls. Values below 1 mean 1.
	Attempts int

	// Interval is the base wait between attempts.
	Interval time.Duration

	// Backoff selects Fixed or Linear growth.
	Backoff Backoff

	// Sleep replaces the real wait in tests. Nil uses SleepContext.
	Sleep SleepFunc

	// OnRetry, if set, is called after each failed attempt that will be
	// retried.
	OnRetry func(attempt int, err error)
}

// ErrPermanent marks an error that must not be retried.
var ErrPermanent = errors.New("permanent failure")

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() []error {
	return []error{p.err, ErrPermanent}
}

// Permanent wraps err so Retry returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error { return e.Last }

// Retry calls op until it succeeds, returns a Permanent error, the attempts
// run out, or ctx is done.
//
// # Inputs
//
//   - ctx: cancellation is checked before every attempt and during waits
//   - cfg: attempt bound and interval
//   - op: receives the 1-based attempt number
//
// # Outputs
//
//   - error: nil on success; the unwrapped permanent error; ctx.Err() on
//     cancellation; *ExhaustedError when attempts run out
func Retry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context, attempt int) error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = op(ctx, attempt)
		if last == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}

		if attempt == attempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, last)
		}

		wait := cfg.Interval
		if cfg.Backoff == Linear {
			wait = cfg.Interval * time.Duration(attempt)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	return &ExhaustedError{Attempts: attempts, Last: last}
}

// SleepContext waits for d or returns ctx.Err() if ctx finishes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoSleep is a SleepFunc that returns immediately. Used in tests.
func NoSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}
