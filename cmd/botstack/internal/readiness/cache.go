// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package readiness

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/resilience"
)

// DefaultCacheAddr is the cache listener on the host.
const DefaultCacheAddr = "localhost:6379"

// Pinger is the subset of a Redis client the cache probe uses.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// CacheOptions configures the Redis protocol client.
type CacheOptions struct {
	Addr     string
	Password string
	TLS      *tls.Config
}

// NewCacheClient returns a Redis client for the cache. The caller closes it.
func NewCacheClient(opts CacheOptions) *redis.Client {
	if opts.Addr == "" {
		opts.Addr = DefaultCacheAddr
	}
	return redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		TLSConfig:    opts.TLS,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		MaxRetries:   -1,
	})
}

// CacheProbe waits until an authenticated PING succeeds.
type CacheProbe struct {
	Client Pinger

	Attempts int
	Interval time.Duration
	Sleep    resilience.SleepFunc
	Logger   *slog.Logger
}

// Wait runs the probe.
func (p *CacheProbe) Wait(ctx context.Context) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := attemptsOr(p.Attempts)
	err := resilience.Retry(ctx, resilience.RetryConfig{
		Attempts: attempts,
		Interval: intervalOr(p.Interval),
		Sleep:    p.Sleep,
	}, func(ctx context.Context, attempt int) error {
		if err := p.Client.Ping(ctx).Err(); err != nil {
			logger.Debug("Cache not ready", "attempt", attempt, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ProbeError{Service: "cache", Attempts: attempts, Err: unwrapExhausted(err)}
	}
	return nil
}
