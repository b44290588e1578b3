// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/component"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/resilience"
)

// Default download policy.
const (
	DefaultDownloadAttempts = 3
	DefaultDownloadInterval = 2 * time.Second
)

// Downloader fetches component artifacts into a per-component cache.
//
// # Description
//
// A cached file with non-zero size is reused without contacting the
// network. Fresh downloads are written to a .part file and renamed into
// place only when complete and non-empty. Failures are retried with a
// linear backoff (Interval × attempt). 401, 403, 404 and 410 responses are
// not retried.
//
// # Thread Safety
//
// Safe for concurrent use on different components.
type Downloader struct {
	// Client performs requests. Nil uses a client with a 30 minute timeout.
	Client *http.Client

	// CacheDir is the cache root; files land in CacheDir/<component>/.
	CacheDir string

	// Attempts bounds retries. Zero uses DefaultDownloadAttempts.
	Attempts int

	// Interval is the linear backoff base. Zero uses DefaultDownloadInterval.
	Interval time.Duration

	// Sleep replaces real waits in tests.
	Sleep resilience.SleepFunc

	// Logger receives progress. Nil uses slog.Default().
	Logger *slog.Logger
}

// NewDownloader creates a Downloader caching under cacheDir.
func NewDownloader(cacheDir string, logger *slog.Logger) *Downloader {
	return &Downloader{CacheDir: cacheDir, Logger: logger}
}

// CachePath returns where url is cached for name.
func (d *Downloader) CachePath(name, url string) string {
	return filepath.Join(d.CacheDir, name, component.DownloadFileName(url))
}

// Fetch returns a local path holding the artifact at url.
//
// # Inputs
//
//   - ctx: Cancels the request and the backoff waits
//   - name: Component name, selects the cache subdirectory
//   - url: Artifact URL
//
// # Outputs
//
//   - string: Path of the cached artifact
//   - error: ErrEmptyDownload, *DownloadError, or a transport error, after
//     the attempts are exhausted
func (d *Downloader) Fetch(ctx context.Context, name, url string) (string, error) {
	dest := d.CachePath(name, url)
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		d.logger().Debug("Using cached artifact", "component", name, "path", dest)
		return dest, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	err := d.download(ctx, name, url, dest)
	if err != nil {
		return "", fmt.Errorf("download %s for %s: %w", url, name, err)
	}

	d.logger().Info("Downloaded artifact", "component", name, "path", dest)
	return dest, nil
}

// FetchTo downloads url directly to dest unless dest already exists with
// non-zero size. Used for large data files that are not cached twice.
func (d *Downloader) FetchTo(ctx context.Context, url, dest string) error {
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return d.download(ctx, filepath.Base(filepath.Dir(dest)), url, dest)
}

func (d *Downloader) download(ctx context.Context, name, url, dest string) error {
	attempts := d.Attempts
	if attempts <= 0 {
		attempts = DefaultDownloadAttempts
	}
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultDownloadInterval
	}

	return resilience.Retry(ctx, resilience.RetryConfig{
		Attempts: attempts,
		Interval: interval,
		Backoff:  resilience.Linear,
		Sleep:    d.Sleep,
		OnRetry: func(attempt int, err error) {
			d.logger().Warn("Download failed, retrying", "component", name, "url", url, "attempt", attempt, "error", err)
		},
	}, func(ctx context.Context, attempt int) error {
		return d.fetchOnce(ctx, url, dest)
	})
}

func (d *Downloader) fetchOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return resilience.Permanent(err)
	}

	resp, err := d.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		derr := &DownloadError{URL: url, StatusCode: resp.StatusCode}
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusGone:
			return resilience.Permanent(derr)
		}
		return derr
	}

	part := dest + ".part"
	f, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return resilience.Permanent(err)
	}

	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(part)
		return err
	}
	if n == 0 {
		os.Remove(part)
		return ErrEmptyDownload
	}
	return os.Rename(part, dest)
}

func (d *Downloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: 30 * time.Minute}
}

func (d *Downloader) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
