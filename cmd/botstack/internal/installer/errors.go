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
	"errors"
	"fmt"
)

var (
	// ErrUnknownMode is returned by New for an unsupported mode.
	ErrUnknownMode = errors.New("unknown install mode")

	// ErrMissingRegistry is returned by New when Options.Registry is nil.
	ErrMissingRegistry = errors.New("installer requires a component registry")

	// ErrEmptyDownload is returned when a fetched artifact has zero bytes.
	ErrEmptyDownload = errors.New("downloaded artifact is empty")

	// ErrUnsafeArchivePath is returned when an archive entry would land
	// outside the destination directory.
	ErrUnsafeArchivePath = errors.New("archive entry escapes destination")

	// ErrNoImage is returned when no configured container image could be
	// launched.
	ErrNoImage = errors.New("no container image could be launched")
)

// InstallError reports a failed installation step for one component.
type InstallError struct {
	Component string
	Step      string
	Err       error
}

// Error implements the error interface.
func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s: %s: %v", e.Component, e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *InstallError) Unwrap() error { return e.Err }

// DownloadError reports an HTTP failure for an artifact.
type DownloadError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
}

func stepErr(component, step string, err error) error {
	if err == nil {
		return nil
	}
	return &InstallError{Component: component, Step: step, Err: err}
}
