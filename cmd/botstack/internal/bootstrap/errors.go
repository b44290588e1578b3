// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bootstrap

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreBinaryMissing is returned when the secrets store is reported
	// installed but its binary is absent.
	ErrStoreBinaryMissing = errors.New("secrets store binary missing")

	// ErrNoInstaller is returned by New without an installer.
	ErrNoInstaller = errors.New("installer required")

	// ErrStoreNotReady is returned when a step needs the secrets store
	// before it has been started and unsealed.
	ErrStoreNotReady = errors.New("secrets store not started")

	// ErrNotInstalled is returned when removing a component that is not
	// installed.
	ErrNotInstalled = errors.New("component not installed")

	// ErrStillRunning is returned when a stopped component keeps answering
	// its check command.
	ErrStillRunning = errors.New("component still running after stop")
)

// ComponentError is a failure attributed to one component.
type ComponentError struct {
	Component string
	Op        string
	Err       error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Component, e.Err)
}

func (e *ComponentError) Unwrap() error { return e.Err }

func componentErr(name, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ComponentError{Component: name, Op: op, Err: err}
}
