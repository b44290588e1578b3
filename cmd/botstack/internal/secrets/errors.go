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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnreachable is returned when the store does not answer health probes.
	ErrUnreachable = errors.New("secrets store unreachable")

	// ErrStillSealed is returned when the store stays sealed after every
	// unseal key was submitted.
	ErrStillSealed = errors.New("secrets store still sealed after unseal")

	// ErrCredentialsLost is returned when the store is initialized but no
	// unseal bundle exists on disk.
	ErrCredentialsLost = errors.New("secrets store is initialized but the unseal bundle is missing")

	// ErrManualIntervention is returned when automatic recovery gave up on an
	// installed stack.
	ErrManualIntervention = errors.New("manual intervention required")

	// ErrNotFound is returned by Store.Get for absent records.
	ErrNotFound = errors.New("secret not found")

	// ErrInvalidBundle is returned for unseal bundles without keys or token.
	ErrInvalidBundle = errors.New("invalid unseal bundle")

	// ErrNotConfigured is returned when no address or token is available.
	ErrNotConfigured = errors.New("secrets store not configured")

	// ErrNoPairs is returned when no key=value argument was given.
	ErrNoPairs = errors.New("no key=value pairs given")

	// ErrUnknownRotation is returned for components without a rotation.
	ErrUnknownRotation = errors.New("cannot rotate component")
)

// RemediationError wraps a failure that needs an operator decision and
// lists the steps that resolve it.
type RemediationError struct {
	Err   error
	Steps []string
}

func (e *RemediationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	for i, s := range e.Steps {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, s)
	}
	return b.String()
}

func (e *RemediationError) Unwrap() error { return e.Err }
