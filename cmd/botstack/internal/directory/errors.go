// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package directory

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when the readiness endpoint never succeeded.
	ErrNotReady = errors.New("identity provider not ready")

	// ErrNoToken is returned when the admin PAT file is missing or empty.
	ErrNoToken = errors.New("admin access token not available")

	// ErrMissingField is returned when a response lacks an expected ID.
	ErrMissingField = errors.New("response missing field")
)

// APIError is a non-2xx answer from the identity provider.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
