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
	"errors"
	"fmt"
)

// ErrNotReady is returned when a probe exhausts its attempts.
var ErrNotReady = errors.New("service not ready")

// ProbeError names the service that never became ready.
type ProbeError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s not ready after %d attempts: %v", e.Service, e.Attempts, e.Err)
}

func (e *ProbeError) Unwrap() []error { return []error{ErrNotReady, e.Err} }
