// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package certs

import "errors"

var (
	// ErrIncompleteCA is returned when exactly one of ca.crt and ca.key
	// exists.
	ErrIncompleteCA = errors.New("root CA is incomplete: exactly one of ca.crt and ca.key exists")

	// ErrInvalidPEM is returned when a file holds no usable PEM block.
	ErrInvalidPEM = errors.New("no usable PEM block")

	// ErrUnsupportedKey is returned for private keys that cannot sign.
	ErrUnsupportedKey = errors.New("unsupported private key type")
)
