// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package certs issues the stack's internal TLS material.
//
// # Overview
//
// Authority owns one root CA and issues, under a single directory:
//
//	ca/ca.crt, ca/ca.key                 root CA (10 years, ECDSA P-256)
//	<service>/server.crt, server.key     server leaf (1 year) plus ca.crt copy
//	botserver/client.crt, client.key     client certificate for mutual TLS
//
// Ensure is idempotent. An existing CA is loaded, never regenerated, and
// existing leaves are left byte-identical. A CA with only one of its two
// files present is reported as ErrIncompleteCA so that an operator decides
// what happened before anything is overwritten.
//
// # Thread Safety
//
// Authority is not safe for concurrent use; Ensure runs once per bootstrap.
package certs
