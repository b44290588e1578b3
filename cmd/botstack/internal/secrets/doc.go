// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets drives the stack's secrets store from first start to a
// populated, unsealed state.
//
// # Overview
//
// Lifecycle.Run walks the store through health probing, initialization or
// unsealing, KV engine setup and first-write of the credential records.
// The unseal material (Bundle) is written once and never regenerated for a
// store that is already initialized: losing it is reported as a
// RemediationError with operator steps instead of wiping data.
//
// Credentials is the explicit result of a run. It replaces process-wide
// environment state: callers pass it to Resolver (for component
// environments) and to child processes via Environ.
//
// Store abstracts the store's HTTP API. VaultStore talks to a real server
// through github.com/hashicorp/vault/api; MemoryStore is an in-memory fake
// for tests.
package secrets
