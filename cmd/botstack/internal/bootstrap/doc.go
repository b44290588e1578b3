// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bootstrap brings a stack from nothing to running and keeps it
// running afterwards.
//
// # Description
//
// Sequencer.Bootstrap runs the first-run sequence: stale process cleanup,
// the internal certificate authority, the secrets store configuration,
// then every required component in order with its component-specific
// work (store initialization and unseal, application database and
// migrations, identity provider provisioning, object store and cache
// readiness), and finally one-time configuration for optional components.
//
// Supervisor covers later runs: EnsureServicesRunning bootstraps a fresh
// stack or restarts an existing one, StartAll and StopAll bring every
// installed component up or down, Status reports one component.
//
// Every step is timed into a metrics.Recorder whose textfile is written to
// <stack>/logs/system/bootstrap.prom when Bootstrap finishes.
package bootstrap
