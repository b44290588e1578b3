// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package directory performs the identity provider's first-run setup.
//
// WriteConfig renders the server and first-instance step files. On first
// start the server creates a machine user and writes its personal access
// token (PAT) to admin-pat.txt. Provisioner then uses that token to create
// the default organization, the human admin user and the OIDC application
// the stack authenticates with, storing the client credentials in the
// secrets store.
package directory
