// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package component describes the services botstack can install.

# Overview

A Descriptor is a declarative record for one backing service: where its
binary comes from, which OS packages it needs, the commands to run before
and after installation, the ports it listens on, what it depends on, and
how to start and health-check it. Descriptors are immutable once a Registry
has been built from them.

The Registry is the fixed catalog of everything the stack can install. It is
validated once at construction: unknown dependencies and dependency cycles
are configuration errors and prevent the registry from being built at all.

# Templates

Command strings use a small placeholder vocabulary:

	{{BIN_PATH}}  {{DATA_PATH}}  {{CONF_PATH}}  {{LOGS_PATH}}  {{DB_PASSWORD}}

Render substitutes them from a PathSet and a DB password in a single pass.
Unknown placeholders are left untouched so shell snippets that happen to
contain braces survive rendering.

	paths := component.PathSet{Bin: "/stack/bin/tables", Data: "/stack/data/tables"}
	cmd := component.Render(desc.CheckCmd, component.Vars{Paths: paths})

# Thread Safety

Registry is read-only after NewRegistry returns and is safe for concurrent use.
*/
package component
