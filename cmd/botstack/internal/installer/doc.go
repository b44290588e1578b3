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
Package installer installs, starts, stops and removes stack components.

# Overview

One Installer implementation exists per install mode:

  - Local: components live under the stack root on this host
  - Container: each component runs in its own LXC container named
    <tenant>-<component>, with data, conf and logs bind-mounted from
    /opt/gbo/tenants/<tenant>/<component> on the host

New selects the implementation, so callers never branch on the mode:

	inst, err := installer.New(installer.Local, installer.Options{
	    Registry:  reg,
	    Runner:    process.NewDefaultRunner(),
	    StackPath: "/srv/botserver-stack",
	})
	if err := inst.Install(ctx, "drive", resolver); err != nil {
	    return err
	}

# Install

Install resolves dependencies depth-first and installs every missing
dependency exactly once before the component itself. Artifacts are fetched
by Downloader with three attempts and a linear backoff, cached under
<stack>/cache/<component>/, and placed by extension: tarballs are extracted
with the top-level directory stripped, zip archives are extracted in place,
anything else becomes the component's binary.

# Start

Start runs the component's check command first. Success means the
component is already running and nothing is launched. Otherwise the exec
command is launched detached (Local) or the systemd unit is started
(Container). Environment values of the form $NAME are resolved through the
supplied Resolver, falling back to the process environment.

# Thread Safety

Installers hold no mutable state beyond their collaborators and are safe
for concurrent use on different components. Concurrent operations on the
same component are not coordinated; the stack-wide InstanceLock covers that.
*/
package installer
