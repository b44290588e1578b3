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
Package process provides external command execution and the single-instance
lock for botstack.

# Overview

This package contains two main components:

  - Runner: Abstracts external process execution for testability
  - InstanceLock: PID lock file preventing two orchestrators per stack

# Runner

Every exec.Command in botstack goes through Runner so installers and the
bootstrap sequence can be driven by MockRunner in tests. Commands return a
Result instead of a bare error. A Result is OK, Benign or Fatal; the runner
itself only produces OK or Fatal, and call sites downgrade the failures they
expect:

	res := runner.Run(ctx, "lxc", "stop", name)
	res = res.BenignOnExit(1) // container already stopped
	if err := res.Err(); err != nil {
	    return err
	}

Start launches a shell command detached in a new process group and returns
immediately. The child is never awaited for liveness; callers establish
liveness by polling a check command.

# InstanceLock

	lock := process.NewInstanceLock(stackDir)
	if err := lock.Acquire(); err != nil {
	    return err
	}
	defer lock.Release()

# Thread Safety

  - DefaultRunner is safe for concurrent use
  - MockRunner records calls under a mutex
  - InstanceLock is NOT safe for concurrent use from multiple goroutines
*/
package process
