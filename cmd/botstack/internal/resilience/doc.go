// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resilience provides bounded retry loops and the step runner used
// by the bootstrap sequence.
//
// # Overview
//
// Every wait in botstack (health probes, database readiness, downloads) is a
// bounded loop with a fixed or linear interval that honours context
// cancellation between attempts. The step runner executes an ordered list of
// named steps where a load-bearing failure stops the run and a best-effort
// failure is recorded and skipped.
//
// # Components
//
//   - Retry: bounded attempts with Fixed or Linear backoff
//   - Steps: ordered step execution with timing hooks
//
// # Example - Retry
//
//	err := resilience.Retry(ctx, resilience.RetryConfig{
//	    Attempts: 30,
//	    Interval: time.Second,
//	}, func(ctx context.Context, attempt int) error {
//	    return db.Ping(ctx)
//	})
//
// # Example - Steps
//
//	steps := resilience.NewSteps(resilience.StepsConfig{Logger: logger})
//	steps.Add(resilience.Step{Name: "secrets", LoadBearing: true, Run: startSecrets})
//	steps.Add(resilience.Step{Name: "drive", Run: startDrive})
//	report, err := steps.Execute(ctx)
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package resilience
