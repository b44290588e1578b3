// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Step Types
// =============================================================================

// Step is one named unit of an ordered run.
type Step struct {
	// Name identifies the step in logs, reports and metrics.
	Name string

	// Run performs the step.
	Run func(ctx context.Context) error

	// LoadBearing steps stop the run on failure. Other steps are best
	// effort: the failure is recorded and the run continues.
	LoadBearing bool

	// Timeout bounds the step. Zero means no timeout beyond ctx.
	Timeout time.Duration
}

// StepsConfig configures a Steps runner.
type StepsConfig struct {
	// Logger receives step progress. Nil uses slog.Default().
	Logger *slog.Logger

	// OnStepStart is called before each step.
	OnStepStart func(step Step)

	// OnStepComplete is called after each step, with its error (nil on
	// success) and duration.
	OnStepComplete func(step Step, duration time.Duration, err error)
}

// StepError is returned when a load-bearing step fails.
type StepError struct {
	Step string
	Err  error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

// Unwrap returns the step's error.
func (e *StepError) Unwrap() error { return e.Err }

// StepOutcome records how one step ended.
type StepOutcome struct {
	Name     string
	Duration time.Duration
	Err      error
}

// Report summarises a run.
type Report struct {
	// Completed lists steps that succeeded, in order.
	Completed []string

	// Skipped lists best-effort steps that failed.
	Skipped []StepOutcome

	// Failed is the load-bearing step that stopped the run, if any.
	Failed *StepOutcome

	// Outcomes lists every executed step in order.
	Outcomes []StepOutcome
}

// OK reports whether no load-bearing step failed.
func (r *Report) OK() bool { return r.Failed == nil }

// =============================================================================
// Steps Runner
// =============================================================================

// Steps runs an ordered list of steps.
//
// # Description
//
// Steps are executed in the order added. A load-bearing failure stops the
// run and is returned as a *StepError; best-effort failures are logged as
// warnings and collected in Report.Skipped. Nothing is compensated: a
// stopped run leaves completed steps in place so a later run can resume.
//
// # Thread Safety
//
// Safe for concurrent use; Execute holds the runner's lock for its duration.
type Steps struct {
	config StepsConfig
	steps  []Step
	mu     sync.Mutex
}

// NewSteps creates an empty runner.
func NewSteps(config StepsConfig) *Steps {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Steps{config: config}
}

// Add appends a step.
func (s *Steps) Add(step Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

// Len returns the number of steps.
func (s *Steps) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// Execute runs all steps in order.
//
// # Outputs
//
//   - *Report: always non-nil
//   - error: *StepError for the first load-bearing failure, or ctx.Err()
//     if the context ends between steps
func (s *Steps) Execute(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &Report{}
	for _, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("run cancelled before step %q: %w", step.Name, err)
		}

		outcome := s.executeStep(ctx, step)
		report.Outcomes = append(report.Outcomes, outcome)

		if outcome.Err == nil {
			report.Completed = append(report.Completed, step.Name)
			continue
		}
		if step.LoadBearing {
			report.Failed = &outcome
			return report, &StepError{Step: step.Name, Err: outcome.Err}
		}
		report.Skipped = append(report.Skipped, outcome)
	}
	return report, nil
}

func (s *Steps) executeStep(ctx context.Context, step Step) StepOutcome {
	if s.config.OnStepStart != nil {
		s.config.OnStepStart(step)
	}

	s.config.Logger.Info("Executing step", "step", step.Name)
	start := time.Now()

	stepCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	err := step.Run(stepCtx)
	duration := time.Since(start)

	switch {
	case err == nil:
		s.config.Logger.Info("Step completed", "step", step.Name, "duration", duration)
	case step.LoadBearing:
		s.config.Logger.Error("Step failed", "step", step.Name, "duration", duration, "error", err)
	default:
		s.config.Logger.Warn("Step failed, continuing", "step", step.Name, "duration", duration, "error", err)
	}

	if s.config.OnStepComplete != nil {
		s.config.OnStepComplete(step, duration, err)
	}
	return StepOutcome{Name: step.Name, Duration: duration, Err: err}
}
