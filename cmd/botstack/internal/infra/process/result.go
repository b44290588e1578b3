// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"fmt"
	"strings"
)

// Outcome classifies a finished command.
type Outcome int

const (
	// OutcomeOK means the command exited 0.
	OutcomeOK Outcome = iota

	// OutcomeBenign means the command failed in a way the caller expected
	// and chose to ignore, such as "container already stopped".
	OutcomeBenign

	// OutcomeFatal means the command failed and the caller must not continue.
	OutcomeFatal
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeBenign:
		return "benign"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is the typed outcome of one external command.
//
// # Description
//
// Runner methods never return a bare error for a command that ran. The
// Result carries everything needed to decide what to do next and, on
// escalation, to show the operator what the command printed.
type Result struct {
	// Command is the rendered command line, for messages.
	Command string

	// Outcome classifies the result.
	Outcome Outcome

	// Reason explains a Benign or Fatal outcome.
	Reason string

	// ExitCode is the process exit code, -1 if the process never ran.
	ExitCode int

	// Stdout and Stderr are the captured output streams.
	Stdout []byte
	Stderr []byte

	// Cause is the underlying exec error, if any.
	Cause error
}

// OK reports whether the command exited 0.
func (r Result) OK() bool { return r.Outcome == OutcomeOK }

// Benign reports whether the failure was downgraded by the caller.
func (r Result) Benign() bool { return r.Outcome == OutcomeBenign }

// Fatal reports whether the command failed irrecoverably.
func (r Result) Fatal() bool { return r.Outcome == OutcomeFatal }

// Output returns trimmed stdout as a string.
func (r Result) Output() string {
	return strings.TrimSpace(string(r.Stdout))
}

// Err returns a *CommandError for Fatal results and nil otherwise.
func (r Result) Err() error {
	if r.Outcome != OutcomeFatal {
		return nil
	}
	return &CommandError{
		Command:  r.Command,
		ExitCode: r.ExitCode,
		Reason:   r.Reason,
		Stdout:   strings.TrimSpace(string(r.Stdout)),
		Stderr:   strings.TrimSpace(string(r.Stderr)),
		Wrapped:  r.Cause,
	}
}

// BenignOnExit downgrades a Fatal result whose exit code is one of codes.
func (r Result) BenignOnExit(codes ...int) Result {
	if r.Outcome != OutcomeFatal {
		return r
	}
	for _, c := range codes {
		if r.ExitCode == c {
			r.Outcome = OutcomeBenign
			r.Reason = fmt.Sprintf("exit status %d accepted", c)
			return r
		}
	}
	return r
}

// BenignIf downgrades a Fatal result when cond is true.
func (r Result) BenignIf(cond bool, reason string) Result {
	if r.Outcome == OutcomeFatal && cond {
		r.Outcome = OutcomeBenign
		r.Reason = reason
	}
	return r
}

// Ignore downgrades any failure to Benign. Used for best-effort commands.
func (r Result) Ignore(reason string) Result {
	return r.BenignIf(true, reason)
}

// CommandError is returned when an external command fails fatally.
//
// # Description
//
// Captures stdout and stderr so the failure can be surfaced verbatim when
// it is escalated to the operator.
type CommandError struct {
	Command  string
	ExitCode int
	Reason   string
	Stdout   string
	Stderr   string
	Wrapped  error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command %q failed", e.Command)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, "\nstderr: %s", e.Stderr)
	}
	if e.Stdout != "" {
		fmt.Fprintf(&b, "\nstdout: %s", e.Stdout)
	}
	return b.String()
}

// Unwrap returns the underlying exec error.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}
