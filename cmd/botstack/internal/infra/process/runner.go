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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// ShellSpec describes a shell command run through `sh -c`.
type ShellSpec struct {
	// Command is the shell text passed to sh -c.
	Command string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env entries ("KEY=value") appended to the inherited environment.
	Env []string

	// Stdin, if non-nil, is piped to the process.
	Stdin []byte

	// LogFile, for Start only, receives stdout and stderr. Empty discards.
	LogFile string
}

// Runner abstracts external process execution.
//
// # Description
//
// All exec.Command calls go through this interface so installers, the
// lifecycle and the sequencer can be tested without real processes.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Runner interface {
	// Run executes name with args and waits for completion.
	//
	// # Outputs
	//
	//   - Result: OK on exit 0, Fatal otherwise (ExitCode -1 if it never ran)
	//
	// # Examples
	//
	//	res := r.Run(ctx, "lxc", "list", name, "--format=json")
	//	if err := res.Err(); err != nil {
	//	    return err
	//	}
	Run(ctx context.Context, name string, args ...string) Result

	// Shell executes spec.Command with `sh -c` and waits for completion.
	Shell(ctx context.Context, spec ShellSpec) Result

	// Start launches spec.Command with `sh -c` detached in a new process
	// group and returns without waiting.
	//
	// # Outputs
	//
	//   - int: PID of the launched shell
	//   - error: non-nil if the process could not be started
	//
	// # Limitations
	//
	//   - Context cancellation does not kill the started process
	//   - The exit status is never reported
	Start(ctx context.Context, spec ShellSpec) (int, error)

	// IsRunning reports whether a process whose command line matches
	// pattern exists, using `pgrep -f`.
	//
	// # Outputs
	//
	//   - bool: true if at least one match
	//   - int: first matching PID (0 if none)
	//   - error: only when pgrep itself fails, never for "not found"
	IsRunning(ctx context.Context, pattern string) (bool, int, error)

	// Kill signals every process matching pattern, using `pkill -f`.
	// No matching process is Benign.
	Kill(ctx context.Context, pattern string) Result
}

// DefaultRunner implements Runner with os/exec.
type DefaultRunner struct{}

// NewDefaultRunner creates a Runner that executes real processes.
func NewDefaultRunner() *DefaultRunner {
	return &DefaultRunner{}
}

// Run executes a command synchronously.
func (r *DefaultRunner) Run(ctx context.Context, name string, args ...string) Result {
	cmd := exec.CommandContext(ctx, name, args...)
	return execute(cmd, commandLine(name, args), nil)
}

// Shell executes a shell command synchronously.
func (r *DefaultRunner) Shell(ctx context.Context, spec ShellSpec) Result {
	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Command)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	return execute(cmd, spec.Command, spec.Stdin)
}

// Start launches a shell command detached from the orchestrator.
func (r *DefaultRunner) Start(ctx context.Context, spec ShellSpec) (int, error) {
	cmd := exec.Command("sh", "-c", spec.Command)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if spec.LogFile != "" {
		f, err := os.OpenFile(spec.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return 0, fmt.Errorf("failed to open log file %s: %w", spec.LogFile, err)
		}
		defer f.Close()
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %q: %w", spec.Command, err)
	}

	pid := cmd.Process.Pid
	// Reap the shell so it does not linger as a zombie.
	go func() { _ = cmd.Wait() }()

	return pid, nil
}

// IsRunning checks for a matching process with pgrep.
func (r *DefaultRunner) IsRunning(ctx context.Context, pattern string) (bool, int, error) {
	res := r.Run(ctx, "pgrep", "-f", pattern)
	if res.ExitCode == 1 {
		// pgrep exits 1 when nothing matches
		return false, 0, nil
	}
	if err := res.Err(); err != nil {
		return false, 0, fmt.Errorf("pgrep failed: %w", err)
	}

	lines := strings.Split(res.Output(), "\n")
	if len(lines) > 0 && lines[0] != "" {
		pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			return true, 0, nil
		}
		return true, pid, nil
	}
	return false, 0, nil
}

// Kill terminates matching processes with pkill.
func (r *DefaultRunner) Kill(ctx context.Context, pattern string) Result {
	return r.Run(ctx, "pkill", "-f", pattern).BenignOnExit(1)
}

// execute runs cmd and classifies the outcome.
func execute(cmd *exec.Cmd, line string, stdin []byte) Result {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	err := cmd.Run()
	res := Result{
		Command:  line,
		ExitCode: 0,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}
	if err == nil {
		res.Outcome = OutcomeOK
		return res
	}

	res.Outcome = OutcomeFatal
	res.Cause = err
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		res.Reason = exitErr.String()
	} else {
		res.ExitCode = -1
		res.Reason = err.Error()
	}
	return res
}

func commandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

// Compile-time interface check.
var _ Runner = (*DefaultRunner)(nil)
