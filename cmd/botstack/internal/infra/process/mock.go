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
	"context"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockRunner is a test double for Runner.
//
// # Description
//
// Each method delegates to its Func field and records the call. A nil Func
// panics so that unexpected calls fail loudly. NewSucceedingRunner returns a
// mock whose every command succeeds.
//
// # Examples
//
//	mock := &process.MockRunner{
//	    RunFunc: func(ctx context.Context, name string, args ...string) process.Result {
//	        return process.OKResult("ok")
//	    },
//	}
type MockRunner struct {
	RunFunc       func(ctx context.Context, name string, args ...string) Result
	ShellFunc     func(ctx context.Context, spec ShellSpec) Result
	StartFunc     func(ctx context.Context, spec ShellSpec) (int, error)
	IsRunningFunc func(ctx context.Context, pattern string) (bool, int, error)
	KillFunc      func(ctx context.Context, pattern string) Result

	// Calls records all method invocations for verification
	Calls []RunnerCall

	mu sync.Mutex
}

// RunnerCall records a single method invocation.
type RunnerCall struct {
	Method string
	Name   string
	Args   []string
	Spec   ShellSpec
}

// Line renders the call as a single command line.
func (c RunnerCall) Line() string {
	switch c.Method {
	case "Shell", "Start":
		return c.Spec.Command
	default:
		return commandLine(c.Name, c.Args)
	}
}

// OKResult returns a successful Result with the given stdout.
func OKResult(stdout string) Result {
	return Result{Outcome: OutcomeOK, Stdout: []byte(stdout)}
}

// FailResult returns a Fatal Result with the given exit code and stderr.
func FailResult(code int, stderr string) Result {
	return Result{Outcome: OutcomeFatal, ExitCode: code, Stderr: []byte(stderr), Reason: "exit status"}
}

// NewSucceedingRunner returns a MockRunner on which every command succeeds
// and no process is running.
func NewSucceedingRunner() *MockRunner {
	return &MockRunner{
		RunFunc: func(ctx context.Context, name string, args ...string) Result {
			return OKResult("")
		},
		ShellFunc: func(ctx context.Context, spec ShellSpec) Result {
			return OKResult("")
		},
		StartFunc: func(ctx context.Context, spec ShellSpec) (int, error) {
			return 4242, nil
		},
		IsRunningFunc: func(ctx context.Context, pattern string) (bool, int, error) {
			return false, 0, nil
		},
		KillFunc: func(ctx context.Context, pattern string) Result {
			return OKResult("")
		},
	}
}

func (m *MockRunner) record(c RunnerCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, c)
}

// Run delegates to RunFunc and records the call.
func (m *MockRunner) Run(ctx context.Context, name string, args ...string) Result {
	m.record(RunnerCall{Method: "Run", Name: name, Args: args})
	if m.RunFunc == nil {
		panic("MockRunner.RunFunc not set")
	}
	res := m.RunFunc(ctx, name, args...)
	if res.Command == "" {
		res.Command = commandLine(name, args)
	}
	return res
}

// Shell delegates to ShellFunc and records the call.
func (m *MockRunner) Shell(ctx context.Context, spec ShellSpec) Result {
	m.record(RunnerCall{Method: "Shell", Spec: spec})
	if m.ShellFunc == nil {
		panic("MockRunner.ShellFunc not set")
	}
	res := m.ShellFunc(ctx, spec)
	if res.Command == "" {
		res.Command = spec.Command
	}
	return res
}

// Start delegates to StartFunc and records the call.
func (m *MockRunner) Start(ctx context.Context, spec ShellSpec) (int, error) {
	m.record(RunnerCall{Method: "Start", Spec: spec})
	if m.StartFunc == nil {
		panic("MockRunner.StartFunc not set")
	}
	return m.StartFunc(ctx, spec)
}

// IsRunning delegates to IsRunningFunc and records the call.
func (m *MockRunner) IsRunning(ctx context.Context, pattern string) (bool, int, error) {
	m.record(RunnerCall{Method: "IsRunning", Name: pattern})
	if m.IsRunningFunc == nil {
		panic("MockRunner.IsRunningFunc not set")
	}
	return m.IsRunningFunc(ctx, pattern)
}

// Kill delegates to KillFunc and records the call.
func (m *MockRunner) Kill(ctx context.Context, pattern string) Result {
	m.record(RunnerCall{Method: "Kill", Name: pattern})
	if m.KillFunc == nil {
		panic("MockRunner.KillFunc not set")
	}
	return m.KillFunc(ctx, pattern)
}

// Reset clears all recorded calls.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// GetCalls returns a copy of all recorded calls.
func (m *MockRunner) GetCalls() []RunnerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]RunnerCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// CallsMatching returns the calls of method whose line contains substr.
func (m *MockRunner) CallsMatching(method, substr string) []RunnerCall {
	var out []RunnerCall
	for _, c := range m.GetCalls() {
		if c.Method == method && strings.Contains(c.Line(), substr) {
			out = append(out, c)
		}
	}
	return out
}

var _ Runner = (*MockRunner)(nil)
