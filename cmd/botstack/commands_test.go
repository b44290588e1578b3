// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/component"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/infra/process"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/installer"
)

// cliEnv is a config file pointing every path into a temp dir, plus a
// mock runner so no external command runs.
type cliEnv struct {
	dir    string
	stack  string
	config string
	runner *process.MockRunner
	stdin  string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	for _, key := range []string{"BOTSERVER_STACK_PATH", "VAULT_ADDR", "VAULT_TOKEN", "VAULT_CACERT", "BOTSTACK_LOG_LEVEL", "BOTSTACK_PERSONALITY", "TABLES_SERVER"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	e := &cliEnv{
		dir:    dir,
		stack:  filepath.Join(dir, "stack"),
		config: filepath.Join(dir, "botstack.yaml"),
		runner: process.NewSucceedingRunner(),
	}
	yaml := "stack:\n  path: " + e.stack + "\n" +
		"secrets:\n  env_file: " + filepath.Join(dir, ".env") + "\n" +
		"database:\n  migrations_dir: " + filepath.Join(dir, "migrations") + "\n"
	require.NoError(t, os.WriteFile(e.config, []byte(yaml), 0644))

	prev := newRunner
	newRunner = func() process.Runner { return e.runner }
	t.Cleanup(func() { newRunner = prev })
	return e
}

// run executes the CLI in machine mode and returns the exit code, stdout
// and stderr.
func (e *cliEnv) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	containerMode, tenant, configPath, personalityFlag, verbose = false, "default", "", "", false
	vaultReveal, rotateYes, rotateAll = false, false, false

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(e.stdin))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
	})

	args = append(args, "--config", e.config, "--personality", "machine")
	code := execute(args)
	return code, out.String(), errOut.String()
}

func (e *cliEnv) mkdir(t *testing.T, rel ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{e.stack}, rel...)...)
	require.NoError(t, os.MkdirAll(path, 0755))
	return path
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))
	assert.Equal(t, exitUsage, exitCode(usageErr("bad %s", "flag")))
	assert.Equal(t, exitUsage, exitCode(errors.Join(errors.New("x"), usageErr("y"))))
}

func TestExecute_Version(t *testing.T) {
	e := newCLIEnv(t)
	require.NoError(t, os.Remove(e.config))

	code, out, _ := e.run(t, "version")

	assert.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(out, "botstack "+Version+" ("), out)
	assert.NoFileExists(t, e.config, "version must not create a config")
}

func TestExecute_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"frobnicate"}, `unknown command "frobnicate"`},
		{"missing argument", []string{"status"}, "expects 1 argument(s), got 0"},
		{"extra argument", []string{"list", "cache"}, "takes no arguments"},
		{"unknown flag", []string{"list", "--nope"}, "unknown flag"},
		{"unknown component", []string{"install", "nope"}, `unknown component "nope"`},
		{"bad tenant", []string{"list", "--tenant", "a;b"}, "invalid tenant format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newCLIEnv(t)
			code, _, errOut := e.run(t, tt.args...)
			assert.Equal(t, exitUsage, code)
			assert.Contains(t, errOut, tt.want)
			assert.Contains(t, errOut, "Run 'botstack --help' for usage.")
		})
	}
}

func TestExecute_ListFreshStack(t *testing.T) {
	e := newCLIEnv(t)
	code, out, _ := e.run(t, "list")
	require.Equal(t, exitOK, code)

	reg, err := component.Default()
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, reg.Len())
	assert.Contains(t, lines, component.Secrets+"\tno\tno")
	assert.Empty(t, e.runner.CallsMatching("Shell", ""), "nothing installed, nothing checked")
}

func TestExecute_Status(t *testing.T) {
	e := newCLIEnv(t)
	e.mkdir(t, "bin", component.Secrets)

	code, out, _ := e.run(t, "status", component.Secrets)
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "OK: secrets is running\n", out)

	code, _, errOut := e.run(t, "status", component.Cache)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "ERROR: cache is not installed")
}

func TestExecute_StatusNotRunning(t *testing.T) {
	e := newCLIEnv(t)
	e.mkdir(t, "bin", component.Secrets)
	e.runner.ShellFunc = func(ctx context.Context, spec process.ShellSpec) process.Result {
		return process.FailResult(1, "")
	}

	code, _, errOut := e.run(t, "status", component.Secrets)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "secrets is installed but not running")
}

func TestExecute_Remove(t *testing.T) {
	e := newCLIEnv(t)
	bin := e.mkdir(t, "bin", component.Cache)

	code, out, errOut := e.run(t, "remove", component.Cache)
	require.Equal(t, exitOK, code, errOut)

	assert.Equal(t, "OK: cache removed\n", out)
	assert.NoDirExists(t, bin)
	assert.Len(t, e.runner.CallsMatching("Kill", filepath.Join(bin, "bin", "valkey-server")), 1)
	lock := process.NewInstanceLock(e.stack)
	require.NoError(t, lock.Acquire(), "lock released")
	require.NoError(t, lock.Release())

	code, _, errOut = e.run(t, "remove", component.Cache)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "component not installed")
}

func TestExecute_WritesLogFile(t *testing.T) {
	e := newCLIEnv(t)
	code, _, _ := e.run(t, "list")
	require.Equal(t, exitOK, code)

	logs, err := filepath.Glob(filepath.Join(e.stack, "logs", "system", "botstack_*.log"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestNewApp_FlagsOverrideConfig(t *testing.T) {
	e := newCLIEnv(t)
	a, err := newApp(appOptions{
		ConfigPath:  e.config,
		Container:   true,
		Tenant:      "acme",
		Personality: "machine",
		Err:         &bytes.Buffer{},
	})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, installer.Container, a.inst.Mode())
	assert.Equal(t, "acme", a.cfg.Stack.Tenant)
	assert.Equal(t, e.stack, a.cfg.Stack.Path)
}

func TestNewApp_BadLogLevel(t *testing.T) {
	e := newCLIEnv(t)
	t.Setenv("BOTSTACK_LOG_LEVEL", "loud")

	_, err := newApp(appOptions{ConfigPath: e.config, Err: &bytes.Buffer{}})
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))
}

func TestExecute_RestartStopsBeforeStarting(t *testing.T) {
	e := newCLIEnv(t)
	e.mkdir(t, "bin", component.Secrets)
	bundle := filepath.Join(e.mkdir(t, "conf", "vault"), "init.json")
	require.NoError(t, os.WriteFile(bundle, []byte(`{"unseal_keys_b64":["k"],"root_token":"t"}`), 0600))
	logFile := filepath.Join(e.mkdir(t, "logs", component.Secrets), "vault.log")
	require.NoError(t, os.WriteFile(logFile, []byte("core: listener failed\n"), 0644))

	code, out, errOut := e.run(t, "restart")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "secrets store binary missing")
	assert.NotEmpty(t, e.runner.CallsMatching("Kill", filepath.Join(e.stack, "bin", component.Secrets)), "stack stopped first")
	assert.Contains(t, out, "  core: listener failed")
	assert.NotContains(t, out, "Stack restarted")
}
