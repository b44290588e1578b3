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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/botstack/cmd/botstack/config"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/bootstrap"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/component"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/infra/process"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/installer"
	"github.com/AleutianAI/botstack/pkg/logging"
	"github.com/AleutianAI/botstack/pkg/ux"
	"github.com/AleutianAI/botstack/pkg/validation"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// newRunner builds the command runner. Tests replace it with a mock.
var newRunner = func() process.Runner { return process.NewDefaultRunner() }

// =============================================================================
// Usage errors
// =============================================================================

// usageError marks bad arguments or flags; it maps to exit code 2.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErr(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var u *usageError
	if errors.As(err, &u) {
		return exitUsage
	}
	return exitFailure
}

// exactArgs is cobra.ExactArgs with usage errors.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageErr("%s expects %d argument(s), got %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}

// noArgs rejects positional arguments, including unknown subcommands.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	if cmd.HasSubCommands() {
		return usageErr("unknown command %q for %q", args[0], cmd.CommandPath())
	}
	return usageErr("%s takes no arguments", cmd.CommandPath())
}

// =============================================================================
// Application wiring
// =============================================================================

// appOptions are the global flag values.
type appOptions struct {
	ConfigPath  string
	Container   bool
	Tenant      string
	Personality string
	Verbose     bool
	Out         io.Writer
	Err         io.Writer
}

// app holds everything a subcommand needs. Built once per invocation.
type app struct {
	cfg      *config.StackConfig
	logger   *logging.Logger
	out      *ux.Printer
	registry *component.Registry
	inst     installer.Installer
	sup      *bootstrap.Supervisor
}

// newApp loads configuration, then builds the logger, printer, installer
// and supervisor in that order. Flags override the file.
func newApp(opts appOptions) (*app, error) {
	cfg, err := config.LoadFrom(opts.ConfigPath, opts.Err)
	if err != nil {
		return nil, err
	}
	if opts.Tenant != "" {
		cfg.Stack.Tenant = opts.Tenant
	}
	if cfg.Stack.Tenant, err = validation.SanitizeTenant(cfg.Stack.Tenant); err != nil {
		return nil, usageErr("tenant: %v", err)
	}
	for _, ident := range []string{cfg.Database.Name, cfg.Database.Owner} {
		if err := validation.ValidateIdentifier(ident); err != nil {
			return nil, usageErr("database: %v", err)
		}
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, usageErr("logging.level: %v", err)
	}
	if opts.Verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "botstack",
		Quiet:   !opts.Verbose,
		Stderr:  opts.Err,
	})

	a, err := buildApp(cfg, logger, opts)
	if err != nil {
		logger.Close()
		return nil, err
	}
	return a, nil
}

func buildApp(cfg *config.StackConfig, logger *logging.Logger, opts appOptions) (*app, error) {
	reg, err := component.Default()
	if err != nil {
		return nil, err
	}

	inst, err := installer.New(installer.ModeFromFlag(opts.Container), installer.Options{
		Registry:      reg,
		Runner:        newRunner(),
		StackPath:     cfg.Stack.Path,
		Tenant:        cfg.Stack.Tenant,
		ContainerBase: cfg.Stack.ContainerBase,
		Images:        cfg.Stack.Images,
		Logger:        logger.Slog(),
	})
	if err != nil {
		return nil, err
	}

	sup, err := bootstrap.NewSupervisor(bootstrap.Config{
		StackPath:           cfg.Stack.Path,
		Installer:           inst,
		Registry:            reg,
		EnvPath:             cfg.Secrets.EnvFile,
		StoreAddr:           cfg.Secrets.Addr,
		KeyShares:           cfg.Secrets.KeyShares,
		KeyThreshold:        cfg.Secrets.KeyThreshold,
		CacheTTL:            cfg.Secrets.CacheTTL,
		DatabaseName:        cfg.Database.Name,
		DatabaseOwner:       cfg.Database.Owner,
		MigrationsDir:       cfg.Database.MigrationsDir,
		TemplatesDir:        cfg.Stack.TemplatesDir,
		ExternalDatabaseURL: cfg.Database.ExternalURL,
		DirectoryURL:        cfg.Directory.URL,
		ReadyAttempts:       cfg.Stack.ReadyAttempts,
		ReadyInterval:       cfg.Stack.ReadyInterval.Std(),
		Logger:              logger.Slog(),
	})
	if err != nil {
		return nil, err
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	errOut := opts.Err
	if errOut == nil {
		errOut = os.Stderr
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		out:      ux.NewPrinter(ux.DetectPersonality(opts.Personality, os.Stdout), out, errOut),
		registry: reg,
		inst:     inst,
		sup:      sup,
	}, nil
}

// Close releases the log file.
func (a *app) Close() error {
	return a.logger.Close()
}

// locked runs fn while holding the stack's InstanceLock.
func (a *app) locked(ctx context.Context, fn func(ctx context.Context) error) error {
	lock := process.NewInstanceLock(a.cfg.Stack.Path)
	if err := lock.Acquire(); err != nil {
		var held *process.LockHeldError
		if errors.As(err, &held) {
			return fmt.Errorf("another botstack is running on %s: %w", a.cfg.Stack.Path, err)
		}
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			a.logger.Warn("Failed to release instance lock", "path", lock.Path(), "error", err)
		}
	}()
	return fn(ctx)
}

// componentArg validates a component name argument.
func (a *app) componentArg(name string) (string, error) {
	if _, ok := a.registry.Get(name); !ok {
		return "", usageErr("unknown component %q (known: %s)", name, strings.Join(a.registry.Names(), ", "))
	}
	return name, nil
}

// report prints a bootstrap or start result.
func (a *app) report(res *bootstrap.Result) {
	if res == nil {
		return
	}
	if res.Report != nil {
		for _, step := range res.Report.Completed {
			a.out.Success("%s", step)
		}
		for _, step := range res.Report.Skipped {
			a.out.Warning("%s skipped: %v", step.Name, step.Err)
		}
		if f := res.Report.Failed; f != nil {
			a.out.Error("%s failed: %v", f.Name, f.Err)
		}
	}
	for _, tail := range res.Diagnostics {
		a.out.Info("%s (%s):", tail.Component, tail.File)
		for _, line := range tail.Lines {
			a.out.Info("  %s", line)
		}
	}
	if a.logger.Path() != "" {
		a.out.Info("Log: %s", a.logger.Path())
	}
}
