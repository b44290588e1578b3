// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bootstrap

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/component"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/database"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/metrics"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/secrets"
)

// ComponentStatus is the observed state of one component.
type ComponentStatus struct {
	Name      string
	Installed bool
	Running   bool
}

// Supervisor starts and stops an already bootstrapped stack.
//
// # Description
//
// Supervisor shares the Sequencer's configuration and state. It never
// creates certificates or databases except through Bootstrap, which
// EnsureServicesRunning falls back to on a fresh host.
//
// # Thread Safety
//
// Not safe for concurrent use.
type Supervisor struct {
	seq *Sequencer
}

// NewSupervisor returns a Supervisor over a new Sequencer built from cfg.
func NewSupervisor(cfg Config) (*Supervisor, error) {
	seq, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &Supervisor{seq: seq}, nil
}

// Sequencer returns the underlying sequencer.
func (v *Supervisor) Sequencer() *Sequencer { return v.seq }

// Bootstrapped reports whether the secrets store is installed and its
// unseal bundle exists.
func (v *Supervisor) Bootstrapped(ctx context.Context) (bool, error) {
	s := v.seq
	installed, err := s.inst.IsInstalled(ctx, component.Secrets)
	if err != nil {
		return false, componentErr(component.Secrets, "check", err)
	}
	return installed && fileExists(s.bundlePath()), nil
}

// EnsureServicesRunning brings the stack to a running state.
//
// # Description
//
// A host that was never bootstrapped gets a full Bootstrap. Otherwise the
// store is started and unsealed (with the same recovery branch as
// Bootstrap) and every installed component is started in dependency
// order. Start is idempotent, so components already up are left alone.
// Failures of components other than the store are logged and skipped.
//
// # Outputs
//
//   - *Result: Bootstrap's result, or one holding only RunID and Secrets
//   - error: store failure, or Bootstrap's error
func (v *Supervisor) EnsureServicesRunning(ctx context.Context) (*Result, error) {
	done, err := v.Bootstrapped(ctx)
	if err != nil {
		return nil, err
	}
	if !done {
		v.seq.logger.Info("Stack not bootstrapped; running bootstrap")
		return v.seq.Bootstrap(ctx)
	}

	s := v.seq
	res := &Result{RunID: v.beginRun()}
	run, err := s.bringUpStore(ctx, secrets.NewSeed(), false)
	res.Secrets = run
	if err != nil {
		return res, v.fail(ctx, res, err)
	}
	for _, name := range v.startSequence()[1:] {
		if name == component.Tables && s.External() {
			continue
		}
		v.startInstalled(ctx, name)
	}
	return res, nil
}

// StartAll starts the store, the database and every other installed
// component, then waits for the object store.
//
// # Outputs
//
//   - *Result: always non-nil; Diagnostics is set when the store or the
//     database fails
//   - error: store or database failure
func (v *Supervisor) StartAll(ctx context.Context) (*Result, error) {
	s := v.seq
	res := &Result{RunID: v.beginRun()}

	run, err := s.bringUpStore(ctx, secrets.NewSeed(), false)
	res.Secrets = run
	if err != nil {
		return res, v.fail(ctx, res, err)
	}

	if err := v.startDatabase(ctx); err != nil {
		return res, v.fail(ctx, res, err)
	}

	for _, name := range v.startSequence()[2:] {
		if !v.startInstalled(ctx, name) || name != component.Drive {
			continue
		}
		if err := s.probe(ctx, name); err != nil {
			s.logger.Warn("Drive not ready", "error", err)
			continue
		}
		if _, err := s.uploadTemplates(ctx); err != nil {
			s.logger.Warn("Template upload failed", "error", err)
		}
	}
	return res, nil
}

// fail collects component log tails for a load-bearing failure.
func (v *Supervisor) fail(ctx context.Context, res *Result, err error) error {
	s := v.seq
	res.Diagnostics = s.collectLogTails(ctx)
	logTails(s.logger, res.Diagnostics)
	return err
}

func (v *Supervisor) startDatabase(ctx context.Context) error {
	s := v.seq
	name := component.Tables
	if !s.External() {
		installed, err := s.inst.IsInstalled(ctx, name)
		if err != nil {
			return componentErr(name, "check", err)
		}
		if !installed {
			s.logger.Warn("Database not installed; skipping", "component", name)
			return nil
		}
		if err := s.inst.Start(ctx, name, s.env()); err != nil {
			return componentErr(name, "start", err)
		}
	}

	admin, _, err := s.connectDatabase(ctx)
	if err != nil {
		s.recorder.SetComponentReady(name, false)
		return componentErr(name, "wait", err)
	}
	defer admin.Close(ctx)
	s.recorder.SetComponentReady(name, true)

	if s.External() {
		return nil
	}
	if _, err := database.EnsureDatabase(ctx, admin, s.cfg.DatabaseName, s.cfg.DatabaseOwner); err != nil {
		return componentErr(name, "create database", err)
	}
	return nil
}

// startInstalled starts name when it is installed and reports whether it
// was started.
func (v *Supervisor) startInstalled(ctx context.Context, name string) bool {
	s := v.seq
	installed, err := s.inst.IsInstalled(ctx, name)
	if err != nil {
		s.logger.Warn("Install check failed", "component", name, "error", err)
		return false
	}
	if !installed {
		return false
	}
	if _, err := s.writeConfigsFor(ctx, name); err != nil {
		s.logger.Warn("Component configuration failed", "component", name, "error", err)
	}
	if err := s.inst.Start(ctx, name, s.env()); err != nil {
		s.logger.Warn("Component failed to start", "component", name, "error", err)
		return false
	}
	return true
}

// StopAll stops every installed component in reverse start order, so the
// store goes last, and returns every failure joined.
func (v *Supervisor) StopAll(ctx context.Context) error {
	s := v.seq
	order := v.startSequence()
	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		installed, err := s.inst.IsInstalled(ctx, name)
		if err != nil {
			errs = append(errs, componentErr(name, "check", err))
			continue
		}
		if !installed {
			continue
		}
		if err := s.inst.Stop(ctx, name); err != nil {
			errs = append(errs, componentErr(name, "stop", err))
			continue
		}
		s.logger.Info("Stopped component", "component", name)
	}
	return errors.Join(errs...)
}

// Status reports whether name is installed and running.
func (v *Supervisor) Status(ctx context.Context, name string) (ComponentStatus, error) {
	s := v.seq
	st := ComponentStatus{Name: name}
	if _, err := s.registry.Lookup(name); err != nil {
		return st, err
	}
	installed, err := s.inst.IsInstalled(ctx, name)
	if err != nil {
		return st, componentErr(name, "check", err)
	}
	st.Installed = installed
	if !installed {
		return st, nil
	}
	st.Running, err = s.inst.Running(ctx, name)
	if err != nil {
		return st, componentErr(name, "check", err)
	}
	return st, nil
}

// Install installs name and its missing dependencies. On a bootstrapped
// host the store is unsealed first so component environments resolve
// from it; otherwise only the process environment is consulted.
func (v *Supervisor) Install(ctx context.Context, name string) error {
	s := v.seq
	if _, err := s.registry.Lookup(name); err != nil {
		return err
	}
	v.beginRun()

	done, err := v.Bootstrapped(ctx)
	if err != nil {
		return err
	}
	if done && name != component.Secrets {
		if _, err := s.bringUpStore(ctx, secrets.NewSeed(), false); err != nil {
			return err
		}
	}
	if err := s.ensureInstalled(ctx, name, s.env()); err != nil {
		return err
	}
	s.logger.Info("Installed component", "component", name)
	return nil
}

// Remove stops name and uninstalls it. Dependents are left in place.
func (v *Supervisor) Remove(ctx context.Context, name string) error {
	s := v.seq
	if _, err := s.registry.Lookup(name); err != nil {
		return err
	}
	installed, err := s.inst.IsInstalled(ctx, name)
	if err != nil {
		return componentErr(name, "check", err)
	}
	if !installed {
		return componentErr(name, "remove", ErrNotInstalled)
	}
	if err := s.inst.Stop(ctx, name); err != nil {
		s.logger.Warn("Stop before remove failed", "component", name, "error", err)
	}
	if err := s.inst.Remove(ctx, name); err != nil {
		return componentErr(name, "remove", err)
	}
	s.logger.Info("Removed component", "component", name)
	return nil
}

// List returns the status of every registered component, sorted by name.
// A component whose check fails is reported as not installed.
func (v *Supervisor) List(ctx context.Context) []ComponentStatus {
	names := v.seq.registry.Names()
	out := make([]ComponentStatus, 0, len(names))
	for _, name := range names {
		st, err := v.Status(ctx, name)
		if err != nil {
			v.seq.logger.Debug("Status check failed", "component", name, "error", err)
		}
		out = append(out, st)
	}
	return out
}

// startSequence is the store, then the database, then every other
// component in dependency order.
func (v *Supervisor) startSequence() []string {
	order := []string{component.Secrets, component.Tables}
	for _, name := range v.seq.registry.StartOrder() {
		if name != component.Secrets && name != component.Tables {
			order = append(order, name)
		}
	}
	return order
}

// beginRun tags the logger with a fresh run ID and resets the recorder.
func (v *Supervisor) beginRun() string {
	s := v.seq
	id := uuid.NewString()
	s.logger = s.cfg.Logger.With("run_id", id)
	s.recorder = metrics.NewRecorder(id, s.inst.Mode().String())
	return id
}
