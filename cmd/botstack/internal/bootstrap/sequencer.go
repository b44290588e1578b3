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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/certs"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/component"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/directory"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/installer"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/metrics"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/readiness"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/resilience"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/secrets"
)

// Result summarises a bootstrap run.
type Result struct {
	RunID        string
	Report       *resilience.Report
	Certificates *certs.Report
	Secrets      *secrets.RunResult
	Directory    *directory.Result

	// DatabaseCreated is true when the application database was created.
	DatabaseCreated bool

	// Migrations lists migrations applied by this run.
	Migrations []string

	// Configs lists configuration files written by this run.
	Configs []string

	// Templates lists the template buckets uploaded by this run.
	Templates []string

	// Diagnostics holds log tails collected after a load-bearing failure.
	Diagnostics []LogTail
}

// Sequencer runs the bootstrap sequence.
//
// # Thread Safety
//
// Not safe for concurrent use. The CLI holds the InstanceLock around it.
type Sequencer struct {
	cfg      Config
	inst     installer.Installer
	registry *component.Registry
	logger   *slog.Logger

	// Run state, valid after the store step.
	authority *certs.Authority
	store     secrets.Store
	creds     *secrets.Credentials
	resolver  *secrets.Resolver
	recorder  *metrics.Recorder
	drive     readiness.BucketAPI
}

// New validates cfg and returns a Sequencer.
func New(cfg Config) (*Sequencer, error) {
	if cfg.Installer == nil {
		return nil, ErrNoInstaller
	}
	if cfg.StackPath == "" {
		return nil, errors.New("stack path required")
	}
	if cfg.Registry == nil {
		reg, err := component.Default()
		if err != nil {
			return nil, err
		}
		cfg.Registry = reg
	}
	cfg.defaults()

	s := &Sequencer{
		cfg:      cfg,
		inst:     cfg.Installer,
		registry: cfg.Registry,
		logger:   cfg.Logger,
	}
	s.authority = certs.NewAuthority(s.certDir(), cfg.Logger)
	return s, nil
}

// External reports whether the database is externally managed.
func (s *Sequencer) External() bool { return s.cfg.ExternalDatabaseURL != "" }

// Credentials returns the store credentials once the store step ran.
func (s *Sequencer) Credentials() *secrets.Credentials { return s.creds }

// =============================================================================
// Bootstrap
// =============================================================================

// Bootstrap brings the stack up from any state.
//
// # Description
//
// Steps run in order through resilience.Steps. The certificate, store and
// database steps are load-bearing; everything else is best effort and is
// reported in Result.Report.Skipped. A load-bearing failure collects the
// tail of every component log into Result.Diagnostics before returning.
// Metrics are written whether or not the run succeeds.
//
// # Outputs
//
//   - *Result: always non-nil
//   - error: *resilience.StepError wrapping the load-bearing failure
func (s *Sequencer) Bootstrap(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	started := s.cfg.Now()

	logger := s.cfg.Logger.With("run_id", res.RunID)
	s.logger = logger
	s.recorder = metrics.NewRecorder(res.RunID, s.inst.Mode().String())

	seed := secrets.NewSeed()
	steps := resilience.NewSteps(resilience.StepsConfig{
		Logger: logger,
		OnStepComplete: func(step resilience.Step, d time.Duration, err error) {
			s.recorder.ObserveStep(step.Name, d, err, step.LoadBearing)
		},
	})

	if s.inst.Mode() == installer.Local {
		steps.Add(resilience.Step{Name: "cleanup", Run: s.stopStale})
	}
	steps.Add(resilience.Step{Name: "certificates", LoadBearing: true, Run: func(ctx context.Context) error {
		report, err := s.ensureCertificates()
		res.Certificates = report
		return err
	}})
	steps.Add(resilience.Step{Name: "store-config", LoadBearing: true, Run: func(ctx context.Context) error {
		written, err := s.writeStoreConfig(ctx)
		if written != "" {
			res.Configs = append(res.Configs, written)
		}
		return err
	}})

	for _, name := range component.RequiredComponents {
		name := name
		switch name {
		case component.Secrets:
			steps.Add(resilience.Step{Name: name, LoadBearing: true, Run: func(ctx context.Context) error {
				run, err := s.bringUpStore(ctx, seed, true)
				res.Secrets = run
				return err
			}})
		case component.Tables:
			steps.Add(resilience.Step{Name: name, LoadBearing: true, Run: func(ctx context.Context) error {
				return s.bringUpTables(ctx, res)
			}})
		case component.Directory:
			if s.External() {
				// The identity provider keeps its data in the bundled database.
				logger.Info("External database configured; skipping directory")
				continue
			}
			steps.Add(resilience.Step{Name: name, Run: func(ctx context.Context) error {
				return s.bringUpDirectory(ctx, res)
			}})
		default:
			steps.Add(resilience.Step{Name: name, Run: func(ctx context.Context) error {
				written, err := s.writeConfigsFor(ctx, name)
				res.Configs = append(res.Configs, written...)
				if err != nil {
					return componentErr(name, "configure", err)
				}
				return s.bringUp(ctx, name)
			}})
		}
	}

	steps.Add(resilience.Step{Name: "optional-configs", Run: func(ctx context.Context) error {
		written, err := s.writeOptionalConfigs(ctx)
		res.Configs = append(res.Configs, written...)
		return err
	}})
	steps.Add(resilience.Step{Name: "templates", Run: func(ctx context.Context) error {
		up, err := s.uploadTemplates(ctx)
		res.Templates = up.Buckets
		return err
	}})

	report, err := steps.Execute(ctx)
	res.Report = report

	if err != nil {
		var stepErr *resilience.StepError
		if errors.As(err, &stepErr) {
			res.Diagnostics = s.collectLogTails(ctx)
			logTails(logger, res.Diagnostics)
		}
	}

	s.recorder.Finish(err == nil, started, s.cfg.Now())
	if werr := s.recorder.WriteTextfile(s.metricsPath()); werr != nil {
		logger.Warn("Failed to write bootstrap metrics", "path", s.metricsPath(), "error", werr)
	}

	if err != nil {
		return res, err
	}
	logger.Info("Bootstrap complete",
		"completed", len(report.Completed),
		"skipped", len(report.Skipped),
		"duration", s.cfg.Now().Sub(started))
	return res, nil
}

// stopStale stops every component with a recognisable process so the
// sequence starts from a clean slate. Failures are logged and ignored.
func (s *Sequencer) stopStale(ctx context.Context) error {
	for _, name := range s.registry.Names() {
		d := s.registry.MustGet(name)
		if d.ProcessPattern == "" {
			continue
		}
		if err := s.inst.Stop(ctx, name); err != nil {
			s.logger.Debug("Stale process cleanup failed", "component", name, "error", err)
		}
	}
	return nil
}

// =============================================================================
// Paths
// =============================================================================

func (s *Sequencer) confDir() string { return filepath.Join(s.cfg.StackPath, "conf") }

func (s *Sequencer) certDir() string {
	return filepath.Join(s.confDir(), "system", "certificates")
}

func (s *Sequencer) bundlePath() string {
	return filepath.Join(s.confDir(), "vault", "init.json")
}

func (s *Sequencer) metricsPath() string {
	return filepath.Join(s.cfg.StackPath, "logs", "system", metrics.TextfileName)
}

type hostDirs interface {
	HostDir(name, dir string) string
}

// hostConf is the host directory that name sees as its CONF_PATH.
func (s *Sequencer) hostConf(name string) string {
	if h, ok := s.inst.(hostDirs); ok {
		return h.HostDir(name, "conf")
	}
	return s.inst.Paths(name).Conf
}

// hostLogs is the host directory that name sees as its LOGS_PATH.
func (s *Sequencer) hostLogs(name string) string {
	if h, ok := s.inst.(hostDirs); ok {
		return h.HostDir(name, "logs")
	}
	return s.inst.Paths(name).Logs
}

// certPath is a file under the certificate tree as seen by name's process.
func (s *Sequencer) certPath(name string, parts ...string) string {
	return filepath.Join(append([]string{s.inst.Paths(name).Conf, "system", "certificates"}, parts...)...)
}

func (s *Sequencer) recovery(ctx context.Context) *secrets.Recovery {
	return &secrets.Recovery{
		StackPath:  s.cfg.StackPath,
		BundlePath: s.bundlePath(),
		EnvPath:    s.cfg.EnvPath,
		Restart: func(ctx context.Context) error {
			if err := s.inst.Stop(ctx, component.Secrets); err != nil {
				return err
			}
			if err := s.waitStopped(ctx, component.Secrets); err != nil {
				return err
			}
			return s.inst.Start(ctx, component.Secrets, nil)
		},
		InstalledFunc: s.recoveryInstalled(ctx),
		Logger:        s.logger,
	}
}

// waitStopped polls until name no longer reports running, so a following
// Start does not mistake the exiting process for a live one.
func (s *Sequencer) waitStopped(ctx context.Context, name string) error {
	err := resilience.Retry(ctx, resilience.RetryConfig{
		Attempts: s.cfg.ReadyAttempts,
		Interval: s.cfg.ReadyInterval,
		Sleep:    s.cfg.Sleep,
	}, func(ctx context.Context, attempt int) error {
		running, err := s.inst.Running(ctx, name)
		if err != nil {
			return err
		}
		if running {
			return ErrStillRunning
		}
		return nil
	})
	return componentErr(name, "stop", err)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ensureInstalled installs name (and missing dependencies) if needed.
func (s *Sequencer) ensureInstalled(ctx context.Context, name string, env installer.Resolver) error {
	installed, err := s.inst.IsInstalled(ctx, name)
	if err != nil {
		return componentErr(name, "check", err)
	}
	if installed {
		return nil
	}
	if err := s.inst.Install(ctx, name, env); err != nil {
		return componentErr(name, "install", err)
	}
	return nil
}

// env returns the resolver for component environments, or nil before the
// store is up.
func (s *Sequencer) env() installer.Resolver {
	if s.resolver == nil {
		return nil
	}
	return s.resolver
}

func (s *Sequencer) record(ctx context.Context, path string) (map[string]string, error) {
	if s.resolver == nil {
		return nil, ErrStoreNotReady
	}
	rec, err := s.resolver.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rec, nil
}
