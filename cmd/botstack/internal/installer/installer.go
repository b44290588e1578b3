// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package installer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/component"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/infra/process"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/resilience"
)

// Mode selects where components are installed.
type Mode int

const (
	// Local installs under the stack root on this host.
	Local Mode = iota

	// Container installs each component in its own LXC container.
	Container
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Local:
		return "local"
	case Container:
		return "container"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ModeFromFlag maps the CLI --container flag to a Mode.
func ModeFromFlag(container bool) Mode {
	if container {
		return Container
	}
	return Local
}

// DefaultImages are tried in order when launching a container.
var DefaultImages = []string{"ubuntu:24.04", "ubuntu:22.04", "images:debian/12", "images:debian/11"}

// Installer installs and operates components in one mode.
type Installer interface {
	// Install installs name and every missing dependency, dependencies
	// first, each exactly once. The resolver supplies {{DB_PASSWORD}}.
	Install(ctx context.Context, name string, env Resolver) error

	// Start launches name unless its check command reports it running.
	Start(ctx context.Context, name string, env Resolver) error

	// Stop terminates name. A component that is not running is not an error.
	Stop(ctx context.Context, name string) error

	// IsInstalled reports whether name is installed.
	IsInstalled(ctx context.Context, name string) (bool, error)

	// Running reports whether name's check command succeeds.
	Running(ctx context.Context, name string) (bool, error)

	// Remove uninstalls name.
	Remove(ctx context.Context, name string) error

	// Paths returns the directories name uses, as seen by its process.
	Paths(name string) component.PathSet

	// Mode returns the install mode.
	Mode() Mode
}

// Options configures an Installer.
type Options struct {
	// Registry provides component descriptors. Required.
	Registry *component.Registry

	// Runner executes external commands. Nil uses process.NewDefaultRunner().
	Runner process.Runner

	// StackPath is the stack root (Local layout, download cache).
	StackPath string

	// Tenant names containers <tenant>-<component>. Default "default".
	Tenant string

	// ContainerBase is the in-container root. Default "/opt/gbo".
	ContainerBase string

	// HostTenantsRoot holds host-side bind mounts. Default
	// "<ContainerBase>/tenants".
	HostTenantsRoot string

	// Images are tried in order when launching a container.
	Images []string

	// Downloader fetches artifacts. Nil caches under <StackPath>/cache.
	Downloader *Downloader

	// OS selects per-OS commands and packages. Empty uses the current OS.
	OS component.OS

	// Settle is the wait after launching a container. Default 10s.
	Settle time.Duration

	// Sleep replaces real waits in tests.
	Sleep resilience.SleepFunc

	// Logger receives progress. Nil uses slog.Default().
	Logger *slog.Logger
}

// New returns the Installer for mode.
//
// # Outputs
//
//   - Installer: *LocalInstaller or *ContainerInstaller
//   - error: ErrMissingRegistry or ErrUnknownMode
func New(mode Mode, opts Options) (Installer, error) {
	if opts.Registry == nil {
		return nil, ErrMissingRegistry
	}
	b := newBase(opts)

	switch mode {
	case Local:
		return &LocalInstaller{base: b}, nil
	case Container:
		return newContainerInstaller(b, opts), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
	}
}

// -----------------------------------------------------------------------------
// Shared behaviour
// -----------------------------------------------------------------------------

type base struct {
	registry   *component.Registry
	runner     process.Runner
	downloader *Downloader
	stackPath  string
	os         component.OS
	sleep      resilience.SleepFunc
	logger     *slog.Logger
}

func newBase(opts Options) base {
	b := base{
		registry:   opts.Registry,
		runner:     opts.Runner,
		downloader: opts.Downloader,
		stackPath:  opts.StackPath,
		os:         opts.OS,
		sleep:      opts.Sleep,
		logger:     opts.Logger,
	}
	if b.runner == nil {
		b.runner = process.NewDefaultRunner()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.os == "" {
		b.os = component.CurrentOS()
	}
	if b.sleep == nil {
		b.sleep = resilience.SleepContext
	}
	if b.downloader == nil {
		b.downloader = NewDownloader(filepath.Join(b.stackPath, "cache"), b.logger)
		b.downloader.Sleep = opts.Sleep
	}
	return b
}

// installTree installs name and its missing dependencies through one.
func (b *base) installTree(
	ctx context.Context,
	name string,
	isInstalled func(ctx context.Context, name string) (bool, error),
	one func(ctx context.Context, d component.Descriptor) error,
) error {
	order, err := b.registry.InstallOrder(name)
	if err != nil {
		return err
	}

	for _, n := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n != name {
			installed, err := isInstalled(ctx, n)
			if err != nil {
				return fmt.Errorf("check dependency %s: %w", n, err)
			}
			if installed {
				b.logger.Debug("Dependency already installed", "component", name, "dependency", n)
				continue
			}
			b.logger.Info("Installing dependency", "component", name, "dependency", n)
		}

		d, err := b.registry.Lookup(n)
		if err != nil {
			return err
		}
		if err := one(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// vars builds template variables for paths, resolving {{DB_PASSWORD}}.
func vars(ctx context.Context, paths component.PathSet, env Resolver) component.Vars {
	v := component.Vars{Paths: paths}
	if env != nil {
		if pw, ok := env.Lookup(ctx, DBPasswordKey); ok {
			v.DBPassword = pw
		}
	}
	return v
}

// packageCommand returns the OS package install command, or "" if none.
func (b *base) packageCommand(pkgs []string) string {
	if len(pkgs) == 0 {
		return ""
	}
	joined := strings.Join(pkgs, " ")
	switch b.os {
	case component.MacOS:
		return "brew install " + joined
	default:
		return "DEBIAN_FRONTEND=noninteractive apt-get install -y " + joined
	}
}
