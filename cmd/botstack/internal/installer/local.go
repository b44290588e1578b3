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
	"os"
	"path/filepath"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/component"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/infra/process"
)

// LocalInstaller installs components under the stack root on this host.
//
// # Layout
//
//	<stack>/bin/<c>/    binaries and extracted archives
//	<stack>/data/<c>/   runtime data
//	<stack>/conf/       shared configuration (certificates, per-service files)
//	<stack>/logs/<c>/   logs
//	<stack>/cache/<c>/  download cache
type LocalInstaller struct {
	base
}

// Mode implements Installer.
func (l *LocalInstaller) Mode() Mode { return Local }

// Paths implements Installer.
func (l *LocalInstaller) Paths(name string) component.PathSet {
	return component.PathSet{
		Bin:  filepath.Join(l.stackPath, "bin", name),
		Data: filepath.Join(l.stackPath, "data", name),
		Conf: filepath.Join(l.stackPath, "conf"),
		Logs: filepath.Join(l.stackPath, "logs", name),
	}
}

// IsInstalled reports whether bin/<name> exists.
func (l *LocalInstaller) IsInstalled(ctx context.Context, name string) (bool, error) {
	info, err := os.Stat(l.Paths(name).Bin)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// Install implements Installer.
func (l *LocalInstaller) Install(ctx context.Context, name string, env Resolver) error {
	env = withFallback(env)
	return l.installTree(ctx, name, l.IsInstalled, func(ctx context.Context, d component.Descriptor) error {
		return l.installOne(ctx, d, env)
	})
}

func (l *LocalInstaller) installOne(ctx context.Context, d component.Descriptor, env Resolver) error {
	log := l.logger.With("component", d.Name, "mode", "local")
	log.Info("Installing component")

	paths := l.Paths(d.Name)
	for _, dir := range paths.All() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return stepErr(d.Name, "create directories", err)
		}
	}
	v := vars(ctx, paths, env)

	for _, tmpl := range d.PreInstallFor(l.os) {
		if err := l.shellTemplate(ctx, tmpl, v, paths.Bin); err != nil {
			return stepErr(d.Name, "pre-install", err)
		}
	}

	if cmd := l.packageCommand(d.PackagesFor(l.os)); cmd != "" {
		if err := l.shell(ctx, cmd, paths.Bin); err != nil {
			log.Warn("Package installation failed, continuing", "packages", d.PackagesFor(l.os), "error", err)
		}
	}

	if d.HasDownload() {
		artifact, err := l.downloader.Fetch(ctx, d.Name, d.DownloadURL)
		if err != nil {
			return stepErr(d.Name, "download", err)
		}
		if err := placeArtifact(artifact, paths.Bin, d.BinaryName); err != nil {
			return stepErr(d.Name, "extract", err)
		}
	}

	for _, url := range d.DataDownloads {
		dest := filepath.Join(paths.Data, component.DownloadFileName(url))
		if err := l.downloader.FetchTo(ctx, url, dest); err != nil {
			return stepErr(d.Name, "data download", err)
		}
	}

	for _, tmpl := range d.PostInstallFor(l.os) {
		if err := l.shellTemplate(ctx, tmpl, v, paths.Bin); err != nil {
			return stepErr(d.Name, "post-install", err)
		}
	}

	log.Info("Component installed", "bin", paths.Bin)
	return nil
}

// Start implements Installer.
func (l *LocalInstaller) Start(ctx context.Context, name string, env Resolver) error {
	d, err := l.registry.Lookup(name)
	if err != nil {
		return err
	}
	log := l.logger.With("component", name, "mode", "local")
	env = withFallback(env)

	paths := l.Paths(name)
	v := vars(ctx, paths, env)

	if check := component.Render(d.CheckCmd, v); check != "" {
		res := l.runner.Shell(ctx, process.ShellSpec{Command: check, Dir: paths.Bin})
		if res.OK() {
			log.Info("Component already running")
			return nil
		}
	}

	if d.ExecCmd == "" {
		log.Debug("Component has no process to start")
		return nil
	}

	render := func(s string) string { return component.Render(s, v) }
	entries, missing := resolveEnv(ctx, d.Env, render, env)
	if len(missing) > 0 {
		log.Warn("Unresolved environment references", "keys", missing)
	}

	if err := os.MkdirAll(paths.Logs, 0755); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	pid, err := l.runner.Start(ctx, process.ShellSpec{
		Command: render(d.ExecCmd),
		Dir:     paths.Bin,
		Env:     append(exported(env), entries...),
	})
	if err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	log.Info("Component launched", "pid", pid)
	return nil
}

// Running runs the check command, falling back to the process pattern for
// components without one.
func (l *LocalInstaller) Running(ctx context.Context, name string) (bool, error) {
	d, err := l.registry.Lookup(name)
	if err != nil {
		return false, err
	}
	v := component.Vars{Paths: l.Paths(name)}
	if check := component.Render(d.CheckCmd, v); check != "" {
		return l.runner.Shell(ctx, process.ShellSpec{Command: check, Dir: v.Paths.Bin}).OK(), nil
	}
	if pattern := component.Render(d.ProcessPattern, v); pattern != "" {
		running, _, err := l.runner.IsRunning(ctx, pattern)
		return running, err
	}
	return false, nil
}

// Stop kills processes matching the component's process pattern.
func (l *LocalInstaller) Stop(ctx context.Context, name string) error {
	d, err := l.registry.Lookup(name)
	if err != nil {
		return err
	}
	pattern := component.Render(d.ProcessPattern, component.Vars{Paths: l.Paths(name)})
	if pattern == "" {
		return nil
	}
	if err := l.runner.Kill(ctx, pattern).Err(); err != nil {
		return fmt.Errorf("stop %s: %w", name, err)
	}
	l.logger.Info("Component stopped", "component", name)
	return nil
}

// Remove deletes bin/<name>. Data, configuration and logs are kept.
func (l *LocalInstaller) Remove(ctx context.Context, name string) error {
	if _, err := l.registry.Lookup(name); err != nil {
		return err
	}
	if err := os.RemoveAll(l.Paths(name).Bin); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	l.logger.Info("Component removed", "component", name)
	return nil
}

func (l *LocalInstaller) shell(ctx context.Context, cmd, dir string) error {
	return l.runner.Shell(ctx, process.ShellSpec{Command: cmd, Dir: dir}).Err()
}

// shellTemplate runs the rendered tmpl; a failure reports the template so
// substituted secrets never reach error messages.
func (l *LocalInstaller) shellTemplate(ctx context.Context, tmpl string, v component.Vars, dir string) error {
	res := l.runner.Shell(ctx, process.ShellSpec{Command: component.Render(tmpl, v), Dir: dir})
	res.Command = tmpl
	return res.Err()
}

// placeArtifact extracts or copies a downloaded artifact into bin.
func placeArtifact(artifact, bin, binaryName string) error {
	switch ClassifyArtifact(filepath.Base(artifact)) {
	case KindTarGz:
		return ExtractTarGz(artifact, bin)
	case KindZip:
		return ExtractZip(artifact, bin)
	default:
		name := binaryName
		if name == "" {
			name = filepath.Base(artifact)
		}
		return PlaceBinary(artifact, filepath.Join(bin, name))
	}
}

var _ Installer = (*LocalInstaller)(nil)
