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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/component"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/infra/process"
)

// Container defaults.
const (
	DefaultTenant        = "default"
	DefaultContainerBase = "/opt/gbo"
	defaultSettle        = 10 * time.Second
)

// mountedDirs are bind-mounted from the host tenant directory.
var mountedDirs = []string{"data", "conf", "logs"}

// ContainerInstaller runs each component in an LXC container named
// <tenant>-<component>.
//
// # Description
//
// All interaction goes through the lxc CLI. Inside the container the
// component uses <base>/{bin,data,conf,logs}; data, conf and logs are
// bind-mounted from <hostRoot>/<tenant>/<component>/ so they survive
// container removal. The process is supervised by a systemd unit, and every
// declared port is forwarded from the host with a proxy device.
type ContainerInstaller struct {
	base
	tenant   string
	cbase    string
	hostRoot string
	images   []string
	settle   time.Duration
}

func newContainerInstaller(b base, opts Options) *ContainerInstaller {
	c := &ContainerInstaller{
		base:     b,
		tenant:   opts.Tenant,
		cbase:    opts.ContainerBase,
		hostRoot: opts.HostTenantsRoot,
		images:   opts.Images,
		settle:   opts.Settle,
	}
	if c.tenant == "" {
		c.tenant = DefaultTenant
	}
	if c.cbase == "" {
		c.cbase = DefaultContainerBase
	}
	if c.hostRoot == "" {
		c.hostRoot = filepath.Join(c.cbase, "tenants")
	}
	if len(c.images) == 0 {
		c.images = append([]string(nil), DefaultImages...)
	}
	if c.settle <= 0 {
		c.settle = defaultSettle
	}
	// Containers are always Linux.
	c.os = component.Linux
	return c
}

// Mode implements Installer.
func (c *ContainerInstaller) Mode() Mode { return Container }

// ContainerName returns <tenant>-<name>.
func (c *ContainerInstaller) ContainerName(name string) string {
	return c.tenant + "-" + name
}

// Paths returns the in-container directories.
func (c *ContainerInstaller) Paths(name string) component.PathSet {
	return component.PathSet{
		Bin:  path.Join(c.cbase, "bin"),
		Data: path.Join(c.cbase, "data"),
		Conf: path.Join(c.cbase, "conf"),
		Logs: path.Join(c.cbase, "logs"),
	}
}

// HostDir returns the host directory bind-mounted as dir ("data", "conf"
// or "logs") for name.
func (c *ContainerInstaller) HostDir(name, dir string) string {
	return filepath.Join(c.hostRoot, c.tenant, name, dir)
}

// -----------------------------------------------------------------------------
// Container state
// -----------------------------------------------------------------------------

type lxcInstance struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// state returns the container status ("Running", "Stopped", ...) and
// whether it exists.
func (c *ContainerInstaller) state(ctx context.Context, cname string) (string, bool, error) {
	res := c.runner.Run(ctx, "lxc", "list", cname, "--format=json")
	if err := res.Err(); err != nil {
		return "", false, err
	}
	var instances []lxcInstance
	if err := json.Unmarshal(res.Stdout, &instances); err != nil {
		return "", false, fmt.Errorf("parse lxc list output: %w", err)
	}
	// lxc list filters by prefix; only an exact name counts.
	for _, inst := range instances {
		if inst.Name == cname {
			return inst.Status, true, nil
		}
	}
	return "", false, nil
}

// IsInstalled reports whether the component's container exists.
func (c *ContainerInstaller) IsInstalled(ctx context.Context, name string) (bool, error) {
	if _, err := c.registry.Lookup(name); err != nil {
		return false, err
	}
	_, exists, err := c.state(ctx, c.ContainerName(name))
	return exists, err
}

// -----------------------------------------------------------------------------
// Install
// -----------------------------------------------------------------------------

// Install implements Installer.
func (c *ContainerInstaller) Install(ctx context.Context, name string, env Resolver) error {
	env = withFallback(env)
	return c.installTree(ctx, name, c.IsInstalled, func(ctx context.Context, d component.Descriptor) error {
		return c.installOne(ctx, d, env)
	})
}

func (c *ContainerInstaller) installOne(ctx context.Context, d component.Descriptor, env Resolver) error {
	cname := c.ContainerName(d.Name)
	log := c.logger.With("component", d.Name, "mode", "container", "container", cname)
	log.Info("Installing component")

	_, exists, err := c.state(ctx, cname)
	if err != nil {
		return stepErr(d.Name, "inspect container", err)
	}
	if exists {
		log.Info("Reusing existing container")
		c.lxc(ctx, "start", cname).Ignore("container may already be running")
	} else {
		if err := c.launch(ctx, cname); err != nil {
			return stepErr(d.Name, "launch container", err)
		}
		if err := c.sleep(ctx, c.settle); err != nil {
			return err
		}
	}

	paths := c.Paths(d.Name)
	v := vars(ctx, paths, env)

	if err := c.exec(ctx, cname, "mkdir -p "+strings.Join(paths.All(), " ")).Err(); err != nil {
		return stepErr(d.Name, "create directories", err)
	}
	if err := c.mountHostDirs(ctx, cname, d.Name); err != nil {
		return stepErr(d.Name, "mount host directories", err)
	}

	// Best-effort preparation.
	prep := []string{
		"echo 'nameserver 8.8.8.8' > /etc/resolv.conf",
		"apt-get update -qq && DEBIAN_FRONTEND=noninteractive apt-get install -y -qq wget curl unzip tar ca-certificates",
	}
	if cmd := c.packageCommand(d.PackagesFor(component.Linux)); cmd != "" {
		prep = append(prep, cmd)
	}
	for _, cmd := range prep {
		if err := c.exec(ctx, cname, cmd).Err(); err != nil {
			log.Warn("Container preparation step failed, continuing", "command", cmd, "error", err)
		}
	}

	for _, tmpl := range d.PreInstallFor(component.Linux) {
		if err := c.execTemplate(ctx, cname, tmpl, v); err != nil {
			return stepErr(d.Name, "pre-install", err)
		}
	}

	if d.HasDownload() {
		if err := c.exec(ctx, cname, downloadScript(d, paths.Bin)).Err(); err != nil {
			return stepErr(d.Name, "download", err)
		}
	}
	for _, url := range d.DataDownloads {
		dest := path.Join(paths.Data, component.DownloadFileName(url))
		script := fmt.Sprintf("[ -s %s ] || wget -q -O %s %s", dest, dest, shellQuote(url))
		if err := c.exec(ctx, cname, script).Err(); err != nil {
			return stepErr(d.Name, "data download", err)
		}
	}

	for _, tmpl := range d.PostInstallFor(component.Linux) {
		if err := c.execTemplate(ctx, cname, tmpl, v); err != nil {
			return stepErr(d.Name, "post-install", err)
		}
	}

	if err := c.exec(ctx, cname,
		"id -u gbuser >/dev/null 2>&1 || useradd --system --no-create-home --shell /usr/sbin/nologin gbuser").Err(); err != nil {
		return stepErr(d.Name, "create service user", err)
	}

	if err := c.exec(ctx, cname, "chown -R gbuser:gbuser "+c.cbase).Err(); err != nil {
		log.Warn("Failed to chown container directories", "error", err)
	}

	if d.Runnable() {
		if err := c.pushUnit(ctx, cname, d, v, env); err != nil {
			return stepErr(d.Name, "install service unit", err)
		}
		for _, args := range [][]string{{"daemon-reload"}, {"enable", d.Name}, {"start", d.Name}} {
			if err := c.exec(ctx, cname, "systemctl "+strings.Join(args, " ")).Err(); err != nil {
				return stepErr(d.Name, "systemctl "+args[0], err)
			}
		}
	}

	if err := c.forwardPorts(ctx, cname, d.Ports); err != nil {
		return stepErr(d.Name, "forward ports", err)
	}

	if ip := c.containerIP(ctx, cname); ip != "" {
		log.Info("Component installed", "ip", ip)
	} else {
		log.Info("Component installed")
	}
	return nil
}

// launch tries each image in order, deleting a failed container before
// the next attempt.
func (c *ContainerInstaller) launch(ctx context.Context, cname string) error {
	var errs []error
	for _, image := range c.images {
		res := c.lxc(ctx, "launch", image, cname, "-c", "security.privileged=true")
		if res.OK() {
			c.logger.Info("Container launched", "container", cname, "image", image)
			return nil
		}
		c.logger.Warn("Container launch failed, trying next image", "container", cname, "image", image, "error", res.Err())
		errs = append(errs, res.Err())
		c.lxc(ctx, "delete", cname, "--force").Ignore("cleanup after failed launch")
	}
	return fmt.Errorf("%w: %w", ErrNoImage, errors.Join(errs...))
}

func (c *ContainerInstaller) mountHostDirs(ctx context.Context, cname, name string) error {
	for _, dir := range mountedDirs {
		host := c.HostDir(name, dir)
		if err := os.MkdirAll(host, 0755); err != nil {
			return err
		}
		device := name + "-" + dir
		c.lxc(ctx, "config", "device", "remove", cname, device).Ignore("no stale device")
		res := c.lxc(ctx, "config", "device", "add", cname, device, "disk",
			"source="+host, "path="+path.Join(c.cbase, dir))
		if err := res.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (c *ContainerInstaller) forwardPorts(ctx context.Context, cname string, ports []int) error {
	for _, p := range ports {
		device := "port-" + strconv.Itoa(p)
		c.lxc(ctx, "config", "device", "remove", cname, device).Ignore("no stale device")
		res := c.lxc(ctx, "config", "device", "add", cname, device, "proxy",
			fmt.Sprintf("listen=tcp:0.0.0.0:%d", p),
			fmt.Sprintf("connect=tcp:127.0.0.1:%d", p))
		if err := res.Err(); err != nil {
			return err
		}
	}
	return nil
}

// pushUnit renders the systemd unit with resolved environment values and
// copies it into the container.
func (c *ContainerInstaller) pushUnit(ctx context.Context, cname string, d component.Descriptor, v component.Vars, env Resolver) error {
	render := func(s string) string { return component.Render(s, v) }
	entries, missing := resolveEnv(ctx, d.Env, render, env)
	if len(missing) > 0 {
		c.logger.Warn("Unresolved environment references", "component", d.Name, "keys", missing)
	}

	unit := RenderUnit(UnitSpec{
		Name:             d.Name,
		ExecStart:        render(d.ExecCmd),
		WorkingDirectory: v.Paths.Data,
		Environment:      entries,
	})

	tmp, err := os.CreateTemp("", "botstack-unit-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(unit); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	dest := cname + "/etc/systemd/system/" + d.Name + ".service"
	return c.lxc(ctx, "file", "push", tmp.Name(), dest).Err()
}

func (c *ContainerInstaller) containerIP(ctx context.Context, cname string) string {
	res := c.lxc(ctx, "list", cname, "-c", "4", "--format", "csv")
	if !res.OK() {
		return ""
	}
	// "10.1.2.3 (eth0)"
	fields := strings.Fields(res.Output())
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// -----------------------------------------------------------------------------
// Start / Stop / Remove
// -----------------------------------------------------------------------------

// Start implements Installer.
func (c *ContainerInstaller) Start(ctx context.Context, name string, env Resolver) error {
	d, err := c.registry.Lookup(name)
	if err != nil {
		return err
	}
	cname := c.ContainerName(name)
	log := c.logger.With("component", name, "mode", "container", "container", cname)
	env = withFallback(env)
	v := vars(ctx, c.Paths(name), env)

	status, exists, err := c.state(ctx, cname)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("start %s: container %s does not exist", name, cname)
	}
	if status != "Running" {
		if err := c.lxc(ctx, "start", cname).Err(); err != nil {
			return fmt.Errorf("start %s: %w", name, err)
		}
	}

	if check := component.Render(d.CheckCmd, v); check != "" {
		if c.exec(ctx, cname, check).OK() {
			log.Info("Component already running")
			return nil
		}
	}
	if !d.Runnable() {
		return nil
	}

	if err := c.pushUnit(ctx, cname, d, v, env); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	if err := c.exec(ctx, cname, "systemctl daemon-reload").Err(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	if err := c.exec(ctx, cname, "systemctl start "+name).Err(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	log.Info("Component started")
	return nil
}

// Running reports whether the container is running and, when the
// component has one, its check command succeeds inside it.
func (c *ContainerInstaller) Running(ctx context.Context, name string) (bool, error) {
	d, err := c.registry.Lookup(name)
	if err != nil {
		return false, err
	}
	cname := c.ContainerName(name)
	status, exists, err := c.state(ctx, cname)
	if err != nil || !exists || status != "Running" {
		return false, err
	}
	check := component.Render(d.CheckCmd, component.Vars{Paths: c.Paths(name)})
	if check == "" {
		return true, nil
	}
	return c.exec(ctx, cname, check).OK(), nil
}

// Stop stops the component's systemd unit. A stopped or missing container
// is not an error.
func (c *ContainerInstaller) Stop(ctx context.Context, name string) error {
	d, err := c.registry.Lookup(name)
	if err != nil {
		return err
	}
	cname := c.ContainerName(name)
	status, exists, err := c.state(ctx, cname)
	if err != nil {
		return err
	}
	if !exists || status != "Running" || !d.Runnable() {
		return nil
	}
	// systemctl exits 5 when the unit is not loaded.
	if err := c.exec(ctx, cname, "systemctl stop "+name).BenignOnExit(5).Err(); err != nil {
		return fmt.Errorf("stop %s: %w", name, err)
	}
	c.logger.Info("Component stopped", "component", name, "container", cname)
	return nil
}

// Remove stops and deletes the container. Host tenant directories are kept.
func (c *ContainerInstaller) Remove(ctx context.Context, name string) error {
	if _, err := c.registry.Lookup(name); err != nil {
		return err
	}
	cname := c.ContainerName(name)
	status, exists, err := c.state(ctx, cname)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if status == "Running" {
		if err := c.lxc(ctx, "stop", cname).Err(); err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	if err := c.lxc(ctx, "delete", cname).Err(); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	c.logger.Info("Component removed", "component", name, "container", cname)
	return nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (c *ContainerInstaller) lxc(ctx context.Context, args ...string) process.Result {
	return c.runner.Run(ctx, "lxc", args...)
}

func (c *ContainerInstaller) exec(ctx context.Context, cname, script string) process.Result {
	return c.lxc(ctx, "exec", cname, "--", "bash", "-c", script)
}

// execTemplate runs the rendered tmpl; a failure reports the template.
func (c *ContainerInstaller) execTemplate(ctx context.Context, cname, tmpl string, v component.Vars) error {
	res := c.exec(ctx, cname, component.Render(tmpl, v))
	res.Command = "lxc exec " + cname + " -- bash -c " + tmpl
	return res.Err()
}

// downloadScript fetches the artifact with wget (three attempts, linear
// backoff) and places it under bin using the same extension dispatch as
// Local mode.
func downloadScript(d component.Descriptor, bin string) string {
	file := component.DownloadFileName(d.DownloadURL)
	tmp := "/tmp/" + file
	fetch := fmt.Sprintf(
		`for i in 1 2 3; do wget -q -O %s %s && [ -s %s ] && break; rm -f %s; sleep $((i * 2)); done`,
		tmp, shellQuote(d.DownloadURL), tmp, tmp)
	nonEmpty := fmt.Sprintf("[ -s %s ]", tmp)

	var place string
	switch ClassifyArtifact(file) {
	case KindTarGz:
		place = fmt.Sprintf(
			`rm -rf /tmp/x && mkdir -p /tmp/x && tar -xzf %s -C /tmp/x && set -- /tmp/x/* && `+
				`if [ $# -eq 1 ] && [ -d "$1" ]; then cp -a "$1"/. %s/; else cp -a /tmp/x/. %s/; fi && rm -rf /tmp/x`,
			tmp, bin, bin)
	case KindZip:
		place = fmt.Sprintf(
			`unzip -o -q %s -d %s && find %s -type f \( ! -name '*.*' -o -name '*.sh' \) -exec chmod 755 {} +`,
			tmp, bin, bin)
	default:
		name := d.BinaryName
		if name == "" {
			name = file
		}
		place = fmt.Sprintf("mv %s %s/%s && chmod 755 %s/%s", tmp, bin, name, bin, name)
	}

	return strings.Join([]string{fetch, nonEmpty, place, "rm -f " + tmp}, " && ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var _ Installer = (*ContainerInstaller)(nil)
