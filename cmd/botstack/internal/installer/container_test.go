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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/component"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/infra/process"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/resilience"
)

// lxcFake answers `lxc list --format=json` with listJSON and delegates
// everything else to onRun (nil means success).
func lxcFake(listJSON string, onRun func(args []string) process.Result) *process.MockRunner {
	m := process.NewSucceedingRunner()
	m.RunFunc = func(ctx context.Context, name string, args ...string) process.Result {
		if name == "lxc" && len(args) >= 3 && args[0] == "list" && args[2] == "--format=json" {
			return process.OKResult(listJSON)
		}
		if onRun != nil {
			return onRun(args)
		}
		return process.OKResult("")
	}
	return m
}

func newContainer(t *testing.T, runner process.Runner, opts Options, descs ...component.Descriptor) *ContainerInstaller {
	t.Helper()
	opts.Registry = testRegistry(t, descs...)
	opts.Runner = runner
	opts.Sleep = resilience.NoSleep
	opts.Logger = quietLogger()
	if opts.HostTenantsRoot == "" {
		opts.HostTenantsRoot = t.TempDir()
	}
	inst, err := New(Container, opts)
	require.NoError(t, err)
	return inst.(*ContainerInstaller)
}

func driveDescriptor() component.Descriptor {
	return component.Descriptor{
		Name:        "drive",
		Ports:       []int{9000, 9001},
		DownloadURL: "https://dl.min.io/server/minio/release/linux-amd64/minio",
		BinaryName:  "minio",
		Env:         map[string]string{"MINIO_ROOT_USER": "$DRIVE_ACCESSKEY"},
		ExecCmd:     "{{BIN_PATH}}/minio server {{DATA_PATH}} --console-address :9001",
		CheckCmd:    "curl -sf http://localhost:9000/minio/health/live",
	}
}

func TestContainerInstall_ForwardsEveryPort(t *testing.T) {
	runner := lxcFake("[]", nil)
	inst := newContainer(t, runner, Options{Tenant: "default"}, driveDescriptor())

	require.NoError(t, inst.Install(context.Background(), "drive", MapResolver{"DRIVE_ACCESSKEY": "ak"}))

	var proxies []string
	for _, c := range runner.GetCalls() {
		line := c.Line()
		if strings.HasPrefix(line, "lxc config device add") && strings.Contains(line, " proxy ") {
			proxies = append(proxies, line)
		}
	}
	assert.Equal(t, []string{
		"lxc config device add default-drive port-9000 proxy listen=tcp:0.0.0.0:9000 connect=tcp:127.0.0.1:9000",
		"lxc config device add default-drive port-9001 proxy listen=tcp:0.0.0.0:9001 connect=tcp:127.0.0.1:9001",
	}, proxies)
}

func TestContainerInstall_LaunchMountsAndUnit(t *testing.T) {
	runner := lxcFake("[]", nil)
	host := t.TempDir()
	inst := newContainer(t, runner, Options{Tenant: "acme", HostTenantsRoot: host}, driveDescriptor())

	require.NoError(t, inst.Install(context.Background(), "drive", nil))

	launches := runner.CallsMatching("Run", "lxc launch")
	require.Len(t, launches, 1)
	assert.Equal(t, "lxc launch ubuntu:24.04 acme-drive -c security.privileged=true", launches[0].Line())

	for _, dir := range []string{"data", "conf", "logs"} {
		want := "lxc config device add acme-drive drive-" + dir + " disk source=" + host + "/acme/drive/" + dir + " path=/opt/gbo/" + dir
		assert.Len(t, runner.CallsMatching("Run", want), 1, dir)
		assert.DirExists(t, inst.HostDir("drive", dir))
	}

	assert.Len(t, runner.CallsMatching("Run", "lxc file push"), 1)
	assert.Len(t, runner.CallsMatching("Run", "systemctl enable drive"), 1)
	assert.Len(t, runner.CallsMatching("Run", "systemctl start drive"), 1)
	assert.Len(t, runner.CallsMatching("Run", "wget -q -O /tmp/minio"), 1)
}

func TestContainerInstall_FallsBackThroughImages(t *testing.T) {
	runner := lxcFake("[]", func(args []string) process.Result {
		if args[0] == "launch" && args[1] != "images:debian/12" {
			return process.FailResult(1, "image not found")
		}
		return process.OKResult("")
	})
	inst := newContainer(t, runner, Options{}, component.Descriptor{Name: "dns"})

	require.NoError(t, inst.Install(context.Background(), "dns", nil))

	var launched []string
	for _, c := range runner.CallsMatching("Run", "lxc launch") {
		launched = append(launched, c.Args[1])
	}
	assert.Equal(t, []string{"ubuntu:24.04", "ubuntu:22.04", "images:debian/12"}, launched)
	assert.Len(t, runner.CallsMatching("Run", "lxc delete default-dns --force"), 2)
}

func TestContainerInstall_AllImagesFail(t *testing.T) {
	runner := lxcFake("[]", func(args []string) process.Result {
		if args[0] == "launch" {
			return process.FailResult(1, "no")
		}
		return process.OKResult("")
	})
	inst := newContainer(t, runner, Options{Images: []string{"a", "b"}}, component.Descriptor{Name: "dns"})

	err := inst.Install(context.Background(), "dns", nil)
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestContainerInstall_ReusesExistingContainer(t *testing.T) {
	runner := lxcFake(`[{"name":"default-dns","status":"Running"}]`, nil)
	inst := newContainer(t, runner, Options{}, component.Descriptor{Name: "dns"})

	require.NoError(t, inst.Install(context.Background(), "dns", nil))
	assert.Empty(t, runner.CallsMatching("Run", "lxc launch"))
	assert.Empty(t, runner.CallsMatching("Run", "lxc delete"))
}

func TestContainerIsInstalled_ExactName(t *testing.T) {
	runner := lxcFake(`[{"name":"default-drive2","status":"Running"}]`, nil)
	inst := newContainer(t, runner, Options{}, driveDescriptor())

	installed, err := inst.IsInstalled(context.Background(), "drive")
	require.NoError(t, err)
	assert.False(t, installed)
}

func TestContainerRemove_StoppedContainerSkipsStop(t *testing.T) {
	runner := lxcFake(`[{"name":"default-drive","status":"Stopped"}]`, nil)
	inst := newContainer(t, runner, Options{}, driveDescriptor())

	require.NoError(t, inst.Remove(context.Background(), "drive"))
	assert.Empty(t, runner.CallsMatching("Run", "lxc stop"))
	assert.Len(t, runner.CallsMatching("Run", "lxc delete default-drive"), 1)
}

func TestContainerRemove_RunningContainerStopsFirst(t *testing.T) {
	runner := lxcFake(`[{"name":"default-drive","status":"Running"}]`, nil)
	inst := newContainer(t, runner, Options{}, driveDescriptor())

	require.NoError(t, inst.Remove(context.Background(), "drive"))

	calls := runner.GetCalls()
	stop, del := -1, -1
	for i, c := range calls {
		switch c.Line() {
		case "lxc stop default-drive":
			stop = i
		case "lxc delete default-drive":
			del = i
		}
	}
	require.NotEqual(t, -1, stop)
	require.NotEqual(t, -1, del)
	assert.Less(t, stop, del)
}

func TestContainerStart_AlreadyRunning(t *testing.T) {
	runner := lxcFake(`[{"name":"default-drive","status":"Running"}]`, nil)
	inst := newContainer(t, runner, Options{}, driveDescriptor())

	require.NoError(t, inst.Start(context.Background(), "drive", nil))
	assert.Len(t, runner.CallsMatching("Run", "health/live"), 1)
	assert.Empty(t, runner.CallsMatching("Run", "systemctl start"))
}

func TestContainerStart_StartsUnitWhenCheckFails(t *testing.T) {
	runner := lxcFake(`[{"name":"default-drive","status":"Running"}]`, func(args []string) process.Result {
		if args[0] == "exec" && strings.Contains(strings.Join(args, " "), "health/live") {
			return process.FailResult(7, "")
		}
		return process.OKResult("")
	})
	inst := newContainer(t, runner, Options{}, driveDescriptor())

	require.NoError(t, inst.Start(context.Background(), "drive", nil))
	assert.Len(t, runner.CallsMatching("Run", "systemctl start drive"), 1)
}

func TestRenderUnit(t *testing.T) {
	unit := RenderUnit(UnitSpec{
		Name:             "cache",
		ExecStart:        `nohup /opt/gbo/bin/valkey-server --requirepass "$CACHE_PASSWORD" > /opt/gbo/logs/out.log 2>&1 &`,
		WorkingDirectory: "/opt/gbo/data",
		Environment:      []string{"CACHE_PASSWORD=p@ss"},
	})

	assert.Contains(t, unit, "Type=simple\n")
	assert.Contains(t, unit, `Environment="CACHE_PASSWORD=p@ss"`+"\n")
	assert.Contains(t, unit, `ExecStart=/bin/bash -c "/opt/gbo/bin/valkey-server --requirepass \"$$CACHE_PASSWORD\" > /opt/gbo/logs/out.log 2>&1"`+"\n")
	assert.Contains(t, unit, "WorkingDirectory=/opt/gbo/data\n")
	assert.Contains(t, unit, "Restart=always\n")
	assert.Contains(t, unit, "RestartSec=10\n")
}

func TestContainerRunning(t *testing.T) {
	stopped := lxcFake(`[{"name":"default-drive","status":"Stopped"}]`, nil)
	inst := newContainer(t, stopped, Options{}, driveDescriptor())
	running, err := inst.Running(context.Background(), "drive")
	require.NoError(t, err)
	assert.False(t, running)
	assert.Empty(t, stopped.CallsMatching("Run", "health/live"))

	up := lxcFake(`[{"name":"default-drive","status":"Running"}]`, nil)
	inst = newContainer(t, up, Options{}, driveDescriptor())
	running, err = inst.Running(context.Background(), "drive")
	require.NoError(t, err)
	assert.True(t, running)
	assert.Len(t, up.CallsMatching("Run", "health/live"), 1)
}
