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
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/component"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/database"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/directory"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/infra/process"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/installer"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/readiness"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/resilience"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/secrets"
)

const testPAT = "pat-test"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testDescriptors is a catalog without downloads. Every component has a
// check command, an exec command and a process pattern so start, stop
// and status are observable through the runner.
func testDescriptors() []component.Descriptor {
	desc := func(name string, deps ...string) component.Descriptor {
		return component.Descriptor{
			Name:           name,
			Dependencies:   deps,
			ExecCmd:        "run " + name,
			CheckCmd:       "check " + name,
			ProcessPattern: "proc-" + name,
		}
	}
	secretsDesc := desc(component.Secrets)
	secretsDesc.BinaryName = "vault"
	return []component.Descriptor{
		secretsDesc,
		desc(component.Tables),
		desc(component.Directory, component.Tables),
		desc(component.Drive),
		desc(component.Cache),
		desc(component.LLM),
		desc(component.VectorDB),
		desc(component.Email),
		desc(component.Proxy),
		desc(component.DNS),
		desc(component.Meet),
		desc(component.Timeseries),
		desc(component.Observation, component.Timeseries),
	}
}

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeBuckets struct {
	mu      sync.Mutex
	buckets []string
	lists   int
	created []string
	keys    []string
}

func (f *fakeBuckets) ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	out := &s3.ListBucketsOutput{}
	for _, b := range f.buckets {
		out.Buckets = append(out.Buckets, types.Bucket{Name: aws.String(b)})
	}
	return out, nil
}

func (f *fakeBuckets) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.Bucket)
	f.buckets = append(f.buckets, name)
	f.created = append(f.created, name)
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeBuckets) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeBuckets) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func (f *fakeBuckets) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

// fakeIdP answers the identity provider calls made during provisioning.
type fakeIdP struct {
	mu           sync.Mutex
	calls        []string
	adminCreated bool
}

func (f *fakeIdP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	f.mu.Unlock()

	if r.URL.Path == "/debug/ready" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+testPAT {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var out any
	switch r.URL.Path {
	case "/v2/users":
		f.mu.Lock()
		exists := f.adminCreated
		f.mu.Unlock()
		result := []map[string]string{}
		if exists {
			result = append(result, map[string]string{"userId": "user-1", "username": directory.DefaultAdminUser})
		}
		out = map[string]any{"result": result}
	case "/v2/organizations":
		out = map[string]string{"organizationId": "org-1"}
	case "/v2/users/human":
		f.mu.Lock()
		f.adminCreated = true
		f.mu.Unlock()
		out = map[string]string{"userId": "user-1"}
	case "/management/v1/projects":
		out = map[string]string{"id": "proj-1"}
	case "/management/v1/projects/proj-1/apps/oidc":
		out = map[string]string{"clientId": "client-1", "clientSecret": "secret-1"}
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (f *fakeIdP) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// -----------------------------------------------------------------------------
// Harness
// -----------------------------------------------------------------------------

type harness struct {
	t        *testing.T
	stack    string
	registry *component.Registry
	runner   *process.MockRunner
	inst     installer.Installer
	store    *secrets.MemoryStore
	admin    *database.MemoryAdmin
	buckets  *fakeBuckets
	idp      *fakeIdP
	cache    *miniredis.Miniredis

	mu            sync.Mutex
	dbURLs        []string
	cachePassword string
	cfg           Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		t:       t,
		stack:   filepath.Join(root, "botserver-stack"),
		runner:  process.NewSucceedingRunner(),
		store:   secrets.NewMemoryStore(),
		admin:   database.NewMemoryAdmin(),
		buckets: &fakeBuckets{},
		idp:     &fakeIdP{},
		cache:   miniredis.RunT(t),
	}

	reg, err := component.NewRegistry(testDescriptors()...)
	require.NoError(t, err)
	h.registry = reg

	h.inst, err = installer.New(installer.Local, installer.Options{
		Registry:  reg,
		Runner:    h.runner,
		StackPath: h.stack,
		Sleep:     resilience.NoSleep,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	// The store binary is normally placed by the download step.
	h.writeFile(filepath.Join("bin", "secrets", "vault"), "elf")
	h.writeFile(filepath.Join("conf", "directory", directory.PATFile), testPAT+"\n")

	migrations := filepath.Join(root, "migrations")
	require.NoError(t, os.MkdirAll(migrations, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(migrations, "001_init.sql"), []byte("CREATE TABLE bots (id int);"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(migrations, "002_users.sql"), []byte("CREATE TABLE users (id int);"), 0644))

	idp := httptest.NewServer(h.idp)
	t.Cleanup(idp.Close)

	h.cfg = Config{
		StackPath:     h.stack,
		Installer:     h.inst,
		Registry:      reg,
		EnvPath:       filepath.Join(root, ".env"),
		MigrationsDir: migrations,
		TemplatesDir:  filepath.Join(root, "templates"),
		DirectoryURL:  idp.URL,
		ReadyAttempts: 3,
		ReadyInterval: time.Millisecond,
		Clients: Clients{
			Store: func(cfg secrets.VaultConfig) (secrets.Store, error) {
				return h.store, nil
			},
			Database: func(connString string) database.Connector {
				h.mu.Lock()
				h.dbURLs = append(h.dbURLs, connString)
				h.mu.Unlock()
				return func(ctx context.Context) (database.Admin, error) { return h.admin, nil }
			},
			Drive: func(ctx context.Context, opts readiness.DriveOptions) (readiness.BucketAPI, error) {
				return h.buckets, nil
			},
			Cache: func(opts readiness.CacheOptions) CacheClient {
				h.mu.Lock()
				h.cachePassword = opts.Password
				h.mu.Unlock()
				h.cache.RequireAuth(opts.Password)
				return readiness.NewCacheClient(readiness.CacheOptions{Addr: h.cache.Addr(), Password: opts.Password})
			},
			Directory: idp.Client(),
		},
		Sleep:  resilience.NoSleep,
		Logger: quietLogger(),
	}
	return h
}

func (h *harness) writeFile(rel, body string) string {
	h.t.Helper()
	path := filepath.Join(h.stack, rel)
	require.NoError(h.t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(h.t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func (h *harness) path(rel ...string) string {
	return filepath.Join(append([]string{h.stack}, rel...)...)
}

func (h *harness) sequencer() *Sequencer {
	h.t.Helper()
	s, err := New(h.cfg)
	require.NoError(h.t, err)
	return s
}

func (h *harness) supervisor() *Supervisor {
	h.t.Helper()
	v, err := NewSupervisor(h.cfg)
	require.NoError(h.t, err)
	return v
}

// failChecks makes every check command fail so Start launches processes.
func (h *harness) failChecks() {
	h.runner.ShellFunc = func(ctx context.Context, spec process.ShellSpec) process.Result {
		if strings.HasPrefix(spec.Command, "check ") {
			return process.FailResult(1, "")
		}
		return process.OKResult("")
	}
}

// launched returns the components started through the runner, in order.
func (h *harness) launched() []string {
	var out []string
	for _, c := range h.runner.CallsMatching("Start", "run ") {
		out = append(out, strings.TrimPrefix(c.Spec.Command, "run "))
	}
	return out
}

// killed returns the process patterns killed through the runner, in order.
func (h *harness) killed() []string {
	var out []string
	for _, c := range h.runner.GetCalls() {
		if c.Method == "Kill" {
			out = append(out, c.Name)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Container mode
// -----------------------------------------------------------------------------

// lxcHost answers lxc commands from an in-memory container table. Commands
// run inside a container succeed.
type lxcHost struct {
	mu         sync.Mutex
	containers map[string]string
}

type lxcEntry struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (x *lxcHost) run(ctx context.Context, name string, args ...string) process.Result {
	if name != "lxc" || len(args) < 2 {
		return process.OKResult("")
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	switch args[0] {
	case "list":
		if len(args) >= 3 && args[2] == "--format=json" {
			out := []lxcEntry{}
			if status, ok := x.containers[args[1]]; ok {
				out = append(out, lxcEntry{Name: args[1], Status: status})
			}
			data, _ := json.Marshal(out)
			return process.OKResult(string(data))
		}
		return process.OKResult("10.0.3.15 (eth0)\n")
	case "launch":
		x.containers[args[2]] = "Running"
	case "start":
		x.containers[args[1]] = "Running"
	case "stop":
		x.containers[args[1]] = "Stopped"
	case "delete":
		delete(x.containers, args[1])
	}
	return process.OKResult("")
}

func (x *lxcHost) has(cname string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.containers[cname]
	return ok
}

// useContainer switches the harness to the container installer. Host
// directories live under <root>/tenants and the local store binary is
// removed, so only container state and host directories count.
func (h *harness) useContainer() *lxcHost {
	h.t.Helper()
	host := &lxcHost{containers: map[string]string{}}
	h.runner.RunFunc = host.run

	inst, err := installer.New(installer.Container, installer.Options{
		Registry:        h.registry,
		Runner:          h.runner,
		StackPath:       h.stack,
		HostTenantsRoot: filepath.Join(filepath.Dir(h.stack), "tenants"),
		Sleep:           resilience.NoSleep,
		Logger:          quietLogger(),
	})
	require.NoError(h.t, err)
	h.inst = inst
	h.cfg.Installer = inst

	require.NoError(h.t, os.RemoveAll(h.path("bin")))
	return host
}

// hostDir is a host directory bind-mounted into name's container.
func (h *harness) hostDir(name, dir string, rel ...string) string {
	c := h.inst.(*installer.ContainerInstaller)
	return filepath.Join(append([]string{c.HostDir(name, dir)}, rel...)...)
}
