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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/component"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/database"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/directory"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/metrics"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/resilience"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/secrets"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{StackPath: t.TempDir()})
	assert.ErrorIs(t, err, ErrNoInstaller)

	h := newHarness(t)
	cfg := h.cfg
	cfg.StackPath = ""
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestBootstrap_FreshHost(t *testing.T) {
	h := newHarness(t)
	res, err := h.sequencer().Bootstrap(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.True(t, res.Report.OK())
	assert.Empty(t, res.Report.Skipped)
	assert.Equal(t, []string{
		"cleanup", "certificates", "store-config",
		"secrets", "tables", "directory", "drive", "cache", "llm", "vector_db",
		"optional-configs", "templates",
	}, res.Report.Completed)

	// Certificates and store configuration.
	assert.NotEmpty(t, res.Certificates.Created)
	assert.FileExists(t, h.path("conf", "system", "certificates", "ca", "ca.crt"))
	hcl, err := os.ReadFile(h.path("conf", "vault", "config.hcl"))
	require.NoError(t, err)
	assert.Contains(t, string(hcl), `tls_cert_file      = "`+h.path("conf", "system", "certificates", "vault", "server.crt")+`"`)
	assert.Contains(t, string(hcl), `api_addr      = "https://localhost:8200"`)

	// Secrets store.
	require.NotNil(t, res.Secrets)
	assert.True(t, res.Secrets.Initialized)
	assert.Equal(t, secrets.RecordPaths, res.Secrets.Written)
	assert.FileExists(t, h.path("conf", "vault", "init.json"))
	env, err := secrets.ReadEnvFile(h.cfg.EnvPath)
	require.NoError(t, err)
	assert.NotEmpty(t, env["VAULT_TOKEN"])

	// Database.
	assert.True(t, res.DatabaseCreated)
	owner, ok := h.admin.Owner(secrets.DefaultDBName)
	require.True(t, ok)
	assert.Equal(t, secrets.DefaultDBUser, owner)
	assert.Equal(t, []string{"001_init", "002_users"}, res.Migrations)
	assert.Equal(t, []string{"001_init", "002_users"}, h.admin.Applied(secrets.DefaultDBName))
	require.NotEmpty(t, h.dbURLs)
	assert.Contains(t, h.dbURLs[0], "/postgres")

	rec, ok := h.store.Record(secrets.PathDirectory)
	require.True(t, ok)
	dbPassword, ok := h.admin.RolePassword(DirectoryRole)
	require.True(t, ok)
	assert.Equal(t, rec["db_password"], dbPassword)
	_, ok = h.admin.Owner(DirectoryDatabase)
	assert.True(t, ok)
	assert.FileExists(t, h.path("conf", "directory", directory.ServerConfigFile))
	assert.FileExists(t, h.path("conf", "directory", directory.StepsFile))

	// Identity provider.
	require.NotNil(t, res.Directory)
	assert.False(t, res.Directory.Skipped)
	assert.Equal(t, "client-1", rec["client_id"])
	assert.Equal(t, "secret-1", rec["client_secret"])
	assert.NotEmpty(t, rec["masterkey"])
	assert.FileExists(t, h.path("conf", "directory", directory.CredentialsFile))

	// Drive and cache readiness.
	assert.Equal(t, []string{"default.gbai"}, h.buckets.created)
	cacheRec, _ := h.store.Record(secrets.PathCache)
	assert.Equal(t, cacheRec["password"], h.cachePassword)

	// Metrics.
	prom, err := os.ReadFile(h.path("logs", "system", metrics.TextfileName))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "botstack_bootstrap_success 1")
	assert.Contains(t, string(prom), `run_id="`+res.RunID+`"`)
}

func TestBootstrap_SecondRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	first, err := h.sequencer().Bootstrap(context.Background())
	require.NoError(t, err)

	caBefore, err := os.ReadFile(h.path("conf", "system", "certificates", "ca", "ca.crt"))
	require.NoError(t, err)
	tablesBefore, _ := h.store.Record(secrets.PathTables)

	second, err := h.sequencer().Bootstrap(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Empty(t, second.Certificates.Created)
	assert.False(t, second.Secrets.Initialized)
	assert.Empty(t, second.Secrets.Written)
	assert.Equal(t, secrets.RecordPaths, second.Secrets.Kept)
	assert.False(t, second.DatabaseCreated)
	assert.Empty(t, second.Migrations)
	assert.Empty(t, second.Configs)
	require.NotNil(t, second.Directory)
	assert.True(t, second.Directory.Skipped)

	caAfter, err := os.ReadFile(h.path("conf", "system", "certificates", "ca", "ca.crt"))
	require.NoError(t, err)
	assert.Equal(t, caBefore, caAfter)

	tablesAfter, _ := h.store.Record(secrets.PathTables)
	assert.Equal(t, tablesBefore["password"], tablesAfter["password"])
	assert.Equal(t, 1, h.idp.count("POST /v2/organizations"))
}

func TestBootstrap_LoadBearingFailureCollectsLogs(t *testing.T) {
	h := newHarness(t)
	h.cfg.Clients.Database = func(connString string) database.Connector {
		return func(ctx context.Context) (database.Admin, error) {
			return nil, errors.New("connection refused")
		}
	}
	var lines []string
	for i := 1; i <= 30; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	h.writeFile(filepath.Join("logs", "tables", "postgres.log"), strings.Join(lines, "\n")+"\n")
	h.writeFile(filepath.Join("logs", "tables", "notes.txt"), "ignored\n")

	res, err := h.sequencer().Bootstrap(context.Background())
	require.Error(t, err)

	var stepErr *resilience.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, component.Tables, stepErr.Step)
	assert.ErrorIs(t, err, database.ErrNotReady)

	var compErr *ComponentError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "wait", compErr.Op)

	require.NotNil(t, res.Report.Failed)
	assert.Equal(t, component.Tables, res.Report.Failed.Name)
	assert.NotContains(t, res.Report.Completed, component.Directory)

	require.Len(t, res.Diagnostics, 1)
	tail := res.Diagnostics[0]
	assert.Equal(t, component.Tables, tail.Component)
	assert.Len(t, tail.Lines, tailLines)
	assert.Equal(t, "line 11", tail.Lines[0])
	assert.Equal(t, "line 30", tail.Lines[tailLines-1])

	prom, err := os.ReadFile(h.path("logs", "system", metrics.TextfileName))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "botstack_bootstrap_success 0")
}

func TestBootstrap_MissingStoreBinary(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Remove(h.path("bin", "secrets", "vault")))

	_, err := h.sequencer().Bootstrap(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreBinaryMissing)
	assert.Zero(t, h.store.Count("Init"))
}

func TestBootstrap_BestEffortFailureIsSkipped(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Remove(h.path("conf", "directory", directory.PATFile)))

	res, err := h.sequencer().Bootstrap(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Report.Skipped, 1)
	assert.Equal(t, component.Directory, res.Report.Skipped[0].Name)
	assert.ErrorIs(t, res.Report.Skipped[0].Err, directory.ErrNoToken)
	assert.Contains(t, res.Report.Completed, component.Drive)
	assert.Contains(t, res.Report.Completed, component.Cache)
}

func TestBootstrap_ExternalDatabase(t *testing.T) {
	h := newHarness(t)
	const url = "postgres://app:pw@db.example.com:5432/app?sslmode=require"
	h.cfg.ExternalDatabaseURL = url

	res, err := h.sequencer().Bootstrap(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{url}, h.dbURLs)
	assert.NoDirExists(t, h.path("bin", "tables"))
	assert.False(t, res.DatabaseCreated)
	_, ok := h.admin.Owner(secrets.DefaultDBName)
	assert.False(t, ok)
	assert.Equal(t, []string{"001_init", "002_users"}, h.admin.Applied(""))
	_, ok = h.admin.RolePassword(DirectoryRole)
	assert.False(t, ok, "directory database is not provisioned on an external server")
	assert.NotContains(t, res.Report.Completed, component.Directory)
	assert.Nil(t, res.Directory)
	assert.Zero(t, h.idp.count("POST "))
}

func TestBootstrap_OptionalConfigs(t *testing.T) {
	h := newHarness(t)
	custom := h.writeFile(filepath.Join("conf", "Caddyfile"), "custom\n")

	res, err := h.sequencer().Bootstrap(context.Background())
	require.NoError(t, err)

	body, err := os.ReadFile(custom)
	require.NoError(t, err)
	assert.Equal(t, "custom\n", string(body))
	assert.NotContains(t, res.Configs, custom)

	for _, rel := range []string{
		"email/config.toml", "dns/Corefile", "vector_db/config.yaml",
		"meet/config.yaml", "monitoring/vector.toml",
	} {
		assert.Contains(t, res.Configs, h.path("conf", filepath.FromSlash(rel)), rel)
	}

	var mail map[string]any
	data, err := os.ReadFile(h.path("conf", "email", "config.toml"))
	require.NoError(t, err)
	require.NoError(t, toml.Unmarshal(data, &mail))
	assert.Contains(t, string(data), h.path("conf", "system", "certificates", "email", "server.crt"))

	var vec struct {
		Service struct {
			HTTPPort  int  `yaml:"http_port"`
			GRPCPort  int  `yaml:"grpc_port"`
			EnableTLS bool `yaml:"enable_tls"`
		} `yaml:"service"`
		TLS struct {
			CACert string `yaml:"ca_cert"`
		} `yaml:"tls"`
	}
	data, err = os.ReadFile(h.path("conf", "vector_db", "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &vec))
	assert.Equal(t, 6333, vec.Service.HTTPPort)
	assert.Equal(t, 6334, vec.Service.GRPCPort)
	assert.True(t, vec.Service.EnableTLS)
	assert.Equal(t, h.path("conf", "system", "certificates", "ca", "ca.crt"), vec.TLS.CACert)

	corefile, err := os.ReadFile(h.path("conf", "dns", "Corefile"))
	require.NoError(t, err)
	assert.Contains(t, string(corefile), "127.0.0.1 vault.botserver.local")

	var meet struct {
		Port int               `yaml:"port"`
		Keys map[string]string `yaml:"keys"`
	}
	data, err = os.ReadFile(h.path("conf", "meet", "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &meet))
	assert.Equal(t, 7880, meet.Port)
	assert.Len(t, meet.Keys, 1)

	again, err := h.sequencer().writeOptionalConfigs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestTailFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\n"), 0644))

	lines, err := tailFile(path, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, lines)

	lines, err = tailFile(path, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, lines)
}
