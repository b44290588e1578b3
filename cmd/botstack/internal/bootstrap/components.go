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
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/certs"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/component"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/database"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/directory"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/installer"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/readiness"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/secrets"
)

// -----------------------------------------------------------------------------
// Certificates and store configuration
// -----------------------------------------------------------------------------

// certConsumers get a copy of the certificate tree in container mode.
var certConsumers = []string{
	component.Secrets, component.Tables, component.Directory, component.Drive,
	component.Cache, component.LLM, component.VectorDB, component.Email,
	component.Proxy, component.Meet,
}

func (s *Sequencer) ensureCertificates() (*certs.Report, error) {
	report, err := s.authority.Ensure()
	if err != nil {
		return report, err
	}
	if _, ok := s.inst.(hostDirs); !ok {
		return report, nil
	}
	for _, name := range certConsumers {
		dst := filepath.Join(s.hostConf(name), "system", "certificates")
		if err := mirrorTree(s.certDir(), dst); err != nil {
			return report, fmt.Errorf("copy certificates for %s: %w", name, err)
		}
	}
	return report, nil
}

// mirrorTree copies files from src into dst, keeping modes. Existing files
// in dst are replaced.
func mirrorTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, data, info.Mode().Perm()); err != nil {
			return err
		}
		return os.Chmod(target, info.Mode().Perm())
	})
}

const storeConfigTemplate = `storage "file" {
  path = %q
}

listener "tcp" {
  address            = "0.0.0.0:%d"
  tls_cert_file      = %q
  tls_key_file       = %q
  tls_client_ca_file = %q
}

api_addr      = %q
disable_mlock = true
ui            = false
`

// writeStoreConfig writes the store's config.hcl unless it exists. Stale
// unseal material from a removed stack is cleared first, since the config
// file itself counts as evidence of an installation.
func (s *Sequencer) writeStoreConfig(ctx context.Context) (string, error) {
	rec := s.recovery(ctx)
	if !rec.Installed() && (fileExists(s.bundlePath()) || fileExists(s.cfg.EnvPath)) {
		if err := rec.Recover(ctx, errors.New("no secrets store installed")); err != nil {
			return "", err
		}
	}

	path := filepath.Join(s.hostConf(component.Secrets), "vault", "config.hcl")
	if fileExists(path) {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	paths := s.inst.Paths(component.Secrets)
	body := fmt.Sprintf(storeConfigTemplate,
		filepath.Join(paths.Data, "vault"),
		component.SecretsPort,
		s.certPath(component.Secrets, "vault", "server.crt"),
		s.certPath(component.Secrets, "vault", "server.key"),
		s.certPath(component.Secrets, "ca", "ca.crt"),
		s.cfg.StoreAddr,
	)
	if err := os.WriteFile(path, []byte(body), 0640); err != nil {
		return "", err
	}
	s.logger.Info("Wrote secrets store configuration", "path", path)
	return path, nil
}

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// bringUpStore starts the store and runs the lifecycle. With install set
// a missing store is installed first.
func (s *Sequencer) bringUpStore(ctx context.Context, seed secrets.Seed, install bool) (*secrets.RunResult, error) {
	name := component.Secrets
	if install {
		if err := s.ensureInstalled(ctx, name, nil); err != nil {
			return nil, err
		}
	}
	if s.inst.Mode() == installer.Local {
		d := s.registry.MustGet(name)
		if d.BinaryName != "" && !fileExists(filepath.Join(s.inst.Paths(name).Bin, d.BinaryName)) {
			return nil, componentErr(name, "check", ErrStoreBinaryMissing)
		}
	}
	if err := s.inst.Start(ctx, name, nil); err != nil {
		return nil, componentErr(name, "start", err)
	}

	clientCert, clientKey := s.authority.ClientPaths()
	if !fileExists(clientCert) || !fileExists(clientKey) {
		clientCert, clientKey = "", ""
	}
	store, err := s.cfg.Clients.Store(secrets.VaultConfig{
		Addr:       s.cfg.StoreAddr,
		CACert:     s.authority.CACertPath(),
		ClientCert: clientCert,
		ClientKey:  clientKey,
	})
	if err != nil {
		return nil, componentErr(name, "connect", err)
	}

	life := &secrets.Lifecycle{
		Store:        store,
		BundlePath:   s.bundlePath(),
		EnvPath:      s.cfg.EnvPath,
		Addr:         s.cfg.StoreAddr,
		CACert:       s.authority.CACertPath(),
		ClientCert:   clientCert,
		ClientKey:    clientKey,
		CacheTTL:     s.cfg.CacheTTL,
		KeyShares:    s.cfg.KeyShares,
		KeyThreshold: s.cfg.KeyThreshold,
		SettleDelay:  secrets.DefaultSettleDelay,
		Sleep:        s.cfg.Sleep,
		Logger:       s.logger,
	}
	run, err := life.RunWithRecovery(ctx, seed, s.recovery(ctx))
	if err != nil {
		s.recorder.SetComponentReady(name, false)
		return run, err
	}

	s.store = store
	s.creds = run.Credentials
	s.resolver = secrets.NewResolver(store, run.Credentials)
	s.recorder.SetComponentReady(name, true)
	return run, nil
}

func (s *Sequencer) recoveryInstalled(ctx context.Context) func() bool {
	if s.inst.Mode() == installer.Local {
		return nil
	}
	return func() bool {
		// Host directories outlive a removed container.
		if h, ok := s.inst.(hostDirs); ok {
			if fileExists(filepath.Join(h.HostDir(component.Secrets, "conf"), "vault", "config.hcl")) {
				return true
			}
			if entries, err := os.ReadDir(h.HostDir(component.Secrets, "data")); err == nil && len(entries) > 0 {
				return true
			}
		}
		ok, err := s.inst.IsInstalled(ctx, component.Secrets)
		// An unknown state is treated as installed so nothing is deleted.
		return ok || err != nil
	}
}

// -----------------------------------------------------------------------------
// Database
// -----------------------------------------------------------------------------

// connectDatabase waits for the database and returns an admin session on
// the maintenance database.
func (s *Sequencer) connectDatabase(ctx context.Context) (database.Admin, map[string]string, error) {
	var url string
	var rec map[string]string
	if s.External() {
		url = s.cfg.ExternalDatabaseURL
	} else {
		var err error
		rec, err = s.record(ctx, secrets.PathTables)
		if err != nil {
			return nil, nil, err
		}
		url = database.URL(rec, database.URLOptions{
			Database: "postgres",
			RootCert: s.authority.CACertPath(),
		})
	}
	admin, err := database.WaitReady(ctx, s.cfg.Clients.Database(url), database.ReadyConfig{
		Attempts: s.cfg.ReadyAttempts,
		Interval: s.cfg.ReadyInterval,
		Sleep:    s.cfg.Sleep,
		Logger:   s.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return admin, rec, nil
}

func (s *Sequencer) bringUpTables(ctx context.Context, res *Result) error {
	name := component.Tables
	if !s.External() {
		if err := s.ensureInstalled(ctx, name, s.env()); err != nil {
			return err
		}
		if err := s.inst.Start(ctx, name, s.env()); err != nil {
			return componentErr(name, "start", err)
		}
	} else {
		s.logger.Info("Using external database; tables is not installed")
	}

	admin, rec, err := s.connectDatabase(ctx)
	if err != nil {
		s.recorder.SetComponentReady(name, false)
		return componentErr(name, "wait", err)
	}
	defer admin.Close(ctx)
	s.recorder.SetComponentReady(name, true)

	target := ""
	if !s.External() {
		created, err := database.EnsureDatabase(ctx, admin, s.cfg.DatabaseName, s.cfg.DatabaseOwner)
		if err != nil {
			return componentErr(name, "create database", err)
		}
		res.DatabaseCreated = created
		target = s.cfg.DatabaseName
	}

	migrations, err := database.LoadMigrations(s.cfg.MigrationsDir)
	if err != nil {
		return componentErr(name, "load migrations", err)
	}
	applied, err := admin.ApplyMigrations(ctx, target, migrations)
	res.Migrations = applied
	if err != nil {
		return componentErr(name, "migrate", err)
	}

	if s.External() {
		return nil
	}
	written, err := s.prepareDirectory(ctx, admin, rec)
	res.Configs = append(res.Configs, written...)
	return err
}

// prepareDirectory creates the identity provider's role and database and
// writes its configuration files.
func (s *Sequencer) prepareDirectory(ctx context.Context, admin database.Admin, tables map[string]string) ([]string, error) {
	rec, err := s.record(ctx, secrets.PathDirectory)
	if err != nil {
		return nil, err
	}
	password := rec["db_password"]
	if password == "" {
		password = secrets.GeneratePassword(32)
		rec["db_password"] = password
		if err := s.store.Put(ctx, secrets.PathDirectory, rec); err != nil {
			return nil, componentErr(component.Directory, "store database password", err)
		}
		s.resolver.Invalidate(secrets.PathDirectory)
	}

	if _, err := admin.EnsureRole(ctx, DirectoryRole, password); err != nil {
		return nil, componentErr(component.Directory, "create role", err)
	}
	if _, err := database.EnsureDatabase(ctx, admin, DirectoryDatabase, DirectoryRole); err != nil {
		return nil, componentErr(component.Directory, "create database", err)
	}

	port, _ := strconv.Atoi(tables["port"])
	written, err := directory.WriteConfig(directory.ConfigOptions{
		Dir:           filepath.Join(s.hostConf(component.Directory), "directory"),
		Port:          component.DirectoryPort,
		DBHost:        tables["host"],
		DBPort:        port,
		DBName:        DirectoryDatabase,
		DBUser:        DirectoryRole,
		DBPassword:    password,
		AdminUser:     tables["username"],
		AdminPassword: tables["password"],
		CACert:        s.certPath(component.Directory, "ca", "ca.crt"),
	})
	if err != nil {
		return written, componentErr(component.Directory, "write config", err)
	}
	return written, nil
}

// -----------------------------------------------------------------------------
// Directory
// -----------------------------------------------------------------------------

func (s *Sequencer) bringUpDirectory(ctx context.Context, res *Result) error {
	name := component.Directory
	if err := s.ensureInstalled(ctx, name, s.env()); err != nil {
		return err
	}
	if err := s.inst.Start(ctx, name, s.env()); err != nil {
		return componentErr(name, "start", err)
	}

	client, err := s.directoryClient()
	if err != nil {
		return componentErr(name, "tls", err)
	}
	p := &directory.Provisioner{
		BaseURL: s.cfg.DirectoryURL,
		HTTP:    client,
		Dir:     filepath.Join(s.hostConf(name), "directory"),
		Store:   s.store,
		Sleep:   s.cfg.Sleep,
		Logger:  s.logger,
	}
	if err := p.WaitReady(ctx); err != nil {
		s.recorder.SetComponentReady(name, false)
		return componentErr(name, "wait", err)
	}
	s.recorder.SetComponentReady(name, true)

	out, err := p.Provision(ctx)
	if err != nil {
		return componentErr(name, "provision", err)
	}
	res.Directory = out
	s.resolver.Invalidate(secrets.PathDirectory)
	return nil
}

func (s *Sequencer) directoryClient() (*http.Client, error) {
	if s.cfg.Clients.Directory != nil {
		return s.cfg.Clients.Directory, nil
	}
	tlsCfg, err := certs.ClientTLSConfig(s.authority.CACertPath(), "", "")
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
	}, nil
}

// -----------------------------------------------------------------------------
// Other components
// -----------------------------------------------------------------------------

// bringUp installs and starts name, then waits for it when a probe exists.
func (s *Sequencer) bringUp(ctx context.Context, name string) error {
	if err := s.ensureInstalled(ctx, name, s.env()); err != nil {
		return err
	}
	if err := s.inst.Start(ctx, name, s.env()); err != nil {
		return componentErr(name, "start", err)
	}
	return s.probe(ctx, name)
}

// probe runs the readiness check for drive and cache. Other components
// have none.
func (s *Sequencer) probe(ctx context.Context, name string) error {
	var err error
	switch name {
	case component.Drive:
		err = s.waitDrive(ctx)
	case component.Cache:
		err = s.waitCache(ctx)
	default:
		return nil
	}
	s.recorder.SetComponentReady(name, err == nil)
	return componentErr(name, "wait", err)
}

func (s *Sequencer) waitDrive(ctx context.Context) error {
	rec, err := s.record(ctx, secrets.PathDrive)
	if err != nil {
		return err
	}
	tlsCfg, err := certs.ClientTLSConfig(s.authority.CACertPath(), "", "")
	if err != nil {
		return err
	}
	client, err := s.cfg.Clients.Drive(ctx, readiness.DriveOptions{
		Endpoint:  s.cfg.DriveEndpoint,
		AccessKey: rec["accesskey"],
		SecretKey: rec["secret"],
		TLS:       tlsCfg,
	})
	if err != nil {
		return err
	}
	probe := &readiness.DriveProbe{
		Client:   client,
		Attempts: s.cfg.ReadyAttempts,
		Interval: s.cfg.ReadyInterval,
		Sleep:    s.cfg.Sleep,
		Logger:   s.logger,
	}
	if _, err := probe.Wait(ctx); err != nil {
		return err
	}
	s.drive = client
	return nil
}

// uploadTemplates copies bot templates into the object store. It does
// nothing until the drive probe has succeeded in this run.
func (s *Sequencer) uploadTemplates(ctx context.Context) (readiness.TemplateUpload, error) {
	if s.drive == nil {
		s.logger.Debug("Object store not ready; skipping template upload")
		return readiness.TemplateUpload{}, nil
	}
	return readiness.UploadTemplates(ctx, s.drive, s.cfg.TemplatesDir, s.logger)
}

func (s *Sequencer) waitCache(ctx context.Context) error {
	rec, err := s.record(ctx, secrets.PathCache)
	if err != nil {
		return err
	}
	tlsCfg, err := certs.ClientTLSConfig(s.authority.CACertPath(), "", "")
	if err != nil {
		return err
	}
	client := s.cfg.Clients.Cache(readiness.CacheOptions{
		Addr:     s.cfg.CacheAddr,
		Password: rec["password"],
		TLS:      tlsCfg,
	})
	defer client.Close()

	probe := &readiness.CacheProbe{
		Client:   client,
		Attempts: s.cfg.ReadyAttempts,
		Interval: s.cfg.ReadyInterval,
		Sleep:    s.cfg.Sleep,
		Logger:   s.logger,
	}
	return probe.Wait(ctx)
}
