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
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/component"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/database"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/installer"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/readiness"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/resilience"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/secrets"
)

// Defaults applied by New.
const (
	DefaultStoreAddr     = "https://localhost:8200"
	DefaultDirectoryURL  = "https://localhost:8080"
	DefaultDriveEndpoint = readiness.DefaultDriveEndpoint
	DefaultCacheAddr     = readiness.DefaultCacheAddr
	DefaultReadyAttempts = 30
	DirectoryDatabase    = "zitadel"
	DirectoryRole        = "zitadel"
)

// CacheClient is a cache connection the sequencer closes after probing.
type CacheClient interface {
	readiness.Pinger
	Close() error
}

// Clients construct network clients. Nil fields use the real
// implementations; tests replace them with in-memory fakes.
type Clients struct {
	Store     func(cfg secrets.VaultConfig) (secrets.Store, error)
	Database  func(connString string) database.Connector
	Drive     func(ctx context.Context, opts readiness.DriveOptions) (readiness.BucketAPI, error)
	Cache     func(opts readiness.CacheOptions) CacheClient
	Directory *http.Client
}

// Config configures a Sequencer.
type Config struct {
	// StackPath is the stack root. Required.
	StackPath string

	// Installer performs installs and starts in the chosen mode. Required.
	Installer installer.Installer

	// Registry must be the registry the installer was built with.
	Registry *component.Registry

	// EnvPath receives VAULT_* entries. Default <cwd>/.env.
	EnvPath string

	StoreAddr    string
	KeyShares    int
	KeyThreshold int
	CacheTTL     int

	// DatabaseName is the application database, owned by DatabaseOwner.
	DatabaseName  string
	DatabaseOwner string

	// MigrationsDir holds *.sql files applied to DatabaseName.
	MigrationsDir string

	// TemplatesDir holds <bot>.gbai directories uploaded to the object
	// store once it is ready.
	TemplatesDir string

	// ExternalDatabaseURL switches to an externally managed database:
	// tables is neither installed nor started, only migrations run.
	ExternalDatabaseURL string

	DirectoryURL  string
	DriveEndpoint string
	CacheAddr     string

	// Ready bounds the database, drive and cache waits. Directory uses
	// its own 60 attempt default.
	ReadyAttempts int
	ReadyInterval time.Duration

	Clients Clients

	Sleep  resilience.SleepFunc
	Now    func() time.Time
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.EnvPath == "" {
		wd, _ := os.Getwd()
		c.EnvPath = filepath.Join(wd, ".env")
	}
	if c.StoreAddr == "" {
		c.StoreAddr = DefaultStoreAddr
	}
	if c.KeyShares <= 0 {
		c.KeyShares = secrets.DefaultKeyShares
	}
	if c.KeyThreshold <= 0 {
		c.KeyThreshold = secrets.DefaultKeyThreshold
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = secrets.DefaultCacheTTL
	}
	if c.DatabaseName == "" {
		c.DatabaseName = secrets.DefaultDBName
	}
	if c.DatabaseOwner == "" {
		c.DatabaseOwner = secrets.DefaultDBUser
	}
	if c.MigrationsDir == "" {
		wd, _ := os.Getwd()
		c.MigrationsDir = filepath.Join(wd, "migrations")
	}
	if c.TemplatesDir == "" {
		wd, _ := os.Getwd()
		c.TemplatesDir = filepath.Join(wd, "templates")
	}
	if c.ExternalDatabaseURL == "" {
		c.ExternalDatabaseURL = externalURLFromEnv()
	}
	if c.DirectoryURL == "" {
		c.DirectoryURL = DefaultDirectoryURL
	}
	if c.DriveEndpoint == "" {
		c.DriveEndpoint = DefaultDriveEndpoint
	}
	if c.CacheAddr == "" {
		c.CacheAddr = DefaultCacheAddr
	}
	if c.ReadyAttempts <= 0 {
		c.ReadyAttempts = DefaultReadyAttempts
	}
	if c.ReadyInterval <= 0 {
		c.ReadyInterval = time.Second
	}
	if c.Sleep == nil {
		c.Sleep = resilience.SleepContext
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.Clients.defaults(c.Logger)
}

func (c *Clients) defaults(logger *slog.Logger) {
	if c.Store == nil {
		c.Store = func(cfg secrets.VaultConfig) (secrets.Store, error) {
			store, err := secrets.NewVaultStore(cfg)
			if err != nil {
				return nil, err
			}
			return store, nil
		}
	}
	if c.Database == nil {
		c.Database = func(connString string) database.Connector {
			return database.PgConnector(connString, logger)
		}
	}
	if c.Drive == nil {
		c.Drive = func(ctx context.Context, opts readiness.DriveOptions) (readiness.BucketAPI, error) {
			client, err := readiness.NewDriveClient(ctx, opts)
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}
	if c.Cache == nil {
		c.Cache = func(opts readiness.CacheOptions) CacheClient {
			return readiness.NewCacheClient(opts)
		}
	}
}

// externalURLFromEnv builds a connection URL when TABLES_SERVER names an
// externally managed database.
func externalURLFromEnv() string {
	host := os.Getenv("TABLES_SERVER")
	if host == "" {
		return ""
	}
	rec := map[string]string{
		"host":     host,
		"port":     envOr("TABLES_PORT", strconv.Itoa(secrets.DefaultDBPort)),
		"database": envOr("TABLES_DATABASE", secrets.DefaultDBName),
		"username": envOr("TABLES_USERNAME", secrets.DefaultDBUser),
		"password": os.Getenv("TABLES_PASSWORD"),
	}
	return database.URL(rec, database.URLOptions{})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
