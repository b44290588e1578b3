// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package database

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
)

// PgAdmin implements Admin over one pgx connection.
type PgAdmin struct {
	conn   *pgx.Conn
	config *pgx.ConnConfig
	logger *slog.Logger
}

var _ Admin = (*PgAdmin)(nil)

// Connect opens an administrative connection.
func Connect(ctx context.Context, connString string, logger *slog.Logger) (*PgAdmin, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &PgAdmin{conn: conn, config: cfg, logger: logger}, nil
}

// PgConnector returns a Connector for connString.
func PgConnector(connString string, logger *slog.Logger) Connector {
	return func(ctx context.Context) (Admin, error) {
		return Connect(ctx, connString, logger)
	}
}

// Ping implements Admin.
func (p *PgAdmin) Ping(ctx context.Context) error { return p.conn.Ping(ctx) }

// DatabaseExists implements Admin.
func (p *PgAdmin) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := p.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("look up database %s: %w", name, err)
	}
	return exists, nil
}

// CreateDatabase implements Admin. A concurrent creation (42P04) is not an
// error.
func (p *PgAdmin) CreateDatabase(ctx context.Context, name, owner string) error {
	stmt := "CREATE DATABASE " + pgx.Identifier{name}.Sanitize()
	if owner != "" {
		stmt += " OWNER " + pgx.Identifier{owner}.Sanitize()
	}
	_, err := p.conn.Exec(ctx, stmt)
	if hasCode(err, codeDuplicateDatabase) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	p.logger.Info("Created database", "database", name, "owner", owner)
	return nil
}

// EnsureRole implements Admin. An existing role keeps its password.
func (p *PgAdmin) EnsureRole(ctx context.Context, name, password string) (bool, error) {
	if err := validIdentifier(name); err != nil {
		return false, err
	}
	stmt := "CREATE ROLE " + pgx.Identifier{name}.Sanitize() + " LOGIN PASSWORD " + quoteLiteral(password)
	_, err := p.conn.Exec(ctx, stmt)
	if hasCode(err, codeDuplicateObject) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create role %s: %w", name, err)
	}
	p.logger.Info("Created role", "role", name)
	return true, nil
}

// ApplyMigrations implements Admin. Each migration runs in its own
// transaction and is recorded in schema_migrations; recorded versions are
// skipped.
func (p *PgAdmin) ApplyMigrations(ctx context.Context, database string, migrations []Migration) ([]string, error) {
	if len(migrations) == 0 {
		return nil, nil
	}
	cfg := p.config.Copy()
	if database != "" {
		cfg.Database = database
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Database, err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations table: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	done, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applied migrations: %w", err)
	}
	seen := make(map[string]bool, len(done))
	for _, v := range done {
		seen[v] = true
	}

	var applied []string
	for _, m := range migrations {
		if seen[m.Version] {
			continue
		}
		err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
			return err
		})
		if err != nil {
			return applied, &MigrationError{File: m.Version + ".sql", Err: err}
		}
		applied = append(applied, m.Version)
	}
	if len(applied) > 0 {
		p.logger.Info("Applied migrations", "database", cfg.Database, "count", len(applied))
	}
	return applied, nil
}

// Close implements Admin.
func (p *PgAdmin) Close(ctx context.Context) error { return p.conn.Close(ctx) }

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// -----------------------------------------------------------------------------
// Connection strings
// -----------------------------------------------------------------------------

// URLOptions adjusts URL output.
type URLOptions struct {
	// Database overrides the record's database.
	Database string

	// SSLMode defaults to "require", or "verify-full" when RootCert is set.
	SSLMode  string
	RootCert string
}

// URL builds a postgres:// connection string from a tables record
// (host, port, database, username, password). Missing fields use the
// stack defaults.
func URL(rec map[string]string, opts URLOptions) string {
	get := func(key, def string) string {
		if v := rec[key]; v != "" {
			return v
		}
		return def
	}
	db := opts.Database
	if db == "" {
		db = get("database", "botserver")
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(get("username", "gbuser"), rec["password"]),
		Host:   net.JoinHostPort(get("host", "localhost"), get("port", "5432")),
		Path:   "/" + db,
	}

	mode := opts.SSLMode
	if mode == "" {
		mode = "require"
		if opts.RootCert != "" {
			mode = "verify-full"
		}
	}
	q := url.Values{}
	q.Set("sslmode", mode)
	if opts.RootCert != "" {
		q.Set("sslrootcert", opts.RootCert)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
