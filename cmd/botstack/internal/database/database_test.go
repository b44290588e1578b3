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
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/resilience"
)

func TestWaitReady_RetriesUntilPing(t *testing.T) {
	admin := NewMemoryAdmin()
	pings := 0
	admin.PingFunc = func(ctx context.Context) error {
		pings++
		if pings < 3 {
			return errors.New("the database system is starting up")
		}
		return nil
	}
	connects := 0
	connect := func(ctx context.Context) (Admin, error) {
		connects++
		return admin, nil
	}

	got, err := WaitReady(context.Background(), connect, ReadyConfig{Attempts: 5, Sleep: resilience.NoSleep})
	require.NoError(t, err)
	assert.Same(t, admin, got)
	assert.Equal(t, 3, connects)
	assert.Equal(t, 2, admin.Closed(), "failed sessions are closed")
}

func TestWaitReady_GivesUp(t *testing.T) {
	connect := func(ctx context.Context) (Admin, error) {
		return nil, errors.New("connection refused")
	}
	_, err := WaitReady(context.Background(), connect, ReadyConfig{Attempts: 4, Sleep: resilience.NoSleep})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestEnsureDatabase_Idempotent(t *testing.T) {
	admin := NewMemoryAdmin()
	ctx := context.Background()

	created, err := EnsureDatabase(ctx, admin, "botserver", "gbuser")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureDatabase(ctx, admin, "botserver", "someone-else")
	require.NoError(t, err)
	assert.False(t, created)

	owner, _ := admin.Owner("botserver")
	assert.Equal(t, "gbuser", owner)

	_, err = EnsureDatabase(ctx, admin, "", "x")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestLoadMigrations_SortedSQLOnly(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"002_users.sql":  "CREATE TABLE users();",
		"001_init.sql":   "CREATE TABLE bots();",
		"README.md":      "docs",
		"010_index.sql":  "CREATE INDEX x ON users();",
		"003_draft.sql~": "backup",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}

	migs, err := LoadMigrations(dir)
	require.NoError(t, err)
	var versions []string
	for _, m := range migs {
		versions = append(versions, m.Version)
	}
	assert.Equal(t, []string{"001_init", "002_users", "010_index"}, versions)
	assert.Equal(t, "CREATE TABLE bots();", migs[0].SQL)

	none, err := LoadMigrations(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryAdmin_MigrationsApplyOnce(t *testing.T) {
	admin := NewMemoryAdmin()
	migs := []Migration{{Version: "001"}, {Version: "002"}}

	applied, err := admin.ApplyMigrations(context.Background(), "botserver", migs)
	require.NoError(t, err)
	assert.Equal(t, []string{"001", "002"}, applied)

	applied, err = admin.ApplyMigrations(context.Background(), "botserver", append(migs, Migration{Version: "003"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"003"}, applied)
}

func TestHasCode(t *testing.T) {
	err := &pgconn.PgError{Code: "42P04", Message: "database \"botserver\" already exists"}
	assert.True(t, hasCode(err, codeDuplicateDatabase))
	assert.True(t, hasCode(&MigrationError{File: "x.sql", Err: err}, codeDuplicateDatabase))
	assert.False(t, hasCode(err, codeDuplicateObject))
	assert.False(t, hasCode(errors.New("42P04"), codeDuplicateDatabase))
}

func TestURL(t *testing.T) {
	rec := map[string]string{
		"host":     "localhost",
		"port":     "5432",
		"database": "botserver",
		"username": "gbuser",
		"password": "p@ss/word",
	}

	raw := URL(rec, URLOptions{RootCert: "/certs/ca.crt"})
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "localhost:5432", u.Host)
	assert.Equal(t, "/botserver", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss/word", pw)
	assert.Equal(t, "verify-full", u.Query().Get("sslmode"))
	assert.Equal(t, "/certs/ca.crt", u.Query().Get("sslrootcert"))

	assert.Contains(t, URL(map[string]string{}, URLOptions{Database: "zitadel"}), "gbuser:@localhost:5432/zitadel?sslmode=require")
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, `'it''s'`, quoteLiteral("it's"))
}
