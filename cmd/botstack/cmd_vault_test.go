// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/secrets"
)

// useStore points the env file at an unsealed in-memory store.
func (e *cliEnv) useStore(t *testing.T) *secrets.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := secrets.NewMemoryStore()
	b := store.Preload(1, 1)
	_, err := store.Unseal(ctx, b.UnsealKeysB64[0])
	require.NoError(t, err)
	store.SetToken(b.RootToken)
	require.NoError(t, store.EnableKV(ctx))

	env := "VAULT_ADDR=https://localhost:8200\nVAULT_TOKEN=" + b.RootToken + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, ".env"), []byte(env), 0600))

	prev := newStore
	newStore = func(cfg secrets.VaultConfig) (secrets.Store, error) {
		assert.Equal(t, "https://localhost:8200", cfg.Addr)
		return store, nil
	}
	t.Cleanup(func() { newStore = prev })
	return store
}

func TestVault_NotConfigured(t *testing.T) {
	e := newCLIEnv(t)
	code, _, errOut := e.run(t, "vault", "list")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "secrets store not configured")
	assert.Contains(t, errOut, "botstack bootstrap")
}

func TestVault_PutMergesAndGetMasks(t *testing.T) {
	e := newCLIEnv(t)
	store := e.useStore(t)
	require.NoError(t, store.Put(context.Background(), secrets.PathEmail, map[string]string{"server": "smtp.local"}))

	code, out, errOut := e.run(t, "vault", "put", secrets.PathEmail, "username=mailer", "password=hunter22")
	require.Equal(t, exitOK, code, errOut)
	assert.Equal(t, "OK: Stored 2 field(s) at gbo/email\n", out)

	rec, _ := store.Record(secrets.PathEmail)
	assert.Equal(t, map[string]string{"server": "smtp.local", "username": "mailer", "password": "hunter22"}, rec)

	code, out, _ = e.run(t, "vault", "get", secrets.PathEmail)
	require.Equal(t, exitOK, code)
	assert.Equal(t, "password=hunt...\nserver=smtp.local\nusername=mailer\n", out)

	code, out, _ = e.run(t, "vault", "get", secrets.PathEmail, "--reveal")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "password=hunter22\n")

	code, out, _ = e.run(t, "vault", "get", secrets.PathEmail, "password")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "hunter22\n", out)

	code, _, errOut = e.run(t, "vault", "get", secrets.PathEmail, "port")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, `has no field "port"`)
}

func TestVault_PutUsage(t *testing.T) {
	e := newCLIEnv(t)
	e.useStore(t)

	code, _, errOut := e.run(t, "vault", "put", secrets.PathEmail)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "expects at least 2 argument(s)")

	code, _, errOut = e.run(t, "vault", "put", secrets.PathEmail, "novalue")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "no key=value pairs")
}

func TestVault_List(t *testing.T) {
	e := newCLIEnv(t)
	store := e.useStore(t)
	require.NoError(t, store.Put(context.Background(), secrets.PathTables, map[string]string{"password": "pw"}))

	code, out, errOut := e.run(t, "vault", "list")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "gbo/tables\tdatabase connection\tyes\n")
	assert.Contains(t, out, "gbo/stripe\tpayment provider keys\tno\n")
}

func TestVault_Health(t *testing.T) {
	e := newCLIEnv(t)
	store := e.useStore(t)

	code, out, errOut := e.run(t, "vault", "health")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "Secrets store healthy")

	store.Seal()
	code, _, errOut = e.run(t, "vault", "health")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "sealed")
}

func TestVault_Migrate(t *testing.T) {
	e := newCLIEnv(t)
	store := e.useStore(t)
	legacy := filepath.Join(e.dir, "legacy.env")
	require.NoError(t, os.WriteFile(legacy, []byte("TABLES_PASSWORD=pw\nDRIVE_ACCESSKEY=ak\nDRIVE_SECRET=sk\n"), 0600))

	code, out, errOut := e.run(t, "vault", "migrate", legacy)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "OK: Migrated gbo/tables\n")
	assert.Contains(t, out, "OK: Migrated gbo/drive\n")

	drive, _ := store.Record(secrets.PathDrive)
	assert.Equal(t, map[string]string{"accesskey": "ak", "secret": "sk"}, drive)

	code, _, errOut = e.run(t, "vault", "migrate")
	require.Equal(t, exitOK, code)
	assert.Contains(t, errOut, "No service credentials found")
}

func TestRotateSecret(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		stdin   string
		written bool
	}{
		{"confirmed", nil, "y\n", true},
		{"declined", nil, "n\n", false},
		{"no input", nil, "", false},
		{"yes flag", []string{"--yes"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newCLIEnv(t)
			store := e.useStore(t)
			require.NoError(t, store.Put(context.Background(), secrets.PathCache, map[string]string{"host": "localhost", "password": "old"}))
			e.stdin = tt.stdin

			code, out, errOut := e.run(t, append([]string{"rotate-secret", "cache"}, tt.args...)...)
			require.Equal(t, exitOK, code, errOut)
			assert.Contains(t, out, "valkey-cli CONFIG SET requirepass")

			rec, _ := store.Record(secrets.PathCache)
			assert.Equal(t, "localhost", rec["host"])
			if tt.written {
				assert.NotEqual(t, "old", rec["password"])
				assert.Len(t, rec["password"], 32)
				assert.Contains(t, out, "OK: cache credentials saved")
			} else {
				assert.Equal(t, "old", rec["password"])
				assert.Contains(t, errOut, "Aborted")
			}
		})
	}
}

func TestRotateSecret_EncryptionNeedsPhrase(t *testing.T) {
	e := newCLIEnv(t)
	store := e.useStore(t)

	e.stdin = "y\n"
	code, out, _ := e.run(t, "rotate-secret", "encryption")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "Type ROTATE to confirm")
	_, ok := store.Record(secrets.PathEncryption)
	assert.False(t, ok)

	e.stdin = "ROTATE\n"
	code, _, _ = e.run(t, "rotate-secret", "encryption")
	require.Equal(t, exitOK, code)
	rec, ok := store.Record(secrets.PathEncryption)
	require.True(t, ok)
	assert.Len(t, rec["master_key"], 64)
}

func TestRotateSecret_UnknownComponent(t *testing.T) {
	e := newCLIEnv(t)
	e.useStore(t)

	code, _, errOut := e.run(t, "rotate-secret", "vector_db")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "valid: cache, directory")
}

func TestRotateSecrets_All(t *testing.T) {
	e := newCLIEnv(t)
	store := e.useStore(t)

	code, _, errOut := e.run(t, "rotate-secrets")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "requires --all")

	e.stdin = "y\n"
	code, _, _ = e.run(t, "rotate-secrets", "--all")
	require.Equal(t, exitOK, code)
	assert.Zero(t, store.Count("Put "+secrets.PathTables), "y is not the ROTATE ALL phrase")

	e.stdin = "ROTATE ALL\n"
	code, out, errOut := e.run(t, "rotate-secrets", "--all")
	require.Equal(t, exitOK, code, errOut)
	for _, name := range secrets.RotateAllComponents {
		assert.Contains(t, out, "OK: "+name+" credentials saved")
	}
	_, ok := store.Record(secrets.PathEncryption)
	assert.False(t, ok, "encryption key is rotated on its own")
}
