// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package certs

import (
	"crypto/x509"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthority(t *testing.T, services ...string) *Authority {
	t.Helper()
	a := NewAuthority(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if len(services) > 0 {
		a.Services = services
	}
	return a
}

func readCert(t *testing.T, path string) *x509.Certificate {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cert, err := parseCert(data)
	require.NoError(t, err)
	return cert
}

func snapshot(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	files := map[string][]byte{}
	require.NoError(t, filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		files[path] = data
		return err
	}))
	return files
}

func TestEnsure_GeneratesFullSet(t *testing.T) {
	a := newTestAuthority(t)

	report, err := a.Ensure()
	require.NoError(t, err)
	assert.Empty(t, report.Reused)

	ca := readCert(t, a.CACertPath())
	assert.True(t, ca.IsCA)
	assert.Equal(t, "BotServer Root CA", ca.Subject.CommonName)
	assert.Equal(t, []string{"BotServer Internal CA"}, ca.Subject.Organization)
	assert.Equal(t, []string{"BR"}, ca.Subject.Country)

	for _, svc := range DefaultServices {
		certPath, keyPath := a.ServerPaths(svc)
		assert.FileExists(t, certPath, svc)
		assert.FileExists(t, keyPath, svc)
		assert.FileExists(t, filepath.Join(a.Dir, svc, "ca.crt"), svc)
	}
	assert.Contains(t, report.Created, filepath.Join("ca", "ca.crt"))
	assert.Contains(t, report.Created, filepath.Join("botserver", "client.crt"))
}

func TestEnsure_FilePermissions(t *testing.T) {
	a := newTestAuthority(t, "vault")
	_, err := a.Ensure()
	require.NoError(t, err)

	certPath, keyPath := a.ServerPaths("vault")
	for path, want := range map[string]os.FileMode{
		a.CAKeyPath():  0600,
		a.CACertPath(): 0644,
		keyPath:        0600,
		certPath:       0644,
	} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, want, info.Mode().Perm(), path)
	}
}

func TestEnsure_ServerLeafNames(t *testing.T) {
	a := newTestAuthority(t, "minio")
	_, err := a.Ensure()
	require.NoError(t, err)

	certPath, _ := a.ServerPaths("minio")
	leaf := readCert(t, certPath)
	assert.Equal(t, "minio.botserver.local", leaf.Subject.CommonName)
	assert.ElementsMatch(t, []string{"localhost", "minio", "minio.botserver.local"}, leaf.DNSNames)
	require.Len(t, leaf.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", leaf.IPAddresses[0].String())
	assert.Contains(t, leaf.ExtKeyUsage, x509.ExtKeyUsageServerAuth)

	pool := x509.NewCertPool()
	pool.AddCert(readCert(t, a.CACertPath()))
	_, err = leaf.Verify(x509.VerifyOptions{DNSName: "minio.botserver.local", Roots: pool})
	assert.NoError(t, err)
}

func TestEnsure_ClientCertificate(t *testing.T) {
	a := newTestAuthority(t, "vault")
	_, err := a.Ensure()
	require.NoError(t, err)

	certPath, _ := a.ClientPaths()
	client := readCert(t, certPath)
	assert.Equal(t, "botserver", client.Subject.CommonName)
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, client.ExtKeyUsage)

	cfg, err := a.ClientTLS()
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.NotNil(t, cfg.RootCAs)
}

func TestEnsure_SecondRunIsByteIdentical(t *testing.T) {
	a := newTestAuthority(t, "vault", "postgres")
	_, err := a.Ensure()
	require.NoError(t, err)
	before := snapshot(t, a.Dir)

	again := newTestAuthority(t, "vault", "postgres")
	again.Dir = a.Dir
	report, err := again.Ensure()
	require.NoError(t, err)

	assert.Empty(t, report.Created)
	assert.Equal(t, before, snapshot(t, a.Dir))
}

func TestEnsure_NewServiceSignedByExistingCA(t *testing.T) {
	a := newTestAuthority(t, "vault")
	_, err := a.Ensure()
	require.NoError(t, err)
	caBefore, err := os.ReadFile(a.CACertPath())
	require.NoError(t, err)

	a.Services = []string{"vault", "qdrant"}
	report, err := a.Ensure()
	require.NoError(t, err)

	caAfter, err := os.ReadFile(a.CACertPath())
	require.NoError(t, err)
	assert.Equal(t, caBefore, caAfter)
	assert.Equal(t, []string{filepath.Join("qdrant", "server.crt"), filepath.Join("qdrant", "ca.crt")}, report.Created)

	certPath, _ := a.ServerPaths("qdrant")
	leaf := readCert(t, certPath)
	assert.NoError(t, leaf.CheckSignatureFrom(readCert(t, a.CACertPath())))
}

func TestEnsure_IncompleteCA(t *testing.T) {
	tests := []struct {
		name string
		keep string
	}{
		{"cert only", "ca.crt"},
		{"key only", "ca.key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAuthority(t, "vault")
			_, err := a.Ensure()
			require.NoError(t, err)

			drop := a.CAKeyPath()
			if tt.keep == "ca.key" {
				drop = a.CACertPath()
			}
			require.NoError(t, os.Remove(drop))
			kept := filepath.Join(a.Dir, "ca", tt.keep)
			before, err := os.ReadFile(kept)
			require.NoError(t, err)

			_, err = a.Ensure()
			assert.ErrorIs(t, err, ErrIncompleteCA)

			after, err := os.ReadFile(kept)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.NoFileExists(t, drop)
		})
	}
}

func TestEnsure_MismatchedCAKey(t *testing.T) {
	a := newTestAuthority(t, "vault")
	_, err := a.Ensure()
	require.NoError(t, err)

	other := newTestAuthority(t, "vault")
	_, err = other.Ensure()
	require.NoError(t, err)
	key, err := os.ReadFile(other.CAKeyPath())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(a.CAKeyPath(), key, 0600))

	_, err = a.Ensure()
	assert.Error(t, err)
}

func TestClientTLSConfig_InvalidCA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.crt")
	require.NoError(t, os.WriteFile(path, []byte("not pem"), 0644))

	_, err := ClientTLSConfig(path, "", "")
	assert.ErrorIs(t, err, ErrInvalidPEM)
}
