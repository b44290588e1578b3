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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyArtifact(t *testing.T) {
	tests := map[string]ArtifactKind{
		"postgresql-18.0.0.tar.gz": KindTarGz,
		"coredns_1.11.1.tgz":       KindTarGz,
		"vault_1.15.4.zip":         KindZip,
		"minio":                    KindBinary,
		"caddy_2.7.6_linux_amd64":  KindBinary,
	}
	for name, want := range tests {
		assert.Equal(t, want, ClassifyArtifact(name), name)
	}
}

func TestCommonTopLevel(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  string
	}{
		{"single dir", []string{"pg", "pg/bin", "pg/bin/postgres"}, "pg"},
		{"files only under dir", []string{"pg/bin/postgres", "pg/lib/x.so"}, "pg"},
		{"two roots", []string{"a/x", "b/y"}, ""},
		{"flat files", []string{"coredns"}, ""},
		{"file plus dir", []string{"README", "bin/tool"}, ""},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, commonTopLevel(tt.names))
		})
	}
}

func TestExtractTarGz_StripsSingleTopLevel(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pkg.tar.gz")
	data := buildTarGz(t, []archiveEntry{
		{name: "pkg-1.0/", dir: true},
		{name: "pkg-1.0/bin/", dir: true},
		{name: "pkg-1.0/bin/tool", body: "#!/bin/sh\n", mode: 0755},
		{name: "pkg-1.0/share/readme.txt", body: "hi"},
	})
	require.NoError(t, os.WriteFile(src, data, 0644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, ExtractTarGz(src, dest))

	info, err := os.Stat(filepath.Join(dest, "bin", "tool"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	body, err := os.ReadFile(filepath.Join(dest, "share", "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(body))

	_, err = os.Stat(filepath.Join(dest, "pkg-1.0"))
	assert.True(t, os.IsNotExist(err), "top-level directory should be stripped")
}

func TestExtractTarGz_KeepsMixedRoots(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "flat.tgz")
	data := buildTarGz(t, []archiveEntry{
		{name: "coredns", body: "bin", mode: 0755},
		{name: "LICENSE", body: "text"},
	})
	require.NoError(t, os.WriteFile(src, data, 0644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, ExtractTarGz(src, dest))

	assert.FileExists(t, filepath.Join(dest, "coredns"))
	assert.FileExists(t, filepath.Join(dest, "LICENSE"))
}

func TestExtractTarGz_TraversalContained(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.tar.gz")
	data := buildTarGz(t, []archiveEntry{
		{name: "../../escape.txt", body: "x"},
		{name: "ok.txt", body: "y"},
	})
	require.NoError(t, os.WriteFile(src, data, 0644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, ExtractTarGz(src, dest))

	_, err := os.Stat(filepath.Join(dir, "escape.txt"))
	assert.True(t, os.IsNotExist(err), "entry must not escape destination")
	assert.FileExists(t, filepath.Join(dest, "escape.txt"))
}

func TestExtractZip_ChmodsExecutables(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "vault.zip")
	data := buildZip(t, []archiveEntry{
		{name: "vault", body: "elf"},
		{name: "scripts/run.sh", body: "#!/bin/sh"},
		{name: "LICENSE.txt", body: "text"},
		{name: "build/bin/llama-server", body: "elf"},
	})
	require.NoError(t, os.WriteFile(src, data, 0644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, ExtractZip(src, dest))

	for _, exe := range []string{"vault", "scripts/run.sh", "build/bin/llama-server"} {
		info, err := os.Stat(filepath.Join(dest, exe))
		require.NoError(t, err, exe)
		assert.Equal(t, os.FileMode(0755), info.Mode().Perm(), exe)
	}

	info, err := os.Stat(filepath.Join(dest, "LICENSE.txt"))
	require.NoError(t, err)
	assert.NotEqual(t, os.FileMode(0755), info.Mode().Perm())
}

func TestPlaceArtifact_Binary(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "minio")
	require.NoError(t, os.WriteFile(src, []byte("elf"), 0644))

	bin := filepath.Join(dir, "bin")
	require.NoError(t, placeArtifact(src, bin, "minio"))

	info, err := os.Stat(filepath.Join(bin, "minio"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}
