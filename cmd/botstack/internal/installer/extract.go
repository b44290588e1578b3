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
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// ArtifactKind classifies a downloaded file by its name.
type ArtifactKind int

const (
	// KindBinary is placed as the component binary.
	KindBinary ArtifactKind = iota

	// KindTarGz is a gzip-compressed tarball.
	KindTarGz

	// KindZip is a zip archive.
	KindZip
)

// ClassifyArtifact dispatches on the file extension.
func ClassifyArtifact(fileName string) ArtifactKind {
	lower := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return KindTarGz
	case strings.HasSuffix(lower, ".zip"):
		return KindZip
	default:
		return KindBinary
	}
}

// ExtractTarGz extracts a .tar.gz archive into dest.
//
// # Description
//
// When every entry shares a single top-level directory that directory is
// stripped, so "postgresql-18/bin/postgres" lands at dest/bin/postgres.
// Entries that would escape dest, and symlinks pointing outside it, are
// rejected with ErrUnsafeArchivePath.
//
// # Inputs
//
//   - src: Path of the archive
//   - dest: Destination directory, created if missing
//
// # Outputs
//
//   - error: Non-nil on I/O failure or an unsafe entry
func ExtractTarGz(src, dest string) error {
	names, err := tarEntryNames(src)
	if err != nil {
		return err
	}
	prefix := commonTopLevel(names)

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip %s: %w", src, err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar %s: %w", src, err)
		}

		rel := stripPrefix(cleanEntry(hdr.Name), prefix)
		if rel == "" {
			continue
		}
		target, err := safeJoin(dest, rel)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := safeSymlink(dest, target, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			linkRel := stripPrefix(cleanEntry(hdr.Linkname), prefix)
			oldname, err := safeJoin(dest, linkRel)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Link(oldname, target); err != nil {
				return err
			}
		}
	}
}

// ExtractZip extracts a zip archive into dest without stripping.
//
// Files with no extension or a .sh extension are made executable (0755).
func ExtractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("open zip %s: %w", src, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	for _, zf := range r.File {
		rel := cleanEntry(zf.Name)
		if rel == "" {
			continue
		}
		target, err := safeJoin(dest, rel)
		if err != nil {
			return err
		}

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		mode := zf.Mode().Perm()
		if mode == 0 {
			mode = 0644
		}
		if ext := path.Ext(rel); ext == "" || ext == ".sh" {
			mode = 0755
		}

		rc, err := zf.Open()
		if err != nil {
			return err
		}
		err = writeFile(target, rc, mode)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// PlaceBinary copies src to dest with mode 0755.
func PlaceBinary(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeFile(dest, in, 0755)
}

func tarEntryNames(src string) ([]string, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip %s: %w", src, err)
	}
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read tar %s: %w", src, err)
		}
		if name := cleanEntry(hdr.Name); name != "" {
			names = append(names, name)
		}
	}
}

// commonTopLevel returns the directory shared by every entry, or "" if the
// entries do not all live under one directory.
func commonTopLevel(names []string) string {
	if len(names) == 0 {
		return ""
	}
	var top string
	nested := false
	for _, n := range names {
		first, rest, found := strings.Cut(n, "/")
		if top == "" {
			top = first
		} else if first != top {
			return ""
		}
		if found && rest != "" {
			nested = true
		}
	}
	if !nested {
		return ""
	}
	return top
}

func cleanEntry(name string) string {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "." {
		return ""
	}
	return name
}

func stripPrefix(name, prefix string) string {
	if prefix == "" {
		return name
	}
	if name == prefix {
		return ""
	}
	return strings.TrimPrefix(name, prefix+"/")
}

func safeJoin(dest, rel string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(rel))
	cleanDest := filepath.Clean(dest)
	if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeArchivePath, rel)
	}
	return target, nil
}

func safeSymlink(dest, target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("%w: absolute symlink %s", ErrUnsafeArchivePath, linkname)
	}
	resolved := filepath.Join(filepath.Dir(target), linkname)
	cleanDest := filepath.Clean(dest)
	if resolved != cleanDest && !strings.HasPrefix(resolved, cleanDest+string(os.PathSeparator)) {
		return fmt.Errorf("%w: symlink %s", ErrUnsafeArchivePath, linkname)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	os.Remove(target)
	return os.Symlink(linkname, target)
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	// Unlink first: the old inode may be executing.
	os.Remove(target)
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(target, mode)
}
