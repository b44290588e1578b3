// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package component

import (
	"path/filepath"
	"runtime"
	"strings"
)

// OS identifies the host operating system a command list applies to.
type OS string

const (
	Linux   OS = "linux"
	MacOS   OS = "darwin"
	Windows OS = "windows"
)

// CurrentOS returns the OS botstack is running on.
func CurrentOS() OS {
	return OS(runtime.GOOS)
}

// Descriptor is the declarative record for one installable service.
//
// # Description
//
// A Descriptor says nothing about how it is installed: the same record is
// used by the Local installer (host directories) and by the Container
// installer (one LXC container per tenant and component). Command
// templates are rendered against the PathSet of whichever layout applies.
//
// # Fields
//
// Env values take one of three forms:
//
//   - literal: "true"
//   - template: "{{CONF_PATH}}/system/certificates/email/server.crt"
//   - indirection: "$DRIVE_ACCESSKEY", resolved when the service starts
//
// # Thread Safety
//
// Descriptors are treated as immutable after registration. Callers that
// need to modify one should Clone it first.
type Descriptor struct {
	// Name is the registry key, e.g. "tables".
	Name string

	// Ports lists every TCP port the service listens on.
	Ports []int

	// Dependencies names components that must be installed first.
	Dependencies []string

	// Packages lists OS packages per platform. Installation is best effort.
	Packages map[OS][]string

	// DownloadURL is the artifact to fetch. Empty for package-only services.
	DownloadURL string

	// BinaryName is the file name a raw (non-archive) download is placed as.
	BinaryName string

	// PreInstall and PostInstall hold command templates per platform.
	PreInstall  map[OS][]string
	PostInstall map[OS][]string

	// Env holds environment variables for the running service.
	Env map[string]string

	// DataDownloads are auxiliary files (model weights) fetched into the
	// data directory.
	DataDownloads []string

	// ExecCmd starts the service. CheckCmd exits 0 when it is running.
	ExecCmd  string
	CheckCmd string

	// ProcessPattern matches the running process for pgrep/pkill. Empty
	// means the service has no long-running process of its own.
	ProcessPattern string

	// Optional components are not part of the required bootstrap set.
	Optional bool
}

// HasDownload reports whether the descriptor fetches an artifact.
func (d Descriptor) HasDownload() bool {
	return d.DownloadURL != ""
}

// Runnable reports whether the descriptor has a start command.
func (d Descriptor) Runnable() bool {
	return strings.TrimSpace(d.ExecCmd) != ""
}

// PreInstallFor returns the pre-install templates for os.
func (d Descriptor) PreInstallFor(os OS) []string {
	return d.PreInstall[os]
}

// PostInstallFor returns the post-install templates for os.
func (d Descriptor) PostInstallFor(os OS) []string {
	return d.PostInstall[os]
}

// PackagesFor returns the OS packages for os.
func (d Descriptor) PackagesFor(os OS) []string {
	return d.Packages[os]
}

// Clone returns a deep copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	c := d
	c.Ports = append([]int(nil), d.Ports...)
	c.Dependencies = append([]string(nil), d.Dependencies...)
	c.DataDownloads = append([]string(nil), d.DataDownloads...)
	c.Packages = cloneOSMap(d.Packages)
	c.PreInstall = cloneOSMap(d.PreInstall)
	c.PostInstall = cloneOSMap(d.PostInstall)
	if d.Env != nil {
		c.Env = make(map[string]string, len(d.Env))
		for k, v := range d.Env {
			c.Env[k] = v
		}
	}
	return c
}

func cloneOSMap(m map[OS][]string) map[OS][]string {
	if m == nil {
		return nil
	}
	out := make(map[OS][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// DownloadFileName returns the last path element of a download URL with any
// query string removed.
func DownloadFileName(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	name := filepath.Base(url)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
