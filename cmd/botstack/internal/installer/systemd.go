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
	"fmt"
	"strings"
)

// UnitSpec describes a systemd service unit for one component.
type UnitSpec struct {
	Name             string
	ExecStart        string
	WorkingDirectory string
	Environment      []string
}

// RenderUnit renders a Type=simple unit that restarts the service 10s after
// any exit.
//
// ExecStart runs through /bin/bash -c so redirections in the component's
// exec command keep working. A leading "nohup" and trailing "&" are removed
// because systemd supervises the process in the foreground.
func RenderUnit(spec UnitSpec) string {
	var b strings.Builder
	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=%s service\n", spec.Name)
	b.WriteString("After=network.target\n\n")

	b.WriteString("[Service]\n")
	b.WriteString("Type=simple\n")
	for _, e := range spec.Environment {
		fmt.Fprintf(&b, "Environment=%s\n", systemdQuote(e))
	}
	fmt.Fprintf(&b, "ExecStart=/bin/bash -c %s\n", systemdQuote(foreground(spec.ExecStart)))
	fmt.Fprintf(&b, "WorkingDirectory=%s\n", spec.WorkingDirectory)
	b.WriteString("Restart=always\n")
	b.WriteString("RestartSec=10\n\n")

	b.WriteString("[Install]\n")
	b.WriteString("WantedBy=multi-user.target\n")
	return b.String()
}

func foreground(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	cmd = strings.TrimSpace(strings.TrimSuffix(cmd, "&"))
	cmd = strings.TrimPrefix(cmd, "nohup ")
	return cmd
}

// systemdQuote double-quotes s for a unit file, escaping backslashes,
// quotes and the specifier and variable characters systemd expands.
func systemdQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `%`, `%%`, `$`, `$$`)
	return `"` + r.Replace(s) + `"`
}
