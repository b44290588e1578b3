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

import "strings"

// Placeholder names understood by Render.
const (
	PlaceholderBin        = "BIN_PATH"
	PlaceholderData       = "DATA_PATH"
	PlaceholderConf       = "CONF_PATH"
	PlaceholderLogs       = "LOGS_PATH"
	PlaceholderDBPassword = "DB_PASSWORD"
)

// PathSet holds the four directories a component's commands refer to.
type PathSet struct {
	Bin  string
	Data string
	Conf string
	Logs string
}

// All returns the paths in Bin, Data, Conf, Logs order.
func (p PathSet) All() []string {
	return []string{p.Bin, p.Data, p.Conf, p.Logs}
}

// Vars is the full substitution context for Render.
type Vars struct {
	Paths      PathSet
	DBPassword string
}

func (v Vars) lookup(name string) (string, bool) {
	switch name {
	case PlaceholderBin:
		return v.Paths.Bin, true
	case PlaceholderData:
		return v.Paths.Data, true
	case PlaceholderConf:
		return v.Paths.Conf, true
	case PlaceholderLogs:
		return v.Paths.Logs, true
	case PlaceholderDBPassword:
		return v.DBPassword, true
	}
	return "", false
}

// Render substitutes {{NAME}} placeholders in tmpl.
//
// # Description
//
// Scans tmpl once, left to right. Each "{{NAME}}" whose NAME is in the
// placeholder vocabulary is replaced by the matching value from vars.
// Unknown names and unterminated "{{" are copied through unchanged.
// Substituted values are never rescanned, so a path containing "{{" cannot
// inject a second substitution.
//
// # Inputs
//
//   - tmpl: Command or config template
//   - vars: Paths and DB password to substitute
//
// # Outputs
//
//   - string: Rendered text
//
// # Examples
//
//	Render("{{BIN_PATH}}/vault server", Vars{Paths: PathSet{Bin: "/s/bin/secrets"}})
//	// "/s/bin/secrets/vault server"
func Render(tmpl string, vars Vars) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}

	var b strings.Builder
	b.Grow(len(tmpl))

	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start+2:], "}}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		name := rest[start+2 : start+2+end]
		b.WriteString(rest[:start])
		if value, ok := vars.lookup(name); ok {
			b.WriteString(value)
		} else {
			b.WriteString(rest[start : start+2+end+2])
		}
		rest = rest[start+2+end+2:]
	}
	return b.String()
}

// RenderAll renders every template in tmpls.
func RenderAll(tmpls []string, vars Vars) []string {
	out := make([]string, len(tmpls))
	for i, t := range tmpls {
		out[i] = Render(t, vars)
	}
	return out
}
