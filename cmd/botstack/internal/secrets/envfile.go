// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package secrets

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// ReadEnvFile parses KEY=value lines. Blank lines, comments and lines
// without '=' are ignored; a leading "export " and matching surrounding
// quotes are stripped. A missing file yields an empty map.
func ReadEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, value, ok := parseEnvLine(sc.Text())
		if ok {
			out[key] = value
		}
	}
	return out, sc.Err()
}

// UpdateEnvFile sets keys in the env file at path. Existing lines for those
// keys are replaced in place, new keys are appended in sorted order, and
// every other line is preserved verbatim. The file is written 0600.
func UpdateEnvFile(path string, updates map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	pending := make(map[string]string, len(updates))
	for k, v := range updates {
		pending[k] = v
	}

	var lines []string
	if len(data) > 0 {
		lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	}
	for i, line := range lines {
		key, _, ok := parseEnvLine(line)
		if !ok {
			continue
		}
		if v, found := pending[key]; found {
			lines[i] = key + "=" + v
			delete(pending, key)
		}
	}

	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, k+"="+pending[k])
	}

	return writePrivate(path, []byte(strings.Join(lines, "\n")+"\n"))
}

func parseEnvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	key, value, ok = strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if n := len(value); n >= 2 && (value[0] == '"' || value[0] == '\'') && value[n-1] == value[0] {
		value = value[1 : n-1]
	}
	return key, value, key != ""
}
