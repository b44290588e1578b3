// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePersonalityLevel(t *testing.T) {
	tests := map[string]PersonalityLevel{
		"machine":  PersonalityMachine,
		"Q":        PersonalityMachine,
		"minimal":  PersonalityMinimal,
		"min":      PersonalityMinimal,
		"standard": PersonalityStandard,
		"full":     PersonalityStandard,
		"":         PersonalityStandard,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParsePersonalityLevel(in), in)
	}
}

func TestDetectPersonality(t *testing.T) {
	t.Setenv(EnvPersonality, "")
	assert.Equal(t, PersonalityMinimal, DetectPersonality("minimal", nil), "flag wins")
	assert.Equal(t, PersonalityMachine, DetectPersonality("", nil), "no terminal")

	f, err := os.CreateTemp(t.TempDir(), "out")
	assert.NoError(t, err)
	defer f.Close()
	assert.Equal(t, PersonalityMachine, DetectPersonality("", f), "regular file is not a terminal")

	t.Setenv(EnvPersonality, "minimal")
	assert.Equal(t, PersonalityMinimal, DetectPersonality("", f))
	assert.Equal(t, PersonalityMachine, DetectPersonality("machine", f))
}

func TestPrinter_MachineMode(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPrinter(PersonalityMachine, &out, &errOut)

	p.Title("Stack")
	p.Success("started %s", "drive")
	p.Warning("directory skipped")
	p.Error("tables failed: %v", "refused")

	assert.Equal(t, "OK: started drive\n", out.String())
	assert.Equal(t, "WARN: directory skipped\nERROR: tables failed: refused\n", errOut.String())
}

func TestPrinter_MinimalMode(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(PersonalityMinimal, &out, &out)

	p.Success("drive running")
	p.Error("cache stopped")
	p.Info("plain")

	assert.Equal(t, "✓ drive running\n✗ cache stopped\nplain\n", out.String())
}

func TestPrinter_Table(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(PersonalityMinimal, &out, &out)
	p.Table([]string{"NAME", "INSTALLED"}, [][]string{
		{"secrets", "yes"},
		{"vector_db", "no"},
	})

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"NAME       INSTALLED",
		"secrets    yes",
		"vector_db  no",
	}, lines)

	out.Reset()
	p = NewPrinter(PersonalityMachine, &out, &out)
	p.Table([]string{"NAME", "INSTALLED"}, [][]string{{"secrets", "yes"}})
	assert.Equal(t, "secrets\tyes\n", out.String())
}
