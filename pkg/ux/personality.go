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
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// EnvPersonality selects the output level.
const EnvPersonality = "BOTSTACK_PERSONALITY"

// PersonalityLevel defines how rich terminal output is.
type PersonalityLevel string

const (
	// PersonalityStandard uses colors, icons and titles
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal uses icons without colors
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine prints plain OK:/WARN:/ERROR: prefixed lines for scripts
	PersonalityMachine PersonalityLevel = "machine"
)

// ParsePersonalityLevel converts a string to a PersonalityLevel. Unknown
// values give PersonalityStandard.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// DetectPersonality picks the level: an explicit flag value wins, then
// BOTSTACK_PERSONALITY, then machine mode when out is not a terminal.
func DetectPersonality(flag string, out *os.File) PersonalityLevel {
	if flag != "" {
		return ParsePersonalityLevel(flag)
	}
	if env := os.Getenv(EnvPersonality); env != "" {
		return ParsePersonalityLevel(env)
	}
	if out == nil || !isTerminal(out) {
		return PersonalityMachine
	}
	return PersonalityStandard
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
