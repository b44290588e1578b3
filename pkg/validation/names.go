// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided names before they reach
// container names, SQL identifiers or subprocess arguments.
//
// Tenants become LXC container name prefixes (<tenant>-<component>) and
// are passed to lxc on the command line; database names and owners are
// interpolated into CREATE DATABASE and CREATE ROLE statements. Both are
// restricted to character sets that need no quoting.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxTenantLength leaves room for "-<component>" inside the 63 character
// container name limit.
const MaxTenantLength = 32

// tenantPattern matches valid tenant names.
// Allows: lowercase letters, digits, inner hyphens. Must start with a letter.
var tenantPattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// identifierPattern matches unquoted PostgreSQL identifiers.
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidateTenant validates a tenant name.
//
// Valid tenants:
//   - 1-32 characters
//   - Lowercase letters a-z, digits 0-9 and hyphens
//   - Start with a letter, do not end with a hyphen
//
// Example:
//
//	if err := validation.ValidateTenant(tenant); err != nil {
//	    return fmt.Errorf("invalid --tenant: %w", err)
//	}
//	// Safe to use in lxc container names
func ValidateTenant(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant cannot be empty")
	}
	if len(tenant) > MaxTenantLength {
		return fmt.Errorf("tenant %q is longer than %d characters", tenant, MaxTenantLength)
	}
	if !tenantPattern.MatchString(tenant) {
		return fmt.Errorf("invalid tenant format: %q (must be lowercase letters, digits or hyphens, starting with a letter)", tenant)
	}
	return nil
}

// SanitizeTenant lowercases and trims tenant, then validates it.
func SanitizeTenant(tenant string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(tenant))
	if err := ValidateTenant(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidateIdentifier validates a database or role name.
// Returns an error unless name is an unquoted lowercase identifier.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier: %q (must be 1-63 lowercase letters, digits or underscores, not starting with a digit)", name)
	}
	return nil
}
