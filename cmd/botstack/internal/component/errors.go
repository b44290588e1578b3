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
	"errors"
	"fmt"
	"strings"
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrEmptyName is returned when a descriptor has no name.
	ErrEmptyName = errors.New("component name must not be empty")

	// ErrDuplicateComponent is returned when two descriptors share a name.
	ErrDuplicateComponent = errors.New("duplicate component")

	// ErrUnknownDependency is returned when a descriptor depends on a name
	// that is not in the registry.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrDependencyCycle is returned when dependencies do not form a DAG.
	ErrDependencyCycle = errors.New("dependency cycle")

	// ErrUnknownComponent is returned by lookups for names not in the registry.
	ErrUnknownComponent = errors.New("unknown component")
)

// -----------------------------------------------------------------------------
// Error Types
// -----------------------------------------------------------------------------

// CycleError reports the dependency path that closes a cycle.
//
// Path starts and ends with the same component name, for example
// [alm alm-ci alm].
type CycleError struct {
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDependencyCycle, strings.Join(e.Path, " -> "))
}

// Unwrap returns ErrDependencyCycle so callers can use errors.Is.
func (e *CycleError) Unwrap() error {
	return ErrDependencyCycle
}

// DependencyError reports a dependency that does not exist in the registry.
type DependencyError struct {
	Component  string
	Dependency string
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	return fmt.Sprintf("%v: %s depends on %q", ErrUnknownDependency, e.Component, e.Dependency)
}

// Unwrap returns ErrUnknownDependency so callers can use errors.Is.
func (e *DependencyError) Unwrap() error {
	return ErrUnknownDependency
}
