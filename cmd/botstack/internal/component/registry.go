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
	"fmt"
	"sort"
)

// Registry is the validated, immutable catalog of installable components.
//
// # Description
//
// Built once at process start. Construction fails for configuration errors
// (unknown dependency, cycle, duplicate name) so every Registry value that
// exists is known to describe a DAG.
//
// # Thread Safety
//
// Safe for concurrent reads. There are no mutating methods.
type Registry struct {
	byName map[string]Descriptor
	names  []string
}

// NewRegistry validates descs and builds a Registry.
//
// # Inputs
//
//   - descs: Descriptors to register. Order does not matter.
//
// # Outputs
//
//   - *Registry: Validated registry
//   - error: ErrEmptyName, ErrDuplicateComponent, *DependencyError or *CycleError
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if d.Name == "" {
			return nil, ErrEmptyName
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateComponent, d.Name)
		}
		r.byName[d.Name] = d.Clone()
		r.names = append(r.names, d.Name)
	}
	sort.Strings(r.names)

	for _, name := range r.names {
		for _, dep := range r.byName[name].Dependencies {
			if _, ok := r.byName[dep]; !ok {
				return nil, &DependencyError{Component: name, Dependency: dep}
			}
		}
	}
	if err := r.checkAcyclic(); err != nil {
		return nil, err
	}
	return r, nil
}

// Default builds the registry from the built-in catalog.
func Default() (*Registry, error) {
	return NewRegistry(Catalog()...)
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return d.Clone(), true
}

// Lookup is Get with an error for unknown names.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, ok := r.Get(name)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	return d, nil
}

// MustGet is Get for names known to be registered, such as the catalog
// constants. It panics on an unknown name.
func (r *Registry) MustGet(name string) Descriptor {
	d, err := r.Lookup(name)
	if err != nil {
		panic(err)
	}
	return d
}

// Names returns every registered name in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	return len(r.names)
}

// InstallOrder returns name and its transitive dependencies, dependencies
// first, each exactly once.
//
// # Description
//
// Depth-first post-order walk. Dependencies are visited in the order they
// are declared, so the result is deterministic. The requested component is
// always the last element.
//
// # Examples
//
//	order, _ := reg.InstallOrder("alm-ci")
//	// ["alm", "alm-ci"]
func (r *Registry) InstallOrder(name string) ([]string, error) {
	if _, ok := r.byName[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	var order []string
	seen := make(map[string]bool)
	r.visit(name, seen, &order)
	return order, nil
}

// StartOrder returns every component in dependency order. Ties are broken
// alphabetically.
func (r *Registry) StartOrder() []string {
	var order []string
	seen := make(map[string]bool)
	for _, name := range r.names {
		r.visit(name, seen, &order)
	}
	return order
}

func (r *Registry) visit(name string, seen map[string]bool, order *[]string) {
	if seen[name] {
		return
	}
	seen[name] = true
	for _, dep := range r.byName[name].Dependencies {
		r.visit(dep, seen, order)
	}
	*order = append(*order, name)
}

const (
	unvisited = iota
	visiting
	done
)

func (r *Registry) checkAcyclic() error {
	state := make(map[string]int, len(r.names))
	var stack []string

	var walk func(name string) error
	walk = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, n := range stack {
				if n == name {
					start = i
					break
				}
			}
			path := append(append([]string(nil), stack[start:]...), name)
			return &CycleError{Path: path}
		}
		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range r.byName[name].Dependencies {
			if err := walk(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, name := range r.names {
		if err := walk(name); err != nil {
			return err
		}
	}
	return nil
}
