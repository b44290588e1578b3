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
	"context"
	"os"
	"sort"
	"strings"
)

// DBPasswordKey is the resolver key substituted for {{DB_PASSWORD}}.
const DBPasswordKey = "BOOTSTRAP_DB_PASSWORD"

// Resolver looks up values for $NAME indirections in component environments.
type Resolver interface {
	Lookup(ctx context.Context, key string) (string, bool)
}

// Exporter is implemented by resolvers that also provide base environment
// entries ("KEY=value") for every launched child process.
type Exporter interface {
	Environ() []string
}

// OSEnv resolves from the process environment.
type OSEnv struct{}

// Lookup implements Resolver.
func (OSEnv) Lookup(_ context.Context, key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapResolver resolves from a fixed map.
type MapResolver map[string]string

// Lookup implements Resolver.
func (m MapResolver) Lookup(_ context.Context, key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

type chain struct {
	resolvers []Resolver
}

// Chain returns a resolver that consults each resolver in order and merges
// any exported environments. Nil entries are skipped.
func Chain(resolvers ...Resolver) Resolver {
	var rs []Resolver
	for _, r := range resolvers {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return &chain{resolvers: rs}
}

func (c *chain) Lookup(ctx context.Context, key string) (string, bool) {
	for _, r := range c.resolvers {
		if v, ok := r.Lookup(ctx, key); ok {
			return v, true
		}
	}
	return "", false
}

func (c *chain) Environ() []string {
	var out []string
	for _, r := range c.resolvers {
		if e, ok := r.(Exporter); ok {
			out = append(out, e.Environ()...)
		}
	}
	return out
}

// withFallback ensures the process environment is always consulted last.
func withFallback(r Resolver) Resolver {
	if r == nil {
		return OSEnv{}
	}
	return Chain(r, OSEnv{})
}

// resolveEnv expands a descriptor environment into sorted KEY=value entries.
//
// Values starting with '$' are indirections: the remainder names a key for
// r. A missing key resolves to the empty string and is reported in missing.
func resolveEnv(ctx context.Context, env map[string]string, render func(string) string, r Resolver) (entries []string, missing []string) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := render(env[k])
		if strings.HasPrefix(v, "$") && len(v) > 1 {
			ref := strings.TrimPrefix(v, "$")
			resolved, ok := r.Lookup(ctx, ref)
			if !ok {
				missing = append(missing, ref)
			}
			v = resolved
		}
		entries = append(entries, k+"="+v)
	}
	return entries, missing
}

func exported(r Resolver) []string {
	if e, ok := r.(Exporter); ok {
		return e.Environ()
	}
	return nil
}
