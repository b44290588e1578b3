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
	"context"
	"sync"
	"time"
)

// Field names a value inside a record.
type Field struct {
	Path string
	Key  string
}

// Indirections maps $NAME references in component environments to record
// fields.
var Indirections = map[string]Field{
	"BOOTSTRAP_DB_PASSWORD":   {PathTables, "password"},
	"TABLES_SERVER":           {PathTables, "host"},
	"TABLES_PORT":             {PathTables, "port"},
	"TABLES_DATABASE":         {PathTables, "database"},
	"TABLES_USERNAME":         {PathTables, "username"},
	"TABLES_PASSWORD":         {PathTables, "password"},
	"DRIVE_SERVER":            {PathDrive, "server"},
	"DRIVE_ACCESSKEY":         {PathDrive, "accesskey"},
	"DRIVE_SECRET":            {PathDrive, "secret"},
	"CACHE_PASSWORD":          {PathCache, "password"},
	"DIRECTORY_URL":           {PathDirectory, "url"},
	"DIRECTORY_MASTERKEY":     {PathDirectory, "masterkey"},
	"DIRECTORY_CLIENT_ID":     {PathDirectory, "client_id"},
	"DIRECTORY_CLIENT_SECRET": {PathDirectory, "client_secret"},
	"LLM_URL":                 {PathLLM, "url"},
	"EMAIL_USERNAME":          {PathEmail, "username"},
	"EMAIL_PASSWORD":          {PathEmail, "password"},
	"ENCRYPTION_MASTER_KEY":   {PathEncryption, "master_key"},
}

// Resolver resolves component environment indirections from the store.
//
// # Description
//
// VAULT_* keys come from the credentials. Other keys listed in
// Indirections are read from their record, cached for the credentials'
// CacheTTL. Unknown keys and unreadable records report not-found so that
// callers fall back to the process environment.
//
// # Thread Safety
//
// Safe for concurrent use.
type Resolver struct {
	store Store
	creds *Credentials
	now   func() time.Time

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	fields  map[string]string
	expires time.Time
}

// NewResolver returns a resolver backed by store and creds.
func NewResolver(store Store, creds *Credentials) *Resolver {
	return &Resolver{store: store, creds: creds, now: time.Now, cache: map[string]cached{}}
}

// Lookup resolves key.
func (r *Resolver) Lookup(ctx context.Context, key string) (string, bool) {
	if r.creds != nil {
		switch key {
		case EnvAddr:
			return r.creds.Addr, r.creds.Addr != ""
		case EnvToken:
			return r.creds.Token, r.creds.Token != ""
		case EnvCACert:
			return r.creds.CACert, r.creds.CACert != ""
		case EnvClientCert:
			return r.creds.ClientCert, r.creds.ClientCert != ""
		case EnvClientKey:
			return r.creds.ClientKey, r.creds.ClientKey != ""
		}
	}
	field, ok := Indirections[key]
	if !ok || r.store == nil {
		return "", false
	}
	rec, err := r.Get(ctx, field.Path)
	if err != nil {
		return "", false
	}
	v, ok := rec[field.Key]
	return v, ok
}

// Get returns a record through the cache.
func (r *Resolver) Get(ctx context.Context, path string) (map[string]string, error) {
	r.mu.Lock()
	if c, ok := r.cache[path]; ok && r.now().Before(c.expires) {
		r.mu.Unlock()
		return copyFields(c.fields), nil
	}
	r.mu.Unlock()

	rec, err := r.store.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[path] = cached{fields: copyFields(rec), expires: r.now().Add(r.ttl())}
	r.mu.Unlock()
	return rec, nil
}

// Invalidate drops a cached record, e.g. after it was rewritten.
func (r *Resolver) Invalidate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, path)
}

// Environ exports the credentials to child processes.
func (r *Resolver) Environ() []string {
	if r.creds == nil {
		return nil
	}
	return r.creds.Environ()
}

func (r *Resolver) ttl() time.Duration {
	if r.creds == nil || r.creds.CacheTTL <= 0 {
		return DefaultCacheTTL * time.Second
	}
	return time.Duration(r.creds.CacheTTL) * time.Second
}
