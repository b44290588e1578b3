// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package database

import (
	"context"
	"sync"
)

// MemoryAdmin is an in-memory Admin for tests.
//
// PingFunc, when set, replaces Ping. Calls records each method name.
type MemoryAdmin struct {
	PingFunc func(ctx context.Context) error

	Calls []string

	mu         sync.Mutex
	databases  map[string]string
	roles      map[string]string
	migrations map[string][]string
	closed     int
}

var _ Admin = (*MemoryAdmin)(nil)

// NewMemoryAdmin returns an empty fake.
func NewMemoryAdmin() *MemoryAdmin {
	return &MemoryAdmin{
		databases:  map[string]string{},
		roles:      map[string]string{},
		migrations: map[string][]string{},
	}
}

func (m *MemoryAdmin) Ping(ctx context.Context) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, "Ping")
	hook := m.PingFunc
	m.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return nil
}

func (m *MemoryAdmin) DatabaseExists(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "DatabaseExists")
	_, ok := m.databases[name]
	return ok, nil
}

func (m *MemoryAdmin) CreateDatabase(ctx context.Context, name, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "CreateDatabase")
	if _, ok := m.databases[name]; !ok {
		m.databases[name] = owner
	}
	return nil
}

func (m *MemoryAdmin) EnsureRole(ctx context.Context, name, password string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "EnsureRole")
	if _, ok := m.roles[name]; ok {
		return false, nil
	}
	m.roles[name] = password
	return true, nil
}

func (m *MemoryAdmin) ApplyMigrations(ctx context.Context, database string, migrations []Migration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "ApplyMigrations")
	seen := map[string]bool{}
	for _, v := range m.migrations[database] {
		seen[v] = true
	}
	var applied []string
	for _, mig := range migrations {
		if !seen[mig.Version] {
			m.migrations[database] = append(m.migrations[database], mig.Version)
			applied = append(applied, mig.Version)
		}
	}
	return applied, nil
}

func (m *MemoryAdmin) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// Owner returns the owner of a created database.
func (m *MemoryAdmin) Owner(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.databases[name]
	return o, ok
}

// RolePassword returns the password a role was created with.
func (m *MemoryAdmin) RolePassword(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.roles[name]
	return p, ok
}

// Applied returns the versions recorded for database.
func (m *MemoryAdmin) Applied(database string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.migrations[database]...)
}

// Closed reports how many times Close was called.
func (m *MemoryAdmin) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
