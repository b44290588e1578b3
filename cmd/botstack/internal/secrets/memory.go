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
	"encoding/base64"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store that models an initialize/seal cycle.
//
// # Description
//
// A fresh MemoryStore is uninitialized. Init generates deterministic keys
// ("key-0", "key-1", ... base64 encoded) and leaves the store sealed.
// Unseal counts distinct valid keys up to the threshold. Records require
// an unsealed store and the root token.
//
// Hooks override behaviour for fault injection; a nil hook means the
// modelled behaviour. Every method call is recorded in Calls.
//
// # Thread Safety
//
// Safe for concurrent use.
type MemoryStore struct {
	HealthFunc func(ctx context.Context) (Health, error)
	InitFunc   func(ctx context.Context, shares, threshold int) (*Bundle, error)
	UnsealFunc func(ctx context.Context, key string) (SealStatus, error)
	PutFunc    func(ctx context.Context, path string, data map[string]string) error

	// Calls records method names, e.g. "Init", "Put gbo/tables".
	Calls []string

	mu          sync.Mutex
	initialized bool
	sealed      bool
	threshold   int
	keys        []string
	submitted   map[string]bool
	rootToken   string
	token       string
	kvEnabled   bool
	records     map[string]map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an uninitialized, sealed store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sealed:    true,
		submitted: map[string]bool{},
		records:   map[string]map[string]string{},
	}
}

func (m *MemoryStore) record(call string) {
	m.Calls = append(m.Calls, call)
}

// Health implements Store.
func (m *MemoryStore) Health(ctx context.Context) (Health, error) {
	m.mu.Lock()
	m.record("Health")
	hook := m.HealthFunc
	h := Health{Initialized: m.initialized, Sealed: m.sealed}
	m.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return h, nil
}

// SealStatus implements Store.
func (m *MemoryStore) SealStatus(ctx context.Context) (SealStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SealStatus")
	return m.statusLocked(), nil
}

// Init implements Store.
func (m *MemoryStore) Init(ctx context.Context, shares, threshold int) (*Bundle, error) {
	m.mu.Lock()
	m.record("Init")
	hook := m.InitFunc
	m.mu.Unlock()
	if hook != nil {
		return hook(ctx, shares, threshold)
	}
	return m.initModel(shares, threshold)
}

func (m *MemoryStore) initModel(shares, threshold int) (*Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil, fmt.Errorf("initialize store: already initialized")
	}
	if shares < 1 || threshold < 1 || threshold > shares {
		return nil, fmt.Errorf("initialize store: invalid shares %d / threshold %d", shares, threshold)
	}
	m.initialized = true
	m.sealed = true
	m.threshold = threshold
	m.keys = make([]string, shares)
	for i := range m.keys {
		m.keys[i] = base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("key-%d", i)))
	}
	m.rootToken = "root-token"
	return &Bundle{UnsealKeysB64: append([]string(nil), m.keys...), RootToken: m.rootToken}, nil
}

// Unseal implements Store.
func (m *MemoryStore) Unseal(ctx context.Context, key string) (SealStatus, error) {
	m.mu.Lock()
	m.record("Unseal")
	hook := m.UnsealFunc
	m.mu.Unlock()
	if hook != nil {
		return hook(ctx, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return SealStatus{}, fmt.Errorf("unseal: store is not initialized")
	}
	valid := false
	for _, k := range m.keys {
		if k == key {
			valid = true
		}
	}
	if !valid {
		return SealStatus{}, fmt.Errorf("unseal: invalid key")
	}
	m.submitted[key] = true
	if len(m.submitted) >= m.threshold {
		m.sealed = false
		m.submitted = map[string]bool{}
	}
	return m.statusLocked(), nil
}

// SetToken implements Store.
func (m *MemoryStore) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// EnableKV implements Store.
func (m *MemoryStore) EnableKV(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("EnableKV")
	if err := m.authorizedLocked(); err != nil {
		return err
	}
	m.kvEnabled = true
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, path string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Get " + path)
	if err := m.authorizedLocked(); err != nil {
		return nil, err
	}
	rec, ok := m.records[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return copyFields(rec), nil
}

// Put implements Store.
func (m *MemoryStore) Put(ctx context.Context, path string, data map[string]string) error {
	m.mu.Lock()
	m.record("Put " + path)
	hook := m.PutFunc
	m.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, path, data); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorizedLocked(); err != nil {
		return err
	}
	if !m.kvEnabled {
		return fmt.Errorf("write %s: no kv engine mounted", path)
	}
	m.records[path] = copyFields(data)
	return nil
}

// ---- test helpers ----

// Seal marks an initialized store as sealed, as after a restart.
func (m *MemoryStore) Seal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sealed = true
}

// Preload initializes the store out-of-band and returns its bundle. The
// store is left sealed.
func (m *MemoryStore) Preload(shares, threshold int) *Bundle {
	b, err := m.initModel(shares, threshold)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	m.Calls = nil
	m.mu.Unlock()
	return b
}

// Record returns a stored record without authorization checks.
func (m *MemoryStore) Record(path string) (map[string]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[path]
	return copyFields(rec), ok
}

// Sealed reports the modelled seal state.
func (m *MemoryStore) Sealed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sealed
}

// GetCalls returns a copy of the recorded calls.
func (m *MemoryStore) GetCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

// Count returns how many recorded calls equal call.
func (m *MemoryStore) Count(call string) int {
	n := 0
	for _, c := range m.GetCalls() {
		if c == call {
			n++
		}
	}
	return n
}

func (m *MemoryStore) statusLocked() SealStatus {
	return SealStatus{
		Initialized: m.initialized,
		Sealed:      m.sealed,
		Threshold:   m.threshold,
		Shares:      len(m.keys),
		Progress:    len(m.submitted),
	}
}

func (m *MemoryStore) authorizedLocked() error {
	if m.sealed {
		return fmt.Errorf("store is sealed")
	}
	if m.token == "" || m.token != m.rootToken {
		return fmt.Errorf("permission denied")
	}
	return nil
}

func copyFields(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
