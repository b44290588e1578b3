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
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/vault/api"
)

// DefaultMount is the KV v2 mount holding every record.
const DefaultMount = "secret"

// Health is the store's health endpoint answer.
type Health struct {
	Initialized bool
	Sealed      bool
	Standby     bool
}

// SealStatus is the store's seal-status answer.
type SealStatus struct {
	Initialized bool
	Sealed      bool
	Threshold   int
	Shares      int
	Progress    int
}

// Store is the subset of the secrets store API the lifecycle needs.
//
// # Description
//
// Paths passed to Get and Put are relative to the KV mount, e.g.
// "gbo/tables". Values are flat string maps.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	Health(ctx context.Context) (Health, error)
	SealStatus(ctx context.Context) (SealStatus, error)
	Init(ctx context.Context, shares, threshold int) (*Bundle, error)
	Unseal(ctx context.Context, key string) (SealStatus, error)
	SetToken(token string)
	EnableKV(ctx context.Context) error
	Get(ctx context.Context, path string) (map[string]string, error)
	Put(ctx context.Context, path string, data map[string]string) error
}

// -----------------------------------------------------------------------------
// VaultStore
// -----------------------------------------------------------------------------

// VaultConfig configures VaultStore.
type VaultConfig struct {
	Addr       string
	Token      string
	CACert     string
	ClientCert string
	ClientKey  string
	Mount      string
	Insecure   bool
}

// VaultStore implements Store against a Vault-compatible server.
type VaultStore struct {
	client *api.Client
	mount  string
}

var _ Store = (*VaultStore)(nil)

// NewVaultStore builds a client for cfg. TLS material is optional; when a
// client certificate is configured it is presented for mutual TLS.
func NewVaultStore(cfg VaultConfig) (*VaultStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: address is empty", ErrNotConfigured)
	}
	conf := api.DefaultConfig()
	if conf.Error != nil {
		return nil, conf.Error
	}
	conf.Address = cfg.Addr
	conf.MaxRetries = 0

	tlsCfg := &api.TLSConfig{
		CACert:   cfg.CACert,
		Insecure: cfg.Insecure,
	}
	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		tlsCfg.ClientCert = cfg.ClientCert
		tlsCfg.ClientKey = cfg.ClientKey
	}
	if err := conf.ConfigureTLS(tlsCfg); err != nil {
		return nil, fmt.Errorf("configure store TLS: %w", err)
	}

	client, err := api.NewClient(conf)
	if err != nil {
		return nil, fmt.Errorf("create store client: %w", err)
	}
	client.ClearToken()
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = DefaultMount
	}
	return &VaultStore{client: client, mount: mount}, nil
}

// Health implements Store. Standby, uninitialized and sealed servers answer
// without an error.
func (s *VaultStore) Health(ctx context.Context) (Health, error) {
	resp, err := s.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return Health{}, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return Health{Initialized: resp.Initialized, Sealed: resp.Sealed, Standby: resp.Standby}, nil
}

// SealStatus implements Store.
func (s *VaultStore) SealStatus(ctx context.Context) (SealStatus, error) {
	resp, err := s.client.Sys().SealStatusWithContext(ctx)
	if err != nil {
		return SealStatus{}, fmt.Errorf("seal status: %w", err)
	}
	return sealStatus(resp), nil
}

// Init implements Store.
func (s *VaultStore) Init(ctx context.Context, shares, threshold int) (*Bundle, error) {
	resp, err := s.client.Sys().InitWithContext(ctx, &api.InitRequest{
		SecretShares:    shares,
		SecretThreshold: threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	return &Bundle{UnsealKeysB64: resp.KeysB64, RootToken: resp.RootToken}, nil
}

// Unseal implements Store.
func (s *VaultStore) Unseal(ctx context.Context, key string) (SealStatus, error) {
	resp, err := s.client.Sys().UnsealWithContext(ctx, key)
	if err != nil {
		return SealStatus{}, fmt.Errorf("unseal: %w", err)
	}
	return sealStatus(resp), nil
}

// SetToken implements Store.
func (s *VaultStore) SetToken(token string) { s.client.SetToken(token) }

// EnableKV implements Store. A mount that already exists is left alone.
func (s *VaultStore) EnableKV(ctx context.Context) error {
	mounts, err := s.client.Sys().ListMountsWithContext(ctx)
	if err != nil {
		return fmt.Errorf("list mounts: %w", err)
	}
	if _, ok := mounts[s.mount+"/"]; ok {
		return nil
	}
	err = s.client.Sys().MountWithContext(ctx, s.mount, &api.MountInput{
		Type:    "kv",
		Options: map[string]string{"version": "2"},
	})
	if isStatus(err, http.StatusBadRequest) {
		// Raced with another writer: "path is already in use".
		return nil
	}
	if err != nil {
		return fmt.Errorf("enable kv at %s: %w", s.mount, err)
	}
	return nil
}

// Get implements Store.
func (s *VaultStore) Get(ctx context.Context, path string) (map[string]string, error) {
	secret, err := s.client.KVv2(s.mount).Get(ctx, path)
	if errors.Is(err, api.ErrSecretNotFound) || isStatus(err, http.StatusNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	out := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

// Put implements Store.
func (s *VaultStore) Put(ctx context.Context, path string, data map[string]string) error {
	payload := make(map[string]interface{}, len(data))
	for k, v := range data {
		payload[k] = v
	}
	if _, err := s.client.KVv2(s.mount).Put(ctx, path, payload); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func sealStatus(resp *api.SealStatusResponse) SealStatus {
	return SealStatus{
		Initialized: resp.Initialized,
		Sealed:      resp.Sealed,
		Threshold:   resp.T,
		Shares:      resp.N,
		Progress:    resp.Progress,
	}
}

func isStatus(err error, code int) bool {
	var rerr *api.ResponseError
	return errors.As(err, &rerr) && rerr.StatusCode == code
}
