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
	"fmt"
	"strconv"
)

// Environment keys written to the env file and exported to children.
const (
	EnvAddr       = "VAULT_ADDR"
	EnvToken      = "VAULT_TOKEN"
	EnvCACert     = "VAULT_CACERT"
	EnvClientCert = "VAULT_CLIENT_CERT"
	EnvClientKey  = "VAULT_CLIENT_KEY"
	EnvCacheTTL   = "VAULT_CACHE_TTL"

	// DefaultCacheTTL is the record cache lifetime in seconds.
	DefaultCacheTTL = 300
)

// Credentials is how the rest of a run reaches the secrets store.
type Credentials struct {
	Addr       string
	Token      string
	CACert     string
	ClientCert string
	ClientKey  string
	CacheTTL   int
}

// EnvFileEntries returns the keys persisted to the env file.
func (c *Credentials) EnvFileEntries() map[string]string {
	ttl := c.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return map[string]string{
		EnvAddr:     c.Addr,
		EnvToken:    c.Token,
		EnvCACert:   c.CACert,
		EnvCacheTTL: strconv.Itoa(ttl),
	}
}

// Environ returns KEY=value entries for child processes. Empty values are
// omitted.
func (c *Credentials) Environ() []string {
	pairs := [][2]string{
		{EnvAddr, c.Addr},
		{EnvToken, c.Token},
		{EnvCACert, c.CACert},
		{EnvClientCert, c.ClientCert},
		{EnvClientKey, c.ClientKey},
	}
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p[1] != "" {
			out = append(out, p[0]+"="+p[1])
		}
	}
	return out
}

// VaultConfig returns the client configuration for these credentials.
func (c *Credentials) VaultConfig() VaultConfig {
	return VaultConfig{
		Addr:       c.Addr,
		Token:      c.Token,
		CACert:     c.CACert,
		ClientCert: c.ClientCert,
		ClientKey:  c.ClientKey,
	}
}

// LoadCredentials reads credentials from an env file for read-only
// commands. ErrNotConfigured is returned when address or token is missing.
func LoadCredentials(envPath string) (*Credentials, error) {
	return LoadCredentialsEnv(envPath, nil)
}

// LoadCredentialsEnv is LoadCredentials with the VAULT_* keys of getenv
// taking precedence over the file. A nil getenv reads only the file.
func LoadCredentialsEnv(envPath string, getenv func(string) string) (*Credentials, error) {
	env, err := ReadEnvFile(envPath)
	if err != nil {
		return nil, err
	}
	if getenv != nil {
		for _, key := range []string{EnvAddr, EnvToken, EnvCACert, EnvClientCert, EnvClientKey, EnvCacheTTL} {
			if v := getenv(key); v != "" {
				env[key] = v
			}
		}
	}
	creds := &Credentials{
		Addr:       env[EnvAddr],
		Token:      env[EnvToken],
		CACert:     env[EnvCACert],
		ClientCert: env[EnvClientCert],
		ClientKey:  env[EnvClientKey],
		CacheTTL:   DefaultCacheTTL,
	}
	if v := env[EnvCacheTTL]; v != "" {
		if ttl, err := strconv.Atoi(v); err == nil && ttl > 0 {
			creds.CacheTTL = ttl
		}
	}
	if creds.Addr == "" || creds.Token == "" {
		return nil, fmt.Errorf("%w: %s has no %s/%s", ErrNotConfigured, envPath, EnvAddr, EnvToken)
	}
	return creds, nil
}
