// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Environment overrides applied after the file is read.
const (
	EnvStackPath = "BOTSERVER_STACK_PATH"
	EnvStoreAddr = "VAULT_ADDR"
	EnvLogLevel  = "BOTSTACK_LOG_LEVEL"
)

var (
	// Global is the configuration loaded by Load.
	Global  StackConfig
	once    sync.Once
	loadErr error
)

// DefaultPath returns ~/.botstack/botstack.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".botstack", "botstack.yaml"), nil
}

// Load reads path (DefaultPath when empty) into Global once per process.
// A missing file is created with DefaultConfig; the notice goes to notify.
func Load(path string, notify io.Writer) error {
	once.Do(func() {
		var cfg *StackConfig
		cfg, loadErr = LoadFrom(path, notify)
		if loadErr == nil {
			Global = *cfg
		}
	})
	return loadErr
}

// LoadFrom reads a config file without touching Global. Paths left empty
// are resolved against the working directory and environment overrides
// are applied last.
func LoadFrom(path string, notify io.Writer) (*StackConfig, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		if notify != nil {
			fmt.Fprintf(notify, "First run detected, creating the config at %s\n", path)
		}
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	applyEnv(&cfg)
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg.ResolvePaths(cwd)
	return &cfg, nil
}

func applyEnv(cfg *StackConfig) {
	if v := os.Getenv(EnvStackPath); v != "" {
		cfg.Stack.Path = v
	}
	if v := os.Getenv(EnvStoreAddr); v != "" {
		cfg.Secrets.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
