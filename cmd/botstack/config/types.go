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
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// StackConfig is the contents of botstack.yaml.
type StackConfig struct {
	// Stack: where components live on this host
	Stack StackSection `yaml:"stack"`

	// Secrets: the secrets store and its unseal policy
	Secrets SecretsSection `yaml:"secrets"`

	// Database: the application database
	Database DatabaseSection `yaml:"database"`

	// Directory: the identity provider
	Directory DirectorySection `yaml:"directory"`

	Logging LoggingSection `yaml:"logging"`
}

type StackSection struct {
	Path          string   `yaml:"path,omitempty"` // default <cwd>/botserver-stack
	ContainerBase string   `yaml:"container_base"` // e.g. /opt/gbo
	Tenant        string   `yaml:"tenant"`         // e.g. default
	Images        []string `yaml:"images"`         // tried in order
	ReadyAttempts int      `yaml:"ready_attempts"`
	ReadyInterval Duration `yaml:"ready_interval"`
	TemplatesDir  string   `yaml:"templates_dir,omitempty"` // default <cwd>/templates
}

type SecretsSection struct {
	Addr         string `yaml:"addr"`
	KeyShares    int    `yaml:"key_shares"`
	KeyThreshold int    `yaml:"key_threshold"`
	CacheTTL     int    `yaml:"cache_ttl"`          // seconds
	EnvFile      string `yaml:"env_file,omitempty"` // default <cwd>/.env
}

type DatabaseSection struct {
	Name          string `yaml:"name"`
	Owner         string `yaml:"owner"`
	MigrationsDir string `yaml:"migrations_dir,omitempty"` // default <cwd>/migrations
	ExternalURL   string `yaml:"external_url,omitempty"`
}

type DirectorySection struct {
	URL string `yaml:"url"`
}

type LoggingSection struct {
	Level string `yaml:"level"`         // debug, info, warn, error
	Dir   string `yaml:"dir,omitempty"` // default <stack>/logs/system
}

// Duration is a time.Duration written as a string ("1s") in YAML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// DefaultImages are the container images tried when launching.
var DefaultImages = []string{"ubuntu:24.04", "ubuntu:22.04", "images:debian/12", "images:debian/11"}

func DefaultConfig() StackConfig {
	return StackConfig{
		Stack: StackSection{
			ContainerBase: "/opt/gbo",
			Tenant:        "default",
			Images:        append([]string(nil), DefaultImages...),
			ReadyAttempts: 30,
			ReadyInterval: Duration(time.Second),
		},
		Secrets: SecretsSection{
			Addr:         "https://localhost:8200",
			KeyShares:    1,
			KeyThreshold: 1,
			CacheTTL:     300,
		},
		Database: DatabaseSection{
			Name:  "botserver",
			Owner: "gbuser",
		},
		Directory: DirectorySection{
			URL: "https://localhost:8080",
		},
		Logging: LoggingSection{
			Level: "info",
		},
	}
}

// ResolvePaths fills path fields left empty relative to cwd.
func (c *StackConfig) ResolvePaths(cwd string) {
	if c.Stack.Path == "" {
		c.Stack.Path = filepath.Join(cwd, "botserver-stack")
	}
	if c.Secrets.EnvFile == "" {
		c.Secrets.EnvFile = filepath.Join(cwd, ".env")
	}
	if c.Database.MigrationsDir == "" {
		c.Database.MigrationsDir = filepath.Join(cwd, "migrations")
	}
	if c.Stack.TemplatesDir == "" {
		c.Stack.TemplatesDir = filepath.Join(cwd, "templates")
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = filepath.Join(c.Stack.Path, "logs", "system")
	}
}
