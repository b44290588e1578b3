// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package directory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File names under the directory config dir.
const (
	ServerConfigFile = "zitadel.yaml"
	StepsFile        = "steps.yaml"
	PATFile          = "admin-pat.txt"
	CredentialsFile  = "setup-credentials.txt"
)

// ConfigOptions feeds the generated files.
type ConfigOptions struct {
	// Dir is conf/directory.
	Dir string

	ExternalDomain string
	Port           int

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// AdminUser and AdminPassword are the database superuser used for the
	// server's own init phase.
	AdminUser     string
	AdminPassword string

	// CACert is passed as the database root certificate.
	CACert string

	OrgName       string
	MachineUser   string
	PATExpiration string
}

func (o *ConfigOptions) defaults() {
	if o.ExternalDomain == "" {
		o.ExternalDomain = "localhost"
	}
	if o.Port == 0 {
		o.Port = 8080
	}
	if o.DBHost == "" {
		o.DBHost = "localhost"
	}
	if o.DBPort == 0 {
		o.DBPort = 5432
	}
	if o.DBName == "" {
		o.DBName = "zitadel"
	}
	if o.DBUser == "" {
		o.DBUser = "zitadel"
	}
	if o.OrgName == "" {
		o.OrgName = DefaultOrgName
	}
	if o.MachineUser == "" {
		o.MachineUser = "botstack-admin"
	}
	if o.PATExpiration == "" {
		o.PATExpiration = "2099-01-01T00:00:00Z"
	}
}

type sslConfig struct {
	Mode     string `yaml:"Mode"`
	RootCert string `yaml:"RootCert,omitempty"`
}

type dbUser struct {
	Username string    `yaml:"Username"`
	Password string    `yaml:"Password"`
	SSL      sslConfig `yaml:"SSL"`
}

type serverConfig struct {
	Log struct {
		Level string `yaml:"Level"`
	} `yaml:"Log"`
	Port           int    `yaml:"Port"`
	ExternalDomain string `yaml:"ExternalDomain"`
	ExternalPort   int    `yaml:"ExternalPort"`
	ExternalSecure bool   `yaml:"ExternalSecure"`
	TLS            struct {
		Enabled bool `yaml:"Enabled"`
	} `yaml:"TLS"`
	Database struct {
		Postgres struct {
			Host     string `yaml:"Host"`
			Port     int    `yaml:"Port"`
			Database string `yaml:"Database"`
			User     dbUser `yaml:"User"`
			Admin    dbUser `yaml:"Admin"`
		} `yaml:"postgres"`
	} `yaml:"Database"`
}

type stepsConfig struct {
	FirstInstance struct {
		PatPath string `yaml:"PatPath"`
		Org     struct {
			Name    string `yaml:"Name"`
			Machine struct {
				Machine struct {
					Username string `yaml:"Username"`
					Name     string `yaml:"Name"`
				} `yaml:"Machine"`
				Pat struct {
					ExpirationDate string `yaml:"ExpirationDate"`
				} `yaml:"Pat"`
			} `yaml:"Machine"`
		} `yaml:"Org"`
	} `yaml:"FirstInstance"`
}

// WriteConfig writes the server config and first-instance steps into
// opts.Dir unless they already exist. It returns the files it wrote.
func WriteConfig(opts ConfigOptions) ([]string, error) {
	opts.defaults()
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, err
	}

	mode := "require"
	if opts.CACert != "" {
		mode = "verify-full"
	}
	ssl := sslConfig{Mode: mode, RootCert: opts.CACert}

	var server serverConfig
	server.Log.Level = "info"
	server.Port = opts.Port
	server.ExternalDomain = opts.ExternalDomain
	server.ExternalPort = opts.Port
	server.ExternalSecure = true
	server.TLS.Enabled = true
	pg := &server.Database.Postgres
	pg.Host = opts.DBHost
	pg.Port = opts.DBPort
	pg.Database = opts.DBName
	pg.User = dbUser{Username: opts.DBUser, Password: opts.DBPassword, SSL: ssl}
	pg.Admin = dbUser{Username: opts.AdminUser, Password: opts.AdminPassword, SSL: ssl}

	var steps stepsConfig
	steps.FirstInstance.PatPath = filepath.Join(opts.Dir, PATFile)
	steps.FirstInstance.Org.Name = opts.OrgName
	steps.FirstInstance.Org.Machine.Machine.Username = opts.MachineUser
	steps.FirstInstance.Org.Machine.Machine.Name = "botstack bootstrap"
	steps.FirstInstance.Org.Machine.Pat.ExpirationDate = opts.PATExpiration

	var written []string
	for name, doc := range map[string]any{ServerConfigFile: server, StepsFile: steps} {
		path := filepath.Join(opts.Dir, name)
		ok, err := writeYAMLIfAbsent(path, doc)
		if err != nil {
			return written, err
		}
		if ok {
			written = append(written, path)
		}
	}
	return written, nil
}

func writeYAMLIfAbsent(path string, doc any) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	// Both files carry database passwords.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return false, err
	}
	return true, nil
}
