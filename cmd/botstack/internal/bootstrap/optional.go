// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/certs"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/component"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/secrets"
)

// optionalConfig is a one-time configuration file for an optional
// component, relative to the component's CONF_PATH.
type optionalConfig struct {
	component string
	file      string
	render    func(s *Sequencer) ([]byte, error)
}

var optionalConfigs = []optionalConfig{
	{component.Email, "email/config.toml", renderMailConfig},
	{component.Proxy, "Caddyfile", renderCaddyfile},
	{component.DNS, "dns/Corefile", renderCorefile},
	{component.VectorDB, "vector_db/config.yaml", renderVectorDBConfig},
	{component.Meet, "meet/config.yaml", renderMeetConfig},
	{component.Observation, "monitoring/vector.toml", renderVectorConfig},
}

// writeOptionalConfigs renders every optional configuration that does not
// exist yet. Files are independent and written concurrently.
func (s *Sequencer) writeOptionalConfigs(ctx context.Context) ([]string, error) {
	return s.writeConfigs(ctx, func(string) bool { return true })
}

// writeConfigsFor renders the configurations name reads at startup. It
// runs before name is started so the files its command line points at
// exist.
func (s *Sequencer) writeConfigsFor(ctx context.Context, name string) ([]string, error) {
	return s.writeConfigs(ctx, func(c string) bool { return c == name })
}

func (s *Sequencer) writeConfigs(ctx context.Context, want func(name string) bool) ([]string, error) {
	var (
		mu      sync.Mutex
		written []string
	)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, oc := range optionalConfigs {
		if !want(oc.component) {
			continue
		}
		if _, ok := s.registry.Get(oc.component); !ok {
			continue
		}
		g.Go(func() error {
			path := filepath.Join(s.hostConf(oc.component), filepath.FromSlash(oc.file))
			ok, err := writeIfAbsent(path, func() ([]byte, error) { return oc.render(s) })
			if err != nil {
				return fmt.Errorf("%s: %w", oc.file, err)
			}
			if ok {
				mu.Lock()
				written = append(written, path)
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	sort.Strings(written)
	for _, p := range written {
		s.logger.Info("Wrote component configuration", "path", p)
	}
	return written, err
}

func writeIfAbsent(path string, render func() ([]byte, error)) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	data, err := render()
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return false, err
	}
	return true, nil
}

// -----------------------------------------------------------------------------
// Renderers
// -----------------------------------------------------------------------------

func renderMailConfig(s *Sequencer) ([]byte, error) {
	name := component.Email
	data := s.inst.Paths(name).Data
	doc := map[string]any{
		"server": map[string]any{
			"hostname": "mail." + certs.InternalDomain,
			"listener": map[string]any{
				"smtp":       map[string]any{"bind": []string{"[::]:25"}, "protocol": "smtp"},
				"submission": map[string]any{"bind": []string{"[::]:465"}, "protocol": "smtp", "tls": map[string]any{"implicit": true}},
				"imap":       map[string]any{"bind": []string{"[::]:143"}, "protocol": "imap"},
				"imaps":      map[string]any{"bind": []string{"[::]:993"}, "protocol": "imap", "tls": map[string]any{"implicit": true}},
				"http":       map[string]any{"bind": []string{"[::]:8025"}, "protocol": "http"},
			},
		},
		"certificate": map[string]any{
			"default": map[string]any{
				"cert":        "%{file:" + s.certPath(name, "email", "server.crt") + "}%",
				"private-key": "%{file:" + s.certPath(name, "email", "server.key") + "}%",
			},
		},
		"store": map[string]any{
			"rocksdb": map[string]any{"type": "rocksdb", "path": filepath.Join(data, "rocksdb")},
		},
		"storage": map[string]any{
			"data": "rocksdb", "fts": "rocksdb", "blob": "rocksdb", "lookup": "rocksdb", "directory": "internal",
		},
		"directory": map[string]any{
			"internal": map[string]any{"type": "internal", "store": "rocksdb"},
		},
	}
	return toml.Marshal(doc)
}

func renderVectorConfig(s *Sequencer) ([]byte, error) {
	name := component.Observation
	logsRoot := filepath.Dir(s.inst.Paths(name).Logs)
	doc := map[string]any{
		"data_dir": filepath.Join(s.inst.Paths(name).Data, "vector"),
		"api":      map[string]any{"enabled": true, "address": "127.0.0.1:8686"},
		"sources": map[string]any{
			"stack_logs": map[string]any{
				"type":    "file",
				"include": []string{filepath.Join(logsRoot, "*", "*.log")},
			},
		},
		"sinks": map[string]any{
			"timeseries": map[string]any{
				"type":     "influxdb_logs",
				"inputs":   []string{"stack_logs"},
				"endpoint": "http://localhost:8086",
				"bucket":   "logs",
				"org":      "botstack",
			},
		},
	}
	return toml.Marshal(doc)
}

func renderVectorDBConfig(s *Sequencer) ([]byte, error) {
	name := component.VectorDB
	doc := map[string]any{
		"service": map[string]any{
			"http_port":  6333,
			"grpc_port":  6334,
			"enable_tls": true,
		},
		"tls": map[string]any{
			"cert":    s.certPath(name, "qdrant", "server.crt"),
			"key":     s.certPath(name, "qdrant", "server.key"),
			"ca_cert": s.certPath(name, "ca", "ca.crt"),
		},
		"storage": map[string]any{
			"storage_path":   filepath.Join(s.inst.Paths(name).Data, "storage"),
			"snapshots_path": filepath.Join(s.inst.Paths(name).Data, "snapshots"),
		},
		"telemetry_disabled": true,
	}
	return yaml.Marshal(doc)
}

func renderMeetConfig(s *Sequencer) ([]byte, error) {
	doc := map[string]any{
		"port": 7880,
		"rtc": map[string]any{
			"tcp_port":         7881,
			"port_range_start": 50000,
			"port_range_end":   60000,
			"use_external_ip":  false,
		},
		"keys": map[string]string{
			"API" + secrets.GeneratePassword(12): secrets.GeneratePassword(40),
		},
		"logging": map[string]any{"level": "info"},
	}
	return yaml.Marshal(doc)
}

func renderCaddyfile(s *Sequencer) ([]byte, error) {
	name := component.Proxy
	var b strings.Builder
	b.WriteString("{\n\tauto_https disable_redirects\n}\n\n")
	fmt.Fprintf(&b, "localhost, api.%s {\n", certs.InternalDomain)
	fmt.Fprintf(&b, "\ttls %s %s\n", s.certPath(name, "api", "server.crt"), s.certPath(name, "api", "server.key"))
	b.WriteString("\treverse_proxy localhost:8088\n}\n")
	return []byte(b.String()), nil
}

func renderCorefile(s *Sequencer) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:53 {\n\thosts {\n", certs.InternalDomain)
	for _, svc := range certs.DefaultServices {
		fmt.Fprintf(&b, "\t\t127.0.0.1 %s.%s\n", svc, certs.InternalDomain)
	}
	b.WriteString("\t\tfallthrough\n\t}\n\tlog\n\terrors\n}\n\n")
	b.WriteString(".:53 {\n\tforward . 1.1.1.1 8.8.8.8\n\tcache 30\n\terrors\n}\n")
	return []byte(b.String()), nil
}
