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
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/resilience"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/secrets"
)

type fakeRecords struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func (f *fakeRecords) Get(ctx context.Context, path string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.data[path]
	if !ok {
		return nil, secrets.ErrNotFound
	}
	out := make(map[string]string, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRecords) Put(ctx context.Context, path string, data map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = map[string]map[string]string{}
	}
	f.data[path] = data
	return nil
}

// fakeIdP records every request and answers the provisioning calls.
type fakeIdP struct {
	mu          sync.Mutex
	requests    []string
	bodies      map[string]map[string]any
	adminExists bool
	failPath    string
}

func (f *fakeIdP) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.mu.Unlock()

		if r.URL.Path != "/debug/ready" {
			assert.Equal(t, "Bearer pat-123", r.Header.Get("Authorization"))
		}
		var body map[string]any
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			if len(data) > 0 {
				assert.NoError(t, json.Unmarshal(data, &body))
			}
		}
		f.mu.Lock()
		if f.bodies == nil {
			f.bodies = map[string]map[string]any{}
		}
		f.bodies[r.URL.Path] = body
		f.mu.Unlock()

		if r.URL.Path == f.failPath {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}

		switch r.URL.Path {
		case "/debug/ready":
			w.WriteHeader(http.StatusOK)
		case "/v2/users":
			if f.adminExists {
				w.Write([]byte(`{"result":[{"userId":"u-0","username":"admin"}]}`))
				return
			}
			w.Write([]byte(`{"result":[]}`))
		case "/v2/organizations":
			w.Write([]byte(`{"organizationId":"org-1"}`))
		case "/v2/users/human":
			w.Write([]byte(`{"userId":"user-1"}`))
		case "/management/v1/projects":
			assert.Equal(t, "org-1", r.Header.Get("x-zitadel-orgid"))
			w.Write([]byte(`{"id":"proj-1"}`))
		case "/management/v1/projects/proj-1/apps/oidc":
			w.Write([]byte(`{"appId":"app-1","clientId":"client-1","clientSecret":"shh"}`))
		default:
			http.NotFound(w, r)
		}
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newProvisioner(t *testing.T, idp *fakeIdP) (*Provisioner, *fakeRecords, string) {
	t.Helper()
	srv := httptest.NewServer(idp.handler(t))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PATFile), []byte("pat-123\n"), 0600))

	store := &fakeRecords{data: map[string]map[string]string{
		secrets.PathDirectory: {"url": "https://old", "masterkey": "mk-keep"},
	}}
	return &Provisioner{
		BaseURL: srv.URL,
		HTTP:    srv.Client(),
		Dir:     dir,
		Store:   store,
		Sleep:   resilience.NoSleep,
		Logger:  quietLogger(),
	}, store, dir
}

func TestProvision_FreshInstance(t *testing.T) {
	idp := &fakeIdP{}
	p, store, dir := newProvisioner(t, idp)

	require.NoError(t, p.WaitReady(context.Background()))
	res, err := p.Provision(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	assert.Equal(t, "org-1", res.OrgID)
	assert.Equal(t, "user-1", res.UserID)
	assert.Equal(t, "proj-1", res.ProjectID)
	assert.Equal(t, "client-1", res.ClientID)
	assert.Len(t, res.Password, 16)

	assert.Equal(t, []string{
		"GET /debug/ready",
		"POST /v2/users",
		"POST /v2/organizations",
		"POST /v2/users/human",
		"POST /management/v1/projects",
		"POST /management/v1/projects/proj-1/apps/oidc",
	}, idp.requests)

	assert.Equal(t, "General Bots", idp.bodies["/v2/organizations"]["name"])
	human := idp.bodies["/v2/users/human"]
	assert.Equal(t, "admin", human["username"])
	assert.Equal(t, "org-1", human["organization"].(map[string]any)["orgId"])
	pw := human["password"].(map[string]any)
	assert.Equal(t, res.Password, pw["password"])
	assert.Equal(t, true, pw["changeRequired"])

	rec := store.data[secrets.PathDirectory]
	assert.Equal(t, "client-1", rec["client_id"])
	assert.Equal(t, "shh", rec["client_secret"])
	assert.Equal(t, "proj-1", rec["project_id"])
	assert.Equal(t, "mk-keep", rec["masterkey"])
	assert.Equal(t, p.BaseURL, rec["url"])

	path := filepath.Join(dir, CredentialsFile)
	assert.Equal(t, path, res.CredentialsAt)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Username: admin\n")
	assert.Contains(t, string(body), "Password: "+res.Password+"\n")
}

func TestProvision_SkipsWhenAdminExists(t *testing.T) {
	idp := &fakeIdP{adminExists: true}
	p, store, dir := newProvisioner(t, idp)

	res, err := p.Provision(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, []string{"POST /v2/users"}, idp.requests)
	assert.NotContains(t, store.data[secrets.PathDirectory], "client_id")
	assert.NoFileExists(t, filepath.Join(dir, CredentialsFile))
}

func TestProvision_MissingToken(t *testing.T) {
	p, _, dir := newProvisioner(t, &fakeIdP{})
	require.NoError(t, os.Remove(filepath.Join(dir, PATFile)))

	_, err := p.Provision(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, os.WriteFile(filepath.Join(dir, PATFile), []byte("  \n"), 0600))
	_, err = p.Provision(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestProvision_APIErrorStopsRun(t *testing.T) {
	idp := &fakeIdP{failPath: "/management/v1/projects"}
	p, store, _ := newProvisioner(t, idp)

	_, err := p.Provision(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "/management/v1/projects", apiErr.Path)
	assert.Equal(t, "boom", apiErr.Body)
	assert.NotContains(t, store.data[secrets.PathDirectory], "client_id")
}

func TestWaitReady_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := &Provisioner{
		BaseURL:       srv.URL,
		HTTP:          srv.Client(),
		ReadyAttempts: 3,
		Sleep:         resilience.NoSleep,
		Logger:        quietLogger(),
	}
	err := p.WaitReady(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestGenerateAdminPassword(t *testing.T) {
	for i := 0; i < 50; i++ {
		pw := GenerateAdminPassword()
		require.Len(t, pw, 16)

		var lower, upper, digit, special bool
		for _, r := range pw {
			switch {
			case unicode.IsLower(r):
				lower = true
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsDigit(r):
				digit = true
			case strings.ContainsRune(specialChars, r):
				special = true
			default:
				t.Fatalf("unexpected character %q in %q", r, pw)
			}
		}
		assert.True(t, lower && upper && digit && special, pw)
	}
}

func TestWriteConfig_WritesOnce(t *testing.T) {
	dir := t.TempDir()
	opts := ConfigOptions{
		Dir:           dir,
		DBPassword:    "zpw",
		AdminUser:     "gbuser",
		AdminPassword: "gbpw",
		CACert:        "/certs/ca.crt",
	}

	written, err := WriteConfig(opts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, ServerConfigFile),
		filepath.Join(dir, StepsFile),
	}, written)

	data, err := os.ReadFile(filepath.Join(dir, ServerConfigFile))
	require.NoError(t, err)
	var server serverConfig
	require.NoError(t, yaml.Unmarshal(data, &server))
	pg := server.Database.Postgres
	assert.Equal(t, "zitadel", pg.Database)
	assert.Equal(t, "zpw", pg.User.Password)
	assert.Equal(t, "gbuser", pg.Admin.Username)
	assert.Equal(t, "verify-full", pg.User.SSL.Mode)
	assert.Equal(t, "/certs/ca.crt", pg.Admin.SSL.RootCert)

	data, err = os.ReadFile(filepath.Join(dir, StepsFile))
	require.NoError(t, err)
	var steps stepsConfig
	require.NoError(t, yaml.Unmarshal(data, &steps))
	assert.Equal(t, filepath.Join(dir, PATFile), steps.FirstInstance.PatPath)
	assert.Equal(t, DefaultOrgName, steps.FirstInstance.Org.Name)

	info, err := os.Stat(filepath.Join(dir, ServerConfigFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(filepath.Join(dir, StepsFile), []byte("custom: true\n"), 0600))
	opts.DBPassword = "changed"
	written, err = WriteConfig(opts)
	require.NoError(t, err)
	assert.Empty(t, written)

	data, err = os.ReadFile(filepath.Join(dir, StepsFile))
	require.NoError(t, err)
	assert.Equal(t, "custom: true\n", string(data))
}
