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
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/resilience"
	"github.com/AleutianAI/botstack/cmd/botstack/internal/secrets"
)

// Provisioning defaults.
const (
	DefaultOrgName       = "General Bots"
	DefaultAdminUser     = "admin"
	DefaultReadyAttempts = 60
	DefaultReadyInterval = time.Second
	DefaultProjectName   = "BotServer"
	DefaultRedirectURI   = "https://localhost:8080/auth/callback"
	DefaultPostLogoutURI = "https://localhost:8080"
	adminPasswordLength  = 16
	maxErrorBody         = 512
)

// RecordStore is where the OIDC client credentials are written.
type RecordStore interface {
	Get(ctx context.Context, path string) (map[string]string, error)
	Put(ctx context.Context, path string, data map[string]string) error
}

// Result describes a provisioning run.
type Result struct {
	// Skipped is true when an admin user already existed.
	Skipped bool

	OrgID         string
	UserID        string
	Username      string
	Password      string
	ProjectID     string
	ClientID      string
	ClientSecret  string
	LoginURL      string
	CredentialsAt string
}

// Provisioner performs first-run setup against the identity provider's API.
type Provisioner struct {
	BaseURL string
	HTTP    *http.Client

	// Dir is conf/directory; the PAT and setup credentials live there.
	Dir string

	Store RecordStore

	OrgName     string
	AdminUser   string
	RedirectURI string

	ReadyAttempts int
	ReadyInterval time.Duration
	Sleep         resilience.SleepFunc

	Now    func() time.Time
	Logger *slog.Logger

	token string
}

func (p *Provisioner) defaults() {
	if p.HTTP == nil {
		p.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	if p.OrgName == "" {
		p.OrgName = DefaultOrgName
	}
	if p.AdminUser == "" {
		p.AdminUser = DefaultAdminUser
	}
	if p.RedirectURI == "" {
		p.RedirectURI = DefaultRedirectURI
	}
	if p.ReadyAttempts <= 0 {
		p.ReadyAttempts = DefaultReadyAttempts
	}
	if p.ReadyInterval <= 0 {
		p.ReadyInterval = DefaultReadyInterval
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	p.BaseURL = strings.TrimRight(p.BaseURL, "/")
}

// WaitReady polls /debug/ready until it answers 2xx.
func (p *Provisioner) WaitReady(ctx context.Context) error {
	p.defaults()
	err := resilience.Retry(ctx, resilience.RetryConfig{
		Attempts: p.ReadyAttempts,
		Interval: p.ReadyInterval,
		Sleep:    p.Sleep,
	}, func(ctx context.Context, attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/debug/ready", nil)
		if err != nil {
			return resilience.Permanent(err)
		}
		resp, err := p.HTTP.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return nil
}

// Provision creates the organization, admin user and OIDC application if
// no admin user exists yet.
//
// # Outputs
//
//   - *Result: IDs and one-time credentials; Skipped when an admin exists.
//   - error: ErrNoToken, *APIError, or a store/file error.
func (p *Provisioner) Provision(ctx context.Context) (*Result, error) {
	p.defaults()
	if err := p.loadToken(); err != nil {
		return nil, err
	}

	exists, err := p.adminExists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		p.Logger.Info("Identity provider admin already exists, skipping provisioning")
		return &Result{Skipped: true, Username: p.AdminUser}, nil
	}

	res := &Result{Username: p.AdminUser, LoginURL: p.BaseURL + "/ui/login"}

	if res.OrgID, err = p.createOrg(ctx); err != nil {
		return nil, err
	}
	res.Password = GenerateAdminPassword()
	if res.UserID, err = p.createAdmin(ctx, res.OrgID, res.Password); err != nil {
		return nil, err
	}
	if res.ProjectID, res.ClientID, res.ClientSecret, err = p.createOIDCApp(ctx, res.OrgID); err != nil {
		return nil, err
	}
	if err := p.storeClient(ctx, res); err != nil {
		return nil, err
	}

	path, err := p.writeSetupCredentials(res)
	if err != nil {
		return nil, err
	}
	res.CredentialsAt = path

	p.Logger.Info("Identity provider provisioned",
		"org_id", res.OrgID,
		"user_id", res.UserID,
		"client_id", res.ClientID,
		"credentials", path)
	return res, nil
}

func (p *Provisioner) loadToken() error {
	data, err := os.ReadFile(filepath.Join(p.Dir, PATFile))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoToken, err)
	}
	p.token = strings.TrimSpace(string(data))
	if p.token == "" {
		return fmt.Errorf("%w: %s is empty", ErrNoToken, PATFile)
	}
	return nil
}

func (p *Provisioner) adminExists(ctx context.Context) (bool, error) {
	body := map[string]any{
		"query": map[string]any{"limit": 10},
		"queries": []any{
			map[string]any{"userNameQuery": map[string]any{
				"userName": p.AdminUser,
				"method":   "TEXT_QUERY_METHOD_EQUALS",
			}},
		},
	}
	var out struct {
		Result []struct {
			UserID   string `json:"userId"`
			Username string `json:"username"`
		} `json:"result"`
	}
	if err := p.call(ctx, http.MethodPost, "/v2/users", "", body, &out); err != nil {
		return false, err
	}
	for _, u := range out.Result {
		if strings.EqualFold(u.Username, p.AdminUser) {
			return true, nil
		}
	}
	return false, nil
}

func (p *Provisioner) createOrg(ctx context.Context) (string, error) {
	var out struct {
		OrganizationID string `json:"organizationId"`
	}
	if err := p.call(ctx, http.MethodPost, "/v2/organizations", "", map[string]any{"name": p.OrgName}, &out); err != nil {
		return "", err
	}
	if out.OrganizationID == "" {
		return "", fmt.Errorf("%w: organizationId", ErrMissingField)
	}
	return out.OrganizationID, nil
}

func (p *Provisioner) createAdmin(ctx context.Context, orgID, password string) (string, error) {
	body := map[string]any{
		"username":     p.AdminUser,
		"organization": map[string]any{"orgId": orgID},
		"profile": map[string]any{
			"givenName":   "System",
			"familyName":  "Administrator",
			"displayName": "System Administrator",
		},
		"email": map[string]any{
			"email":      p.AdminUser + "@localhost",
			"isVerified": true,
		},
		"password": map[string]any{
			"password":       password,
			"changeRequired": true,
		},
	}
	var out struct {
		UserID string `json:"userId"`
	}
	if err := p.call(ctx, http.MethodPost, "/v2/users/human", "", body, &out); err != nil {
		return "", err
	}
	if out.UserID == "" {
		return "", fmt.Errorf("%w: userId", ErrMissingField)
	}
	return out.UserID, nil
}

func (p *Provisioner) createOIDCApp(ctx context.Context, orgID string) (projectID, clientID, clientSecret string, err error) {
	var project struct {
		ID string `json:"id"`
	}
	if err := p.call(ctx, http.MethodPost, "/management/v1/projects", orgID, map[string]any{"name": DefaultProjectName}, &project); err != nil {
		return "", "", "", err
	}
	if project.ID == "" {
		return "", "", "", fmt.Errorf("%w: project id", ErrMissingField)
	}

	app := map[string]any{
		"name":                   DefaultProjectName,
		"redirectUris":           []string{p.RedirectURI},
		"responseTypes":          []string{"OIDC_RESPONSE_TYPE_CODE"},
		"grantTypes":             []string{"OIDC_GRANT_TYPE_AUTHORIZATION_CODE", "OIDC_GRANT_TYPE_REFRESH_TOKEN"},
		"appType":                "OIDC_APP_TYPE_WEB",
		"authMethodType":         "OIDC_AUTH_METHOD_TYPE_BASIC",
		"postLogoutRedirectUris": []string{DefaultPostLogoutURI},
	}
	var out struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}
	if err := p.call(ctx, http.MethodPost, "/management/v1/projects/"+project.ID+"/apps/oidc", orgID, app, &out); err != nil {
		return "", "", "", err
	}
	if out.ClientID == "" {
		return "", "", "", fmt.Errorf("%w: clientId", ErrMissingField)
	}
	return project.ID, out.ClientID, out.ClientSecret, nil
}

// storeClient merges the OIDC credentials into the directory record and
// keeps every other field (the master key in particular).
func (p *Provisioner) storeClient(ctx context.Context, res *Result) error {
	if p.Store == nil {
		return nil
	}
	rec, err := p.Store.Get(ctx, secrets.PathDirectory)
	if err != nil && !errors.Is(err, secrets.ErrNotFound) {
		return err
	}
	if rec == nil {
		rec = map[string]string{}
	}
	rec["url"] = p.BaseURL
	rec["project_id"] = res.ProjectID
	rec["client_id"] = res.ClientID
	rec["client_secret"] = res.ClientSecret
	return p.Store.Put(ctx, secrets.PathDirectory, rec)
}

func (p *Provisioner) writeSetupCredentials(res *Result) (string, error) {
	path := filepath.Join(p.Dir, CredentialsFile)
	var b strings.Builder
	fmt.Fprintf(&b, "# Initial administrator login\n")
	fmt.Fprintf(&b, "# Created: %s\n", p.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "# Delete this file after the first login.\n\n")
	fmt.Fprintf(&b, "Username: %s\n", res.Username)
	fmt.Fprintf(&b, "Password: %s\n", res.Password)
	fmt.Fprintf(&b, "Email:    %s@localhost\n", res.Username)
	fmt.Fprintf(&b, "Login:    %s\n\n", res.LoginURL)
	fmt.Fprintf(&b, "The password is one-time: a new one is required on first login.\n")
	fmt.Fprintf(&b, "Console access with the machine token in %s.\n", filepath.Join(p.Dir, PATFile))

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return "", err
	}
	return path, os.Chmod(path, 0600)
}

func (p *Provisioner) call(ctx context.Context, method, path, orgID string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if orgID != "" {
		req.Header.Set("x-zitadel-orgid", orgID)
	}

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Passwords
// -----------------------------------------------------------------------------

const (
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
	specialChars = "!@#$%&*"
)

// GenerateAdminPassword returns a 16 character password with at least one
// lowercase, uppercase, digit and special character, shuffled.
func GenerateAdminPassword() string {
	all := lowerChars + upperChars + digitChars + specialChars
	out := []byte{
		pick(lowerChars), pick(upperChars), pick(digitChars), pick(specialChars),
	}
	for len(out) < adminPasswordLength {
		out = append(out, pick(all))
	}
	for i := len(out) - 1; i > 0; i-- {
		j := randInt(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func pick(set string) byte { return set[randInt(len(set))] }

func randInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("directory: crypto/rand failed: " + err.Error())
	}
	return int(v.Int64())
}
