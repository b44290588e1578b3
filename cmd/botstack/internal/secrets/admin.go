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
	"sort"
	"strings"
)

// Paths only written by operators or by MigrateEnv.
const (
	PathCustom = "gbo/custom"
	PathStripe = "gbo/stripe"
)

// KnownPath describes a record for listings.
type KnownPath struct {
	Path        string
	Description string
}

// KnownPaths lists every record the stack reads, in display order.
var KnownPaths = []KnownPath{
	{PathTables, "database connection"},
	{PathCustom, "custom database connection"},
	{PathDrive, "object storage credentials"},
	{PathCache, "cache password"},
	{PathDirectory, "identity provider client"},
	{PathLLM, "language model endpoints"},
	{PathEmail, "mail relay credentials"},
	{PathEncryption, "data encryption master key"},
	{PathStripe, "payment provider keys"},
}

// =============================================================================
// Operator input
// =============================================================================

// ParsePairs parses key=value arguments. Arguments without '=' or with an
// empty key are skipped; at least one pair is required.
func ParsePairs(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil, ErrNoPairs
	}
	return out, nil
}

// Mask hides values whose key looks sensitive, keeping the first four
// characters.
func Mask(key, value string) string {
	k := strings.ToLower(key)
	for _, word := range []string{"password", "secret", "key", "token"} {
		if strings.Contains(k, word) {
			return prefix(value, 4) + "..."
		}
	}
	return value
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// =============================================================================
// Env file migration
// =============================================================================

// envMapping maps env file keys to record fields at one path.
type envMapping struct {
	path   string
	fields [][2]string
}

var tablesFields = [][2]string{
	{"SERVER", "host"},
	{"PORT", "port"},
	{"DATABASE", "database"},
	{"USERNAME", "username"},
	{"PASSWORD", "password"},
}

func withPrefix(p string, fields [][2]string) [][2]string {
	out := make([][2]string, len(fields))
	for i, f := range fields {
		out[i] = [2]string{p + f[0], f[1]}
	}
	return out
}

var envMappings = []envMapping{
	{PathTables, withPrefix("TABLES_", tablesFields)},
	{PathCustom, withPrefix("CUSTOM_", tablesFields)},
	{PathDrive, [][2]string{
		{"DRIVE_SERVER", "server"},
		{"DRIVE_PORT", "port"},
		{"DRIVE_USE_SSL", "use_ssl"},
		{"DRIVE_ACCESSKEY", "accesskey"},
		{"DRIVE_SECRET", "secret"},
		{"DRIVE_ORG_PREFIX", "org_prefix"},
	}},
	{PathEmail, [][2]string{
		{"EMAIL_FROM", "from"},
		{"EMAIL_SERVER", "server"},
		{"EMAIL_PORT", "port"},
		{"EMAIL_USER", "username"},
		{"EMAIL_PASS", "password"},
		{"EMAIL_REJECT_UNAUTHORIZED", "reject_unauthorized"},
	}},
	{PathStripe, [][2]string{
		{"STRIPE_SECRET_KEY", "secret_key"},
		{"STRIPE_PROFESSIONAL_PLAN_PRICE_ID", "professional_plan_price_id"},
		{"STRIPE_PERSONAL_PLAN_PRICE_ID", "personal_plan_price_id"},
	}},
	{PathLLM, [][2]string{
		{"AI_KEY", "api_key"},
		{"AI_LLM_MODEL", "model"},
		{"AI_ENDPOINT", "endpoint"},
		{"AI_EMBEDDING_MODEL", "embedding_model"},
		{"AI_IMAGE_MODEL", "image_model"},
		{"LLM_LOCAL", "local"},
		{"LLM_CPP_PATH", "cpp_path"},
		{"LLM_URL", "url"},
		{"LLM_MODEL_PATH", "model_path"},
		{"EMBEDDING_MODEL_PATH", "embedding_model_path"},
		{"EMBEDDING_URL", "embedding_url"},
	}},
}

// MigrateEnv copies service credentials from a legacy env file into the
// store.
//
// # Description
//
// Each group of env keys maps to one record. Values found in env are
// merged over the existing record, so fields the file does not mention
// survive. Groups with no key present in env are left untouched.
//
// # Outputs
//
// The paths written, in mapping order.
func MigrateEnv(ctx context.Context, store Store, env map[string]string) ([]string, error) {
	var written []string
	for _, m := range envMappings {
		update := map[string]string{}
		for _, f := range m.fields {
			if v, ok := env[f[0]]; ok {
				update[f[1]] = v
			}
		}
		if len(update) == 0 {
			continue
		}
		rec, err := getOrEmpty(ctx, store, m.path)
		if err != nil {
			return written, err
		}
		for k, v := range update {
			rec[k] = v
		}
		if err := store.Put(ctx, m.path, rec); err != nil {
			return written, err
		}
		written = append(written, m.path)
	}
	return written, nil
}

func getOrEmpty(ctx context.Context, store Store, path string) (map[string]string, error) {
	rec, err := store.Get(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = map[string]string{}
	}
	return rec, nil
}

// =============================================================================
// Credential rotation
// =============================================================================

// Confirmation phrases for rotations that cannot be undone by rerunning.
const (
	ConfirmEncryption = "ROTATE"
	ConfirmAll        = "ROTATE ALL"
)

// Rotation is a planned credential change for one component. Nothing is
// written until Apply.
type Rotation struct {
	Component string
	Path      string

	// Record is the full record to write: the current fields with the
	// rotated ones replaced.
	Record map[string]string

	// Rotated names the replaced fields, sorted.
	Rotated []string

	// Instructions are the commands the operator runs so the service
	// accepts the new values.
	Instructions []string

	// Confirm is the phrase the operator must type; empty for a y/N prompt.
	Confirm string
}

// rotator lists the fields regenerated for one component and their
// lengths. A zero length means a 32-byte hex key.
type rotator struct {
	path    string
	fields  map[string]int
	confirm string
	steps   func(rec map[string]string) []string
}

var rotations = map[string]rotator{
	"tables": {
		path:   PathTables,
		fields: map[string]int{"password": 32},
		steps: func(rec map[string]string) []string {
			user := rec["username"]
			if user == "" {
				user = "postgres"
			}
			return []string{fmt.Sprintf("ALTER USER %s WITH PASSWORD '%s';", user, rec["password"])}
		},
	},
	"drive": {
		path:   PathDrive,
		fields: map[string]int{"accesskey": 20, "secret": 40},
		steps: func(rec map[string]string) []string {
			return []string{
				fmt.Sprintf("mc admin user add local %s %s", rec["accesskey"], rec["secret"]),
				fmt.Sprintf("mc admin policy attach local readwrite --user %s", rec["accesskey"]),
			}
		},
	},
	"cache": {
		path:   PathCache,
		fields: map[string]int{"password": 32},
		steps: func(rec map[string]string) []string {
			return []string{fmt.Sprintf("valkey-cli CONFIG SET requirepass '%s'", rec["password"])}
		},
	},
	"email": {
		path:   PathEmail,
		fields: map[string]int{"password": 24},
		steps: func(map[string]string) []string {
			return []string{"Update the mail relay account with the new password."}
		},
	},
	"directory": {
		path:   PathDirectory,
		fields: map[string]int{"client_secret": 48},
		steps: func(map[string]string) []string {
			return []string{"Update the client secret of the stack's application in the identity provider."}
		},
	},
	"encryption": {
		path:    PathEncryption,
		fields:  map[string]int{"master_key": 0},
		confirm: ConfirmEncryption,
		steps: func(map[string]string) []string {
			return []string{"Data encrypted with the old master key must be re-encrypted before it is discarded."}
		},
	},
}

// RotateAllComponents are rotated by rotate-secrets --all. The encryption
// key is excluded; it needs its own confirmation.
var RotateAllComponents = []string{"tables", "drive", "cache", "email", "directory"}

// RotatableComponents returns the components PlanRotation accepts, sorted.
func RotatableComponents() []string {
	names := make([]string, 0, len(rotations))
	for name := range rotations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PlanRotation generates new credentials for component without writing
// them. A missing record rotates into an empty one.
func PlanRotation(ctx context.Context, store Store, component string) (*Rotation, error) {
	rs, ok := rotations[component]
	if !ok {
		return nil, fmt.Errorf("%w %q (valid: %s)", ErrUnknownRotation, component, strings.Join(RotatableComponents(), ", "))
	}
	rec, err := getOrEmpty(ctx, store, rs.path)
	if err != nil {
		return nil, err
	}
	rot := &Rotation{
		Component: component,
		Path:      rs.path,
		Record:    rec,
		Confirm:   rs.confirm,
	}
	for field, n := range rs.fields {
		if n == 0 {
			rec[field] = randomHex(32)
		} else {
			rec[field] = GeneratePassword(n)
		}
		rot.Rotated = append(rot.Rotated, field)
	}
	sort.Strings(rot.Rotated)
	rot.Instructions = rs.steps(rec)
	return rot, nil
}

// Apply writes the rotated record.
func (r *Rotation) Apply(ctx context.Context, store Store) error {
	if err := store.Put(ctx, r.Path, r.Record); err != nil {
		return fmt.Errorf("rotate %s: %w", r.Component, err)
	}
	return nil
}
