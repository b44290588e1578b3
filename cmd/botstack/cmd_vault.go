// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/secrets"
)

// newStore opens the secrets store client. Tests replace it with a
// MemoryStore.
var newStore = func(cfg secrets.VaultConfig) (secrets.Store, error) {
	s, err := secrets.NewVaultStore(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

var (
	vaultReveal bool
	rotateYes   bool
	rotateAll   bool
)

var (
	vaultCmd = &cobra.Command{
		Use:   "vault",
		Short: "Read and write records in the secrets store",
		Long: `vault talks to the secrets store with the address and token from the
env file written by bootstrap. VAULT_ADDR and VAULT_TOKEN in the process
environment take precedence.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	vaultPutCmd = &cobra.Command{
		Use:   "put <path> <key=value>...",
		Short: "Merge key=value pairs into a record",
		Args:  minArgs(2),
		RunE:  runVaultPut,
	}

	vaultGetCmd = &cobra.Command{
		Use:   "get <path> [key]",
		Short: "Print a record, or one field of it unmasked",
		Args:  rangeArgs(1, 2),
		RunE:  runVaultGet,
	}

	vaultListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the records the stack reads and whether they exist",
		Args:  noArgs,
		RunE:  runVaultList,
	}

	vaultHealthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check that the secrets store answers and is unsealed",
		Args:  noArgs,
		RunE:  runVaultHealth,
	}

	vaultMigrateCmd = &cobra.Command{
		Use:   "migrate [env-file]",
		Short: "Copy service credentials from an env file into the store",
		Args:  rangeArgs(0, 1),
		RunE:  runVaultMigrate,
	}

	rotateSecretCmd = &cobra.Command{
		Use:   "rotate-secret <component>",
		Short: "Generate new credentials for one component",
		Long: `rotate-secret replaces a component's credentials in the secrets store
and prints the commands that make the running service accept them. The
service keeps the old credentials until those commands are run.`,
		Args: exactArgs(1),
		RunE: runRotateSecret,
	}

	rotateSecretsCmd = &cobra.Command{
		Use:   "rotate-secrets --all",
		Short: "Generate new credentials for every service component",
		Args:  noArgs,
		RunE:  runRotateSecrets,
	}
)

func init() {
	vaultGetCmd.Flags().BoolVar(&vaultReveal, "reveal", false, "print sensitive values unmasked")
	rotateSecretCmd.Flags().BoolVarP(&rotateYes, "yes", "y", false, "skip the confirmation prompt")
	rotateSecretsCmd.Flags().BoolVarP(&rotateYes, "yes", "y", false, "skip the confirmation prompt")
	rotateSecretsCmd.Flags().BoolVar(&rotateAll, "all", false, "rotate "+strings.Join(secrets.RotateAllComponents, ", "))

	vaultCmd.AddCommand(vaultPutCmd, vaultGetCmd, vaultListCmd, vaultHealthCmd, vaultMigrateCmd)
}

// minArgs is cobra.MinimumNArgs with usage errors.
func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return usageErr("%s expects at least %d argument(s), got %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}

// rangeArgs is cobra.RangeArgs with usage errors.
func rangeArgs(lo, hi int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < lo || len(args) > hi {
			return usageErr("%s expects %d to %d argument(s), got %d", cmd.CommandPath(), lo, hi, len(args))
		}
		return nil
	}
}

// =============================================================================
// Store access
// =============================================================================

// vaultClient is an authenticated store with a resolver over it.
type vaultClient struct {
	store    secrets.Store
	resolver *secrets.Resolver
}

// vault opens the store with the env file's credentials.
func (a *app) vault() (*vaultClient, error) {
	creds, err := secrets.LoadCredentialsEnv(a.cfg.Secrets.EnvFile, os.Getenv)
	if errors.Is(err, secrets.ErrNotConfigured) {
		return nil, &secrets.RemediationError{Err: err, Steps: []string{
			"Run 'botstack bootstrap' to initialize the secrets store",
			"Or export " + secrets.EnvAddr + " and " + secrets.EnvToken,
		}}
	}
	if err != nil {
		return nil, err
	}
	store, err := newStore(creds.VaultConfig())
	if err != nil {
		return nil, err
	}
	store.SetToken(creds.Token)
	return &vaultClient{store: store, resolver: secrets.NewResolver(store, creds)}, nil
}

// =============================================================================
// vault subcommands
// =============================================================================

func runVaultPut(cmd *cobra.Command, args []string) error {
	path := args[0]
	pairs, err := secrets.ParsePairs(args[1:])
	if err != nil {
		return usageErr("%v", err)
	}
	vc, err := cli.vault()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rec, err := vc.resolver.Get(ctx, path)
	if errors.Is(err, secrets.ErrNotFound) {
		rec = map[string]string{}
	} else if err != nil {
		return err
	}
	for k, v := range pairs {
		rec[k] = v
	}
	if err := vc.store.Put(ctx, path, rec); err != nil {
		return err
	}
	vc.resolver.Invalidate(path)
	cli.logger.Info("Secret record written", "path", path, "fields", len(pairs))
	cli.out.Success("Stored %d field(s) at %s", len(pairs), path)
	return nil
}

func runVaultGet(cmd *cobra.Command, args []string) error {
	vc, err := cli.vault()
	if err != nil {
		return err
	}
	rec, err := vc.resolver.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(args) == 2 {
		v, ok := rec[args[1]]
		if !ok {
			return fmt.Errorf("%s has no field %q", args[0], args[1])
		}
		cli.out.Info("%s", v)
		return nil
	}
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := rec[k]
		if !vaultReveal {
			v = secrets.Mask(k, v)
		}
		cli.out.Info("%s=%s", k, v)
	}
	return nil
}

func runVaultList(cmd *cobra.Command, args []string) error {
	vc, err := cli.vault()
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(secrets.KnownPaths))
	for _, p := range secrets.KnownPaths {
		_, err := vc.resolver.Get(cmd.Context(), p.Path)
		switch {
		case err == nil:
			rows = append(rows, []string{p.Path, p.Description, "yes"})
		case errors.Is(err, secrets.ErrNotFound):
			rows = append(rows, []string{p.Path, p.Description, "no"})
		default:
			return err
		}
	}
	cli.out.Table([]string{"PATH", "DESCRIPTION", "STORED"}, rows)
	return nil
}

func runVaultHealth(cmd *cobra.Command, args []string) error {
	vc, err := cli.vault()
	if err != nil {
		return err
	}
	h, err := vc.store.Health(cmd.Context())
	if err != nil {
		return err
	}
	switch {
	case !h.Initialized:
		return errors.New("secrets store is not initialized; run 'botstack bootstrap'")
	case h.Sealed:
		return errors.New("secrets store is sealed; run 'botstack start' to unseal it")
	}
	cli.out.Success("Secrets store healthy at %s", cli.cfg.Secrets.Addr)
	return nil
}

func runVaultMigrate(cmd *cobra.Command, args []string) error {
	file := cli.cfg.Secrets.EnvFile
	if len(args) == 1 {
		file = args[0]
	}
	env, err := secrets.ReadEnvFile(file)
	if err != nil {
		return err
	}
	vc, err := cli.vault()
	if err != nil {
		return err
	}
	paths, err := secrets.MigrateEnv(cmd.Context(), vc.store, env)
	for _, p := range paths {
		cli.out.Success("Migrated %s", p)
	}
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		cli.out.Warning("No service credentials found in %s", file)
		return nil
	}
	cli.logger.Info("Migrated env file into secrets store", "file", file, "paths", len(paths))
	cli.out.Info("Remove the migrated keys from %s; keep only the %s entries.", file, "VAULT_*")
	return nil
}

// =============================================================================
// Rotation
// =============================================================================

func runRotateSecret(cmd *cobra.Command, args []string) error {
	vc, err := cli.vault()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rot, err := secrets.PlanRotation(ctx, vc.store, args[0])
	if errors.Is(err, secrets.ErrUnknownRotation) {
		return usageErr("%v", err)
	}
	if err != nil {
		return err
	}
	printRotation(rot)
	if !rotateYes && !confirm(cmd.InOrStdin(), rot.Confirm) {
		cli.out.Warning("Aborted; nothing was written")
		return nil
	}
	return applyRotations(ctx, vc, rot)
}

func runRotateSecrets(cmd *cobra.Command, args []string) error {
	if !rotateAll {
		return usageErr("%s requires --all", cmd.CommandPath())
	}
	vc, err := cli.vault()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rots := make([]*secrets.Rotation, 0, len(secrets.RotateAllComponents))
	for _, name := range secrets.RotateAllComponents {
		rot, err := secrets.PlanRotation(ctx, vc.store, name)
		if err != nil {
			return err
		}
		printRotation(rot)
		rots = append(rots, rot)
	}
	if !rotateYes && !confirm(cmd.InOrStdin(), secrets.ConfirmAll) {
		cli.out.Warning("Aborted; nothing was written")
		return nil
	}
	return applyRotations(ctx, vc, rots...)
}

func printRotation(rot *secrets.Rotation) {
	cli.out.Title("Rotating " + rot.Component)
	for _, field := range rot.Rotated {
		cli.out.Info("New %s: %s", field, secrets.Mask(field, rot.Record[field]))
	}
	cli.out.Warning("%s keeps its old credentials until you run:", rot.Component)
	for _, step := range rot.Instructions {
		cli.out.Info("  %s", step)
	}
}

func applyRotations(ctx context.Context, vc *vaultClient, rots ...*secrets.Rotation) error {
	for _, rot := range rots {
		if err := rot.Apply(ctx, vc.store); err != nil {
			return err
		}
		vc.resolver.Invalidate(rot.Path)
		cli.logger.Info("Rotated credentials", "component", rot.Component, "path", rot.Path, "fields", rot.Rotated)
		cli.out.Success("%s credentials saved", rot.Component)
	}
	return nil
}

// confirm reads one line from in. An empty phrase accepts y or yes.
func confirm(in io.Reader, phrase string) bool {
	if phrase == "" {
		cli.out.Info("Save to the secrets store? [y/N]")
	} else {
		cli.out.Info("Type %s to confirm:", phrase)
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	line = strings.TrimSpace(line)
	if phrase == "" {
		l := strings.ToLower(line)
		return l == "y" || l == "yes"
	}
	return line == phrase
}
