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
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// annotationNoApp marks commands that run without configuration.
const annotationNoApp = "botstack.no-app"

var (
	// Global flags
	containerMode   bool
	tenant          string
	configPath      string
	personalityFlag string
	verbose         bool

	// cli is built by the root PersistentPreRunE for every subcommand
	// not annotated with annotationNoApp.
	cli *app
)

var rootCmd = &cobra.Command{
	Use:   "botstack",
	Short: "Install, bootstrap and supervise a self-hosted bot platform stack",
	Long: `botstack installs the platform's components on this host (or in LXC
containers with --container), bootstraps the secrets store, database and
identity provider, and starts or stops everything in dependency order.`,
	Args:          noArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.HasParent() || cmd.Name() == "help" || cmd.Annotations[annotationNoApp] == "true" {
			return nil
		}
		a, err := newApp(appOptions{
			ConfigPath:  configPath,
			Container:   containerMode,
			Tenant:      tenant,
			Personality: personalityFlag,
			Verbose:     verbose,
			Out:         cmd.OutOrStdout(),
			Err:         cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		cli = a
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&containerMode, "container", false, "install and run components in LXC containers")
	flags.StringVar(&tenant, "tenant", "default", "tenant prefix for container names")
	flags.StringVar(&configPath, "config", "", "config file (default ~/.botstack/botstack.yaml)")
	flags.StringVar(&personalityFlag, "personality", "", "output style: standard, minimal or machine")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	rootCmd.AddCommand(startCmd, stopCmd, restartCmd, bootstrapCmd)
	rootCmd.AddCommand(installCmd, removeCmd, listCmd, statusCmd)
	rootCmd.AddCommand(vaultCmd, rotateSecretCmd, rotateSecretsCmd)
	rootCmd.AddCommand(versionCmd)
}

// execute runs the root command with args and returns the exit code.
// SIGINT and SIGTERM cancel the command's context.
func execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if cli != nil {
		if cerr := cli.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			cli.out.Error("%v", err)
		}
		cli = nil
	} else if err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	}

	code := exitCode(err)
	if code == exitUsage {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Run '%s --help' for usage.\n", rootCmd.Name())
	}
	return code
}
