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
	"runtime"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/bootstrap"
)

var (
	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the stack, bootstrapping it on first run",
		Args:  noArgs,
		RunE:  runStart,
	}

	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop every installed component, the secrets store last",
		Args:  noArgs,
		RunE:  runStop,
	}

	restartCmd = &cobra.Command{
		Use:   "restart",
		Short: "Stop then start the stack",
		Args:  noArgs,
		RunE:  runRestart,
	}

	bootstrapCmd = &cobra.Command{
		Use:   "bootstrap",
		Short: "Run the full bootstrap sequence even on a bootstrapped host",
		Long: `bootstrap creates or reuses certificates, initializes or unseals the
secrets store, creates the database and applies migrations, provisions the
identity provider and starts the remaining components. Every step is
idempotent, so running it again on a healthy stack changes nothing.`,
		Args: noArgs,
		RunE: runBootstrap,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List components with their install and run state",
		Args:  noArgs,
		RunE:  runList,
	}

	statusCmd = &cobra.Command{
		Use:   "status <component>",
		Short: "Show whether one component is installed and running",
		Args:  exactArgs(1),
		RunE:  runStatus,
	}

	versionCmd = &cobra.Command{
		Use:         "version",
		Short:       "Print the botstack version",
		Args:        noArgs,
		Annotations: map[string]string{annotationNoApp: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "botstack %s (%s/%s, %s)\n", Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
)

func runStart(cmd *cobra.Command, args []string) error {
	return cli.locked(cmd.Context(), func(ctx context.Context) error {
		return cli.start(ctx)
	})
}

func runStop(cmd *cobra.Command, args []string) error {
	return cli.locked(cmd.Context(), func(ctx context.Context) error {
		if err := cli.sup.StopAll(ctx); err != nil {
			return err
		}
		cli.out.Success("Stack stopped")
		return nil
	})
}

func runRestart(cmd *cobra.Command, args []string) error {
	return cli.locked(cmd.Context(), func(ctx context.Context) error {
		done, err := cli.sup.Bootstrapped(ctx)
		if err != nil {
			return err
		}
		if !done {
			// Nothing to restart yet; start bootstraps the host.
			return cli.start(ctx)
		}
		if err := cli.sup.StopAll(ctx); err != nil {
			cli.out.Warning("Some components did not stop: %v", err)
		}
		res, err := cli.sup.StartAll(ctx)
		cli.report(res)
		if err != nil {
			return err
		}
		cli.out.Success("Stack restarted (%s mode)", cli.inst.Mode())
		return nil
	})
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	return cli.locked(cmd.Context(), func(ctx context.Context) error {
		cli.out.Title("Bootstrapping " + cli.cfg.Stack.Path)
		res, err := cli.sup.Sequencer().Bootstrap(ctx)
		cli.report(res)
		if err != nil {
			return err
		}
		cli.out.Success("Bootstrap complete (run %s)", res.RunID)
		return nil
	})
}

func runList(cmd *cobra.Command, args []string) error {
	rows := [][]string{}
	for _, st := range cli.sup.List(cmd.Context()) {
		rows = append(rows, []string{st.Name, yesNo(st.Installed), yesNo(st.Running)})
	}
	cli.out.Table([]string{"NAME", "INSTALLED", "RUNNING"}, rows)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	name, err := cli.componentArg(args[0])
	if err != nil {
		return err
	}
	st, err := cli.sup.Status(cmd.Context(), name)
	if err != nil {
		return err
	}
	return cli.printStatus(st)
}

// start brings the stack up and reports the outcome.
func (a *app) start(ctx context.Context) error {
	res, err := a.sup.EnsureServicesRunning(ctx)
	a.report(res)
	if err != nil {
		return err
	}
	a.out.Success("Stack running (%s mode)", a.inst.Mode())
	return nil
}

// printStatus prints st and returns an error unless the component runs.
func (a *app) printStatus(st bootstrap.ComponentStatus) error {
	switch {
	case !st.Installed:
		return fmt.Errorf("%s is not installed", st.Name)
	case !st.Running:
		return fmt.Errorf("%s is installed but not running", st.Name)
	}
	a.out.Success("%s is running", st.Name)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
