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

	"github.com/spf13/cobra"
)

var (
	installCmd = &cobra.Command{
		Use:   "install <component>",
		Short: "Install a component and its missing dependencies",
		Args:  exactArgs(1),
		RunE:  runInstall,
	}

	removeCmd = &cobra.Command{
		Use:   "remove <component>",
		Short: "Stop and uninstall a component, keeping its data",
		Args:  exactArgs(1),
		RunE:  runRemove,
	}
)

func runInstall(cmd *cobra.Command, args []string) error {
	name, err := cli.componentArg(args[0])
	if err != nil {
		return err
	}
	return cli.locked(cmd.Context(), func(ctx context.Context) error {
		if err := cli.sup.Install(ctx, name); err != nil {
			return err
		}
		cli.out.Success("%s installed (%s mode)", name, cli.inst.Mode())
		return nil
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	name, err := cli.componentArg(args[0])
	if err != nil {
		return err
	}
	return cli.locked(cmd.Context(), func(ctx context.Context) error {
		if err := cli.sup.Remove(ctx, name); err != nil {
			return err
		}
		cli.out.Success("%s removed", name)
		return nil
	})
}
