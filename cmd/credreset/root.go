// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/credreset/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the credreset CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmdWithDeps(nil)
}

func newRootCmdWithDeps(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credreset",
		Short: "credreset - password reset and credential lifecycle",
		Long: `credreset manages the password reset lifecycle: it issues single-use,
short-lived reset tokens, delivers them out of band, and rotates a user's
credential atomically when a valid token is redeemed.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewIssueResetCmd(deps))
	cmd.AddCommand(NewValidateTokenCmd(deps))
	cmd.AddCommand(NewCompleteResetCmd(deps))
	cmd.AddCommand(NewCheckCredentialCmd(deps))
	cmd.AddCommand(NewSweepCmd(deps))

	return cmd
}
