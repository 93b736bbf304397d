// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Scheduler CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Scheduler - possession-factor auth for public scheduling",
		Long: `Scheduler is an account and session service built around Emoji ID
handles and calendar-feed possession credentials. No passwords, no email.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPurgeSessionsCmd())

	return cmd
}
