// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package main

import (
	"github.com/spf13/cobra"

	authpg "github.com/dajbelshaw/Scheduler/internal/auth/postgres"
	"github.com/dajbelshaw/Scheduler/internal/config"
	"github.com/dajbelshaw/Scheduler/internal/store"
)

// NewPurgeSessionsCmd creates the purge-sessions subcommand. Purging is
// driven by an external schedule (cron), never by request traffic.
func NewPurgeSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge-sessions",
		Short: "Delete expired sessions",
		Long: `Delete all sessions past their expiry. Safe to run concurrently
with a live server; expired sessions are already unusable.`,
		RunE: runPurgeSessions,
	}

	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")

	return cmd
}

func runPurgeSessions(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	sessions := authpg.NewSessionRepository(pool)
	purged, err := sessions.DeleteExpired(ctx)
	if err != nil {
		return err
	}

	cmd.Printf("Purged %d expired sessions\n", purged)
	return nil
}
