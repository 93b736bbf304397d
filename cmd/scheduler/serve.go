// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/dajbelshaw/Scheduler/internal/auth"
	authpg "github.com/dajbelshaw/Scheduler/internal/auth/postgres"
	"github.com/dajbelshaw/Scheduler/internal/config"
	"github.com/dajbelshaw/Scheduler/internal/httpapi"
	"github.com/dajbelshaw/Scheduler/internal/logging"
	"github.com/dajbelshaw/Scheduler/internal/observability"
	"github.com/dajbelshaw/Scheduler/internal/store"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth HTTP server",
		Long: `Start the HTTP server exposing the auth API, plus a separate
metrics/health endpoint for operations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd, cfg)
		},
	}

	// Flag defaults mirror config.Default so an unset flag never shadows
	// a file value.
	defaults := config.Default()
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().String("listen-addr", defaults.ListenAddr, "API listen address")
	cmd.Flags().String("metrics-addr", defaults.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaults.LogFormat, "log format (json or text)")
	cmd.Flags().Bool("migrate-on-start", false, "run pending migrations before serving")

	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	logging.SetDefault("scheduler", version, cfg.LogFormat)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if cfg.MigrateOnStart {
		migrator, err := store.NewMigrator(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if err := migrator.Up(); err != nil {
			_ = migrator.Close()
			return err
		}
		if err := migrator.Close(); err != nil {
			return err
		}
		slog.Info("migrations applied")
	}

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	slog.Info("connected to database")

	accounts := authpg.NewAccountRepository(pool)
	sessions := authpg.NewSessionRepository(pool)
	codes := authpg.NewRecoveryCodeRepository(pool)
	tx := authpg.NewTransactor(pool)

	hasher := auth.NewPBKDF2Hasher()
	alloc := auth.NewAllocator(accounts, cfg.Auth.AllocatorMaxAttempts)
	checker := auth.NewFeedChecker(cfg.Auth.FeedTimeout)

	authSvc := auth.NewService(accounts, sessions, codes, hasher, alloc, checker, tx).
		WithSessionTTL(cfg.Auth.SessionTTL)
	recoverySvc := auth.NewRecoveryService(accounts, sessions, codes, hasher, checker).
		WithSessionTTL(cfg.Auth.SessionTTL)

	// Observability server (optional)
	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(ctx, time.Second)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		})
		metrics = obsServer.Metrics()

		obsErrCh, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	api := httpapi.NewServer(authSvc, recoverySvc, slog.Default(), metrics)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cmd.Println("Scheduler auth server started")
	slog.Info("auth server ready", "addr", cfg.ListenAddr)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return oops.Code("SERVER_FAILED").With("addr", cfg.ListenAddr).Wrap(err)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("error stopping auth server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels the run context when a background server
// reports a failure.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			slog.Error("background server failed", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
