// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/digitalwardrobe/authd/internal/auth"
	authpg "github.com/digitalwardrobe/authd/internal/auth/postgres"
	"github.com/digitalwardrobe/authd/internal/config"
	"github.com/digitalwardrobe/authd/internal/logging"
	"github.com/digitalwardrobe/authd/internal/observability"
	"github.com/digitalwardrobe/authd/internal/store"
	"github.com/digitalwardrobe/authd/pkg/errutil"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the serve subcommand with all flags configured.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth service",
		Long: `Start the auth service: connect to PostgreSQL, apply pending schema
migrations, and run the session sweeper and observability endpoints until
interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}

	defaults := config.Default()
	cmd.Flags().String("log-format", defaults.LogFormat, "log format (json or text)")
	cmd.Flags().String("metrics-addr", defaults.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().Bool("auto-migrate", true, "apply pending schema migrations on startup")

	return cmd
}

// runServe starts the auth service process.
func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("authd", version, cfg.LogFormat)
	logger := slog.Default()

	logger.Info("starting auth service",
		"metrics_addr", cfg.MetricsAddr,
		"hasher", cfg.Auth.Hasher,
		"log_format", cfg.LogFormat,
	)

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		errutil.LogError(logger, "database connect failed", err)
		return err
	}
	defer pool.Close()

	if autoMigrate, _ := cmd.Flags().GetBool("auto-migrate"); autoMigrate {
		migrator, migErr := store.NewMigrator(cfg.DatabaseURL)
		if migErr != nil {
			return migErr
		}
		if upErr := migrator.Up(); upErr != nil {
			_ = migrator.Close() //nolint:errcheck // migration error takes precedence
			return upErr
		}
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
		logger.Info("schema migrations applied")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Ready once the pool answers pings.
	obsServer := observability.NewServer(cfg.MetricsAddr, func() bool {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer pingCancel()
		return pool.Ping(pingCtx) == nil
	})

	var obsErrCh <-chan error
	if cfg.MetricsAddr != "" {
		obsErrCh, err = obsServer.Start()
		if err != nil {
			return err
		}
	}

	metrics := auth.NewMetrics(obsServer.Registry())

	hasher, err := cfg.NewHasher()
	if err != nil {
		return err
	}

	issuer, err := auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	if err != nil {
		return err
	}

	users := authpg.NewUserRepository(pool)
	sessions := authpg.NewSessionRepository(pool)

	// Constructing the service validates the full dependency wiring before
	// the process reports ready.
	if _, err = auth.NewService(users, sessions, hasher, issuer,
		auth.WithLogger(logger),
		auth.WithMetrics(metrics),
		auth.WithSessionTTL(cfg.Auth.SessionTTL),
	); err != nil {
		return err
	}

	sweeper := auth.NewSweeper(sessions, cfg.Auth.SweepInterval, logger, metrics)
	sweeper.Start(ctx)

	cmd.Println("Auth service started")
	logger.Info("auth service ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case obsErr, ok := <-obsErrCh:
		if ok && obsErr != nil {
			errutil.LogError(logger, "observability server failed", obsErr)
		}
	case <-ctx.Done():
	}

	cancel()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
		errutil.LogError(logger, "observability shutdown failed", stopErr)
	}

	logger.Info("auth service stopped")
	return nil
}
