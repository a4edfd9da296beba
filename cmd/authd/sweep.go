// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/digitalwardrobe/authd/internal/auth"
	authpg "github.com/digitalwardrobe/authd/internal/auth/postgres"
	"github.com/digitalwardrobe/authd/internal/logging"
	"github.com/digitalwardrobe/authd/internal/store"
)

// newSweepCmd creates the sweep subcommand, a one-shot purge of expired
// and deactivated sessions. Like migrate, it reads the database URL from
// the environment and does not need the full service configuration.
func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired and deactivated sessions once",
		RunE:  runSweep,
	}

	cmd.Flags().String("log-format", "json", "log format (json or text)")

	return cmd
}

func runSweep(cmd *cobra.Command, _ []string) error {
	databaseURL, err := migrateDatabaseURL()
	if err != nil {
		return err
	}

	logFormat, _ := cmd.Flags().GetString("log-format")
	logger := logging.Setup("authd", version, logFormat, nil)

	ctx := cmd.Context()
	pool, err := store.NewPool(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	sweeper := auth.NewSweeper(authpg.NewSessionRepository(pool), auth.DefaultSweepInterval, logger, nil)
	if err := sweeper.RunOnce(ctx); err != nil {
		return err
	}

	cmd.Println("Sweep completed")
	return nil
}
