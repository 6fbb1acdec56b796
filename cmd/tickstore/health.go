package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/tickstore/internal/appconfig"
	"github.com/sawpanic/tickstore/internal/cache"
	"github.com/sawpanic/tickstore/internal/infrastructure/db"
)

// runHealthCheck pings the database and reports the cache's mode, for use
// in container liveness probes and CI smoke checks. It exits non-zero only
// when the database is unhealthy; a degraded (memory-only) cache is logged
// but does not fail the check.
func runHealthCheck(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbManager, err := db.NewManager(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbManager.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	check := dbManager.Health().Health(ctx)
	log.Info().
		Bool("healthy", check.Healthy).
		Strs("errors", check.Errors).
		Int64("response_time_ms", check.ResponseTimeMS).
		Msg("health: database")

	tickCache := cache.New(cfg.Cache)
	defer tickCache.Close()
	log.Info().Bool("cache_degraded", tickCache.Degraded()).Msg("health: cache")

	if !check.Healthy {
		return fmt.Errorf("database unhealthy: %v", check.Errors)
	}
	return nil
}
