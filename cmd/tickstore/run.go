package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/tickstore/internal/appconfig"
	"github.com/sawpanic/tickstore/internal/cache"
	"github.com/sawpanic/tickstore/internal/httpserver"
	"github.com/sawpanic/tickstore/internal/infrastructure/db"
	"github.com/sawpanic/tickstore/internal/ingest"
	"github.com/sawpanic/tickstore/internal/venue"
	_ "github.com/sawpanic/tickstore/internal/venue/binance" // registers the "binance" venue factory
	_ "github.com/sawpanic/tickstore/internal/venue/kraken"  // registers the "kraken" venue factory
)

// runIngest wires config -> venue adapter -> cache -> database -> repository
// -> ingest service -> HTTP server, then blocks until SIGINT/SIGTERM,
// mirroring the teacher's monitor_main.go signal-wait-then-drain shutdown.
func runIngest(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	adapter, err := buildVenueAdapter(cfg.Venue)
	if err != nil {
		return fmt.Errorf("build venue adapter: %w", err)
	}

	tickCache := cache.New(cfg.Cache)
	defer tickCache.Close()
	if tickCache.Degraded() {
		log.Warn().Msg("run: cache is in degraded mode, remote tier disabled")
	}

	dbManager, err := db.NewManager(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbManager.Close()

	repo, err := dbManager.Repository(tickCache)
	if err != nil {
		return fmt.Errorf("build repository: %w", err)
	}

	ingestSvc := ingest.New(adapter, repo, cfg.Venue.Symbols, cfg.Ingest)

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Addr = cfg.HTTP.Addr
	server, err := httpserver.New(httpCfg, ingestSvc, dbManager.Health())
	if err != nil {
		return fmt.Errorf("build http server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ingestErr := make(chan error, 1)
	go func() {
		ingestErr <- ingestSvc.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErr <- err
		}
	}()

	log.Info().
		Str("venue", cfg.Venue.Name).
		Strs("symbols", cfg.Venue.Symbols).
		Str("http_addr", cfg.HTTP.Addr).
		Msg("run: tickstore started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("run: shutdown signal received")
	case err := <-ingestErr:
		if err != nil {
			log.Error().Err(err).Msg("run: ingest service exited with error")
		}
	case err := <-serverErr:
		log.Error().Err(err).Msg("run: http server exited with error")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("run: http server shutdown error")
	}

	select {
	case <-ingestErr:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("run: ingest service did not drain in time")
	}

	log.Info().Msg("run: shutdown complete")
	return nil
}

// buildVenueAdapter resolves an adapter through the venue registry, which
// each adapter package populates via init(), matching the strategy
// package's self-registering factory convention.
func buildVenueAdapter(cfg appconfig.VenueConfig) (venue.Adapter, error) {
	return venue.Create(strings.ToLower(cfg.Name), map[string]string{
		"ws_base_url":   cfg.WSBaseURL,
		"rest_base_url": cfg.RESTBaseURL,
	})
}
