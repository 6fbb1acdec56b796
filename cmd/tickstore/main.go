package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "tickstore"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Tick ingest, cache, and backtest engine",
		Version: version,
		Long: `tickstore ingests live trade prints from an exchange venue, caches the
hot tail in memory and Redis, durably persists every tick to Postgres,
and replays stored ticks through pluggable strategies for backtesting.`,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the live ingest pipeline and monitoring server",
		Long:  "Connects to the configured venue, streams trades into the cache and store, and serves /health and /metrics",
		RunE:  runIngest,
	}
	runCmd.Flags().String("config", "config/tickstore.yaml", "Path to the YAML configuration file")

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Interactively replay stored ticks through a strategy",
		Long:  "Prompts for a strategy, symbol, record count, initial capital, and commission rate, then replays the most recent matching ticks and prints a performance report",
		RunE:  runBacktest,
	}
	backtestCmd.Flags().String("config", "config/tickstore.yaml", "Path to the YAML configuration file")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check database and cache connectivity and exit",
		RunE:  runHealthCheck,
	}
	healthCmd.Flags().String("config", "config/tickstore.yaml", "Path to the YAML configuration file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(healthCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
