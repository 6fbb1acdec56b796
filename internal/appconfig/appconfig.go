// Package appconfig loads the whole application's configuration from a
// YAML file with environment-variable overrides, the same two-step
// pattern as the teacher's internal/infrastructure/db.LoadAppConfig
// (named appconfig rather than config because the teacher's internal/config
// held its own momentum-scanner guard/provider config).
package appconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/tickstore/internal/backtest"
	"github.com/sawpanic/tickstore/internal/cache"
	"github.com/sawpanic/tickstore/internal/infrastructure/db"
	"github.com/sawpanic/tickstore/internal/ingest"
)

// VenueConfig selects and configures the venue adapter the ingest service
// subscribes to.
type VenueConfig struct {
	Name        string   `yaml:"name"`
	Symbols     []string `yaml:"symbols"`
	WSBaseURL   string   `yaml:"ws_base_url"`
	RESTBaseURL string   `yaml:"rest_base_url"`
}

// BacktestSection configures a standalone backtest run; live ingest never
// reads it. The cmd/tickstore backtest subcommand uses only StrategyParams
// from it (strategy id, capital and commission rate are prompted for);
// BacktestConfig converts the capital and commission fields.
type BacktestSection struct {
	InitialCapital string            `yaml:"initial_capital"`
	CommissionRate string            `yaml:"commission_rate"`
	StrategyName   string            `yaml:"strategy_name"`
	StrategyParams map[string]string `yaml:"strategy_params"`
}

// HTTPConfig configures the /health and /metrics server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the root of the application's configuration tree.
type Config struct {
	Database db.Config           `yaml:"database"`
	Cache    cache.Config         `yaml:"cache"`
	Venue    VenueConfig          `yaml:"venue"`
	Ingest   ingest.BatchConfig   `yaml:"ingest"`
	Backtest BacktestSection      `yaml:"backtest"`
	HTTP     HTTPConfig           `yaml:"http"`
}

// Default returns the configuration a fresh install starts from: database
// and remote cache disabled (memory-only, degraded-safe), Kraken as the
// default venue, and the teacher's batching/commission defaults.
func Default() *Config {
	return &Config{
		Database: db.DefaultConfig(),
		Cache:    cache.DefaultConfig(),
		Venue: VenueConfig{
			Name:        "kraken",
			WSBaseURL:   "wss://ws.kraken.com",
			RESTBaseURL: "https://api.kraken.com",
		},
		Ingest: ingest.DefaultBatchConfig(),
		Backtest: BacktestSection{
			InitialCapital: "10000",
			CommissionRate: "0.001",
			StrategyName:   "sma_crossover",
			StrategyParams: map[string]string{},
		},
		HTTP: HTTPConfig{Addr: ":8090"},
	}
}

// Load reads configPath (if it exists) as YAML over the defaults, then
// applies environment variable overrides, mirroring the teacher's
// LoadAppConfig two-step precedence.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("appconfig: read %s: %w", configPath, err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("appconfig: parse %s: %w", configPath, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if enabled := os.Getenv("PG_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			cfg.Database.Enabled = v
		}
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.RemoteAddr = addr
	}
	if venue := os.Getenv("VENUE_NAME"); venue != "" {
		cfg.Venue.Name = venue
	}
	if symbols := os.Getenv("VENUE_SYMBOLS"); symbols != "" {
		cfg.Venue.Symbols = splitAndTrim(symbols)
	}
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if timeout := os.Getenv("PG_QUERY_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Database.QueryTimeout = d
		}
	}
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configurations that would fail at startup rather than
// failing midway through wiring, matching the teacher's fail-fast
// AppConfig.Validate.
func (c *Config) Validate() error {
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("appconfig: database DSN is required when database is enabled")
	}
	if len(c.Venue.Symbols) == 0 {
		return fmt.Errorf("appconfig: at least one venue symbol is required")
	}
	if c.Venue.Name == "" {
		return fmt.Errorf("appconfig: venue name is required")
	}
	return nil
}

// BacktestConfig builds a backtest.Config from the parsed backtest section,
// converting its string-encoded decimals.
func (c *Config) BacktestConfig() (backtest.Config, error) {
	initialCapital, err := decimal.NewFromString(c.Backtest.InitialCapital)
	if err != nil {
		return backtest.Config{}, fmt.Errorf("appconfig: initial_capital: %w", err)
	}
	commissionRate, err := decimal.NewFromString(c.Backtest.CommissionRate)
	if err != nil {
		return backtest.Config{}, fmt.Errorf("appconfig: commission_rate: %w", err)
	}
	return backtest.Config{
		InitialCapital: initialCapital,
		CommissionRate: commissionRate,
		StrategyParams: c.Backtest.StrategyParams,
	}, nil
}
