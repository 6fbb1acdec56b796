package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/sawpanic/tickstore/internal/cache"
	"github.com/sawpanic/tickstore/internal/repository"
	"github.com/sawpanic/tickstore/internal/store"
)

// Config holds database connection configuration.
type Config struct {
	DSN             string        `yaml:"dsn" env:"PG_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"PG_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"PG_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"PG_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"PG_CONN_MAX_IDLE_TIME"`
	QueryTimeout    time.Duration `yaml:"query_timeout" env:"PG_QUERY_TIMEOUT"`
	Enabled         bool          `yaml:"enabled" env:"PG_ENABLED"`
}

// DefaultConfig returns reasonable defaults for database connections.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
		Enabled:         false, // disabled by default - requires explicit configuration
	}
}

// Manager owns the Postgres connection pool and builds the Repository the
// rest of the system reads and writes ticks through. When the database is
// disabled (or unconfigured), Manager is still constructed, but Repository
// returns an error instead of a Repository, so callers relying on
// durability learn about it immediately rather than the process silently
// discarding data.
type Manager struct {
	db     *sqlx.DB
	config Config
	health *healthChecker
}

// NewManager creates a new database manager with the given configuration.
func NewManager(config Config) (*Manager, error) {
	if !config.Enabled {
		return &Manager{
			config: config,
			health: &healthChecker{enabled: false},
		}, nil
	}

	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}

	sqlxDB, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlxDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlxDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlxDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlxDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlxDB.PingContext(ctx); err != nil {
		sqlxDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Manager{
		db:     sqlxDB,
		config: config,
		health: &healthChecker{enabled: true, db: sqlxDB, timeout: config.QueryTimeout},
	}, nil
}

// TickStore builds the store.TickStore backed by this manager's
// connection, or nil when the database is disabled.
func (m *Manager) TickStore() store.TickStore {
	if m.db == nil {
		return nil
	}
	return store.NewPostgresStore(m.db, m.config.QueryTimeout)
}

// StrategyLogStore builds the store.StrategyLogStore backed by this
// manager's connection, or nil when the database is disabled.
func (m *Manager) StrategyLogStore() store.StrategyLogStore {
	if m.db == nil {
		return nil
	}
	return store.NewPostgresStrategyLog(m.db, m.config.QueryTimeout)
}

// Repository builds the tick Repository over this manager's store and the
// given cache. Returns an error rather than a disabled-but-nil Repository
// when the database is off, since every repository operation needs a
// store to be durable.
func (m *Manager) Repository(c *cache.Cache) (*repository.Repository, error) {
	ts := m.TickStore()
	if ts == nil {
		return nil, fmt.Errorf("db: cannot build repository, database persistence is disabled")
	}
	return repository.New(ts, c), nil
}

// DB returns the underlying database connection, for migrations or direct
// queries outside the Repository abstraction.
func (m *Manager) DB() *sqlx.DB {
	return m.db
}

// IsEnabled returns whether database persistence is enabled and connected.
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled && m.db != nil
}

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Health returns the health checker for this manager.
func (m *Manager) Health() Health {
	return m.health
}

// HealthCheck is a point-in-time snapshot of database health, matching the
// teacher's persistence.HealthCheck shape.
type HealthCheck struct {
	Healthy        bool
	Errors         []string
	ConnectionPool map[string]int
	LastCheck      time.Time
	ResponseTimeMS int64
}

// Health is implemented by anything that can report and ping database
// connectivity.
type Health interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
	Stats(ctx context.Context) map[string]interface{}
}

// healthChecker implements Health.
type healthChecker struct {
	enabled bool
	db      *sqlx.DB
	timeout time.Duration
}

func (h *healthChecker) Health(ctx context.Context) HealthCheck {
	if !h.enabled {
		return HealthCheck{
			Healthy:   true,
			Errors:    []string{"database persistence disabled"},
			LastCheck: time.Now(),
		}
	}

	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var errs []string
	healthy := true
	if err := h.db.PingContext(pingCtx); err != nil {
		errs = append(errs, fmt.Sprintf("ping failed: %v", err))
		healthy = false
	}

	stats := h.db.Stats()
	pool := map[string]int{
		"max_open":      stats.MaxOpenConnections,
		"open":          stats.OpenConnections,
		"in_use":        stats.InUse,
		"idle":          stats.Idle,
		"wait_count":    int(stats.WaitCount),
		"wait_duration": int(stats.WaitDuration.Milliseconds()),
	}

	return HealthCheck{
		Healthy:        healthy,
		Errors:         errs,
		ConnectionPool: pool,
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}

func (h *healthChecker) Ping(ctx context.Context) error {
	if !h.enabled {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.db.PingContext(pingCtx)
}

func (h *healthChecker) Stats(ctx context.Context) map[string]interface{} {
	if !h.enabled {
		return map[string]interface{}{"enabled": false, "status": "disabled"}
	}

	stats := h.db.Stats()
	return map[string]interface{}{
		"enabled":              true,
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
		"max_idle_closed":      stats.MaxIdleClosed,
		"max_idle_time_closed": stats.MaxIdleTimeClosed,
		"max_lifetime_closed":  stats.MaxLifetimeClosed,
	}
}
