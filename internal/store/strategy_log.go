package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStrategyLog implements StrategyLogStore over the same connection
// pool as PostgresStore, following the teacher's one-repo-per-table
// convention (trades_repo.go / regime_repo.go / premove_repo.go each own a
// single table).
type PostgresStrategyLog struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPostgresStrategyLog(db *sqlx.DB, timeout time.Duration) *PostgresStrategyLog {
	return &PostgresStrategyLog{db: db, timeout: timeout}
}

func (s *PostgresStrategyLog) Append(ctx context.Context, d StrategyDecision) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO live_strategy_log
			(ts, strategy, symbol, signal, price, reason, portfolio_value, total_pnl, cache_hit, processing_time_us)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, query,
		d.Timestamp, d.Strategy, d.Symbol, d.Signal, d.Price, d.Reason,
		d.PortfolioValue, d.TotalPnL, d.CacheHit, d.ProcessingTimeUs)
	if err != nil {
		return fmt.Errorf("store: append strategy log: %w", err)
	}
	return nil
}

func (s *PostgresStrategyLog) ListByStrategy(ctx context.Context, strategy string, tr TimeRange, limit int) ([]StrategyDecision, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT ts, strategy, symbol, signal, price, reason, portfolio_value, total_pnl, cache_hit, processing_time_us
		FROM live_strategy_log
		WHERE strategy = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts DESC
		LIMIT $4`

	var rows []StrategyDecision
	if err := s.db.SelectContext(ctx, &rows, query, strategy, tr.From, tr.To, limit); err != nil {
		return nil, fmt.Errorf("store: list strategy log: %w", err)
	}
	return rows, nil
}

var _ StrategyLogStore = (*PostgresStrategyLog)(nil)
