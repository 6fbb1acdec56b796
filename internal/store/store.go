// Package store defines the Tick Store contract: durable persistence for
// trade ticks and the optional live strategy decision log.
package store

import (
	"context"
	"time"

	"github.com/sawpanic/tickstore/internal/tick"
)

// TimeRange bounds a query inclusive of From, exclusive of To.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// SymbolInfo summarizes what a store holds for one symbol, used to report
// backtest data availability before a run starts.
type SymbolInfo struct {
	Symbol    string
	FirstTick time.Time
	LastTick  time.Time
	Count     int64
}

// StrategyDecision is one row of the optional live_strategy_log: a record
// of a strategy's signal at a point in time, independent of whether a
// trade was actually executed, plus the portfolio state and cache/timing
// telemetry that went with that decision.
type StrategyDecision struct {
	Timestamp        time.Time `db:"ts"`
	Strategy         string    `db:"strategy"`
	Symbol           string    `db:"symbol"`
	Signal           string    `db:"signal"`
	Price            string    `db:"price"`
	Reason           string    `db:"reason"`
	PortfolioValue   string    `db:"portfolio_value"`
	TotalPnL         string    `db:"total_pnl"`
	CacheHit         bool      `db:"cache_hit"`
	ProcessingTimeUs int64     `db:"processing_time_us"`
}

// TickStore persists ticks durably and serves range queries for backtest
// replay and gap-fill. Implementations must treat (symbol, trade_id,
// timestamp) as a conflict key: re-inserting an already-seen trade is a
// no-op, not an error. Two distinct prints that reuse a trade_id at a
// different timestamp are therefore both kept, never silently dropped.
type TickStore interface {
	Insert(ctx context.Context, t tick.Tick) error
	InsertBatch(ctx context.Context, ticks []tick.Tick) error
	ListBySymbol(ctx context.Context, symbol string, tr TimeRange, limit int) ([]tick.Tick, error)
	GetLatest(ctx context.Context, symbol string, limit int) ([]tick.Tick, error)
	Count(ctx context.Context, symbol string, tr TimeRange) (int64, error)
	SymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error)
	CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// StrategyLogStore persists strategy decisions for later audit/replay,
// independent of whether the decision was acted on.
type StrategyLogStore interface {
	Append(ctx context.Context, d StrategyDecision) error
	ListByStrategy(ctx context.Context, strategy string, tr TimeRange, limit int) ([]StrategyDecision, error)
}
