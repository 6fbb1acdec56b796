// Package backtest wires a Strategy and a Portfolio together and replays a
// tick or bar sequence through them, computing performance metrics over
// the resulting trade log and equity curve. Grounded on
// original_source/trading-core/src/backtest/engine.rs's BacktestEngine and
// BacktestResult.
package backtest

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/tickstore/internal/perf"
	"github.com/sawpanic/tickstore/internal/portfolio"
	"github.com/sawpanic/tickstore/internal/store"
	"github.com/sawpanic/tickstore/internal/strategy"
	"github.com/sawpanic/tickstore/internal/tick"
)

// Config bounds a single backtest run.
type Config struct {
	InitialCapital  decimal.Decimal
	CommissionRate  decimal.Decimal
	StrategyParams  map[string]string
}

// DefaultConfig returns the original's 0.1% default commission rate.
func DefaultConfig(initialCapital decimal.Decimal) Config {
	return Config{
		InitialCapital: initialCapital,
		CommissionRate: decimal.NewFromFloat(0.001),
		StrategyParams: map[string]string{},
	}
}

// OHLCStrategy is implemented by strategies that can also trade on bar
// closes rather than individual ticks; RunWithOHLC uses it when present.
type OHLCStrategy interface {
	OnOHLC(bar tick.Bar, pos *portfolio.Position) (*strategy.Signal, error)
}

// Engine binds one Strategy instance to one Portfolio for the duration of
// a single run.
type Engine struct {
	portfolio   *portfolio.Portfolio
	strategy    strategy.Strategy
	config      Config
	strategyLog store.StrategyLogStore
}

// New resets strat, then constructs a portfolio funded with
// config.InitialCapital at config.CommissionRate. The strategy keeps the
// parameters it was constructed with; config.StrategyParams is not applied
// to it.
func New(strat strategy.Strategy, config Config) *Engine {
	strat.Reset()
	return &Engine{
		portfolio: portfolio.New(config.InitialCapital).WithCommissionRate(config.CommissionRate),
		strategy:  strat,
		config:    config,
	}
}

// WithStrategyLog attaches an optional live_strategy_log sink: every tick
// Run processes is appended as a StrategyDecision, the same audit record a
// live deployment would produce for the strategy's real-time decisions.
// Append failures are logged and otherwise ignored; a backtest run never
// depends on the log succeeding.
func (e *Engine) WithStrategyLog(l store.StrategyLogStore) *Engine {
	e.strategyLog = l
	return e
}

// Run replays data, which must be in ascending timestamp order, through
// the strategy and portfolio: each tick updates the last price, asks the
// strategy for a signal, and executes it against the portfolio. Rejected
// orders (insufficient cash, no position to sell) are logged and skipped;
// they never abort the run.
func (e *Engine) Run(data []tick.Tick) Result {
	log.Info().Str("strategy", e.strategy.Name()).Str("initial_capital", e.config.InitialCapital.String()).Int("data_points", len(data)).Msg("backtest: starting run")

	for _, t := range data {
		e.portfolio.UpdatePrice(t.Symbol, t.Price, t.Timestamp)

		start := time.Now()
		sig, err := e.strategy.OnTick(t, e.portfolio.Position(t.Symbol))
		elapsed := time.Since(start)
		if err != nil {
			log.Error().Err(err).Str("symbol", t.Symbol).Msg("backtest: strategy error, skipping tick")
			continue
		}
		e.executeSignal(sig, t.Timestamp)
		e.logDecision(t, sig, elapsed)
	}

	return e.buildResult()
}

// RunWithOHLC replays a bar sequence, trading at each bar's close price. If
// the strategy also implements OHLCStrategy, its OnOHLC is used instead of
// OnTick; otherwise bars are never signaled on (update_price still runs,
// matching the original's "trade at close, same semantics otherwise").
func (e *Engine) RunWithOHLC(bars []tick.Bar) Result {
	log.Info().Str("strategy", e.strategy.Name()).Str("initial_capital", e.config.InitialCapital.String()).Int("data_points", len(bars)).Msg("backtest: starting OHLC run")

	ohlcStrat, supportsOHLC := e.strategy.(OHLCStrategy)

	for _, bar := range bars {
		closeTime := bar.WindowStart.Add(time.Duration(bar.Timeframe))
		e.portfolio.UpdatePrice(bar.Symbol, bar.Close, closeTime)

		if !supportsOHLC {
			continue
		}

		sig, err := ohlcStrat.OnOHLC(bar, e.portfolio.Position(bar.Symbol))
		if err != nil {
			log.Error().Err(err).Str("symbol", bar.Symbol).Msg("backtest: strategy error, skipping bar")
			continue
		}
		e.executeSignal(sig, closeTime)
	}

	return e.buildResult()
}

func (e *Engine) executeSignal(sig *strategy.Signal, ts time.Time) {
	if sig == nil {
		return
	}

	var err error
	switch sig.Side {
	case tick.Buy:
		err = e.portfolio.ExecuteBuy(sig.Symbol, sig.Qty, e.lastPriceOrZero(sig.Symbol), ts)
	case tick.Sell:
		err = e.portfolio.ExecuteSell(sig.Symbol, sig.Qty, e.lastPriceOrZero(sig.Symbol), ts)
	}
	if err != nil {
		log.Warn().Err(err).Str("symbol", sig.Symbol).Str("side", string(sig.Side)).Msg("backtest: order rejected")
	}
}

// logDecision appends one live_strategy_log-shaped record for t's signal,
// when a strategy log sink is attached. cache_hit is always false here:
// the backtest replay path reads its data up front through
// Repository.BacktestLatest or Repository.BacktestTicks rather than the
// tiered cache a live deployment
// would serve reads from.
func (e *Engine) logDecision(t tick.Tick, sig *strategy.Signal, elapsed time.Duration) {
	if e.strategyLog == nil {
		return
	}

	signalType := "HOLD"
	if sig != nil {
		signalType = string(sig.Side)
	}

	d := store.StrategyDecision{
		Timestamp:        t.Timestamp,
		Strategy:         e.strategy.Name(),
		Symbol:           t.Symbol,
		Signal:           signalType,
		Price:            t.Price.String(),
		PortfolioValue:   e.portfolio.TotalValue().String(),
		TotalPnL:         e.portfolio.TotalPnL().String(),
		CacheHit:         false,
		ProcessingTimeUs: elapsed.Microseconds(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.strategyLog.Append(ctx, d); err != nil {
		log.Warn().Err(err).Str("symbol", t.Symbol).Msg("backtest: strategy log append failed")
	}
}

// lastPriceOrZero reads back the price the portfolio last recorded for
// symbol, so a signal never needs to carry its own execution price.
func (e *Engine) lastPriceOrZero(symbol string) decimal.Decimal {
	pos := e.portfolio.Position(symbol)
	price, ok := e.portfolio.LastPrice(symbol)
	if !ok {
		if pos != nil {
			return pos.AvgEntryPrice
		}
		return decimal.Zero
	}
	return price
}

func (e *Engine) buildResult() Result {
	equityCurve := e.portfolio.GetEquityCurve()
	returns := perf.Returns(equityCurve)
	trades := e.portfolio.Trades()

	maxDrawdown, maxDrawdownDuration := perf.MaxDrawdown(equityCurve)
	finalValue := e.portfolio.TotalValue()
	totalPnL := e.portfolio.TotalPnL()

	returnPct := decimal.Zero
	if e.config.InitialCapital.Sign() > 0 {
		returnPct = totalPnL.Div(e.config.InitialCapital).Mul(decimal.NewFromInt(100))
	}

	winning, losing := countWinningLosing(trades)

	return Result{
		InitialCapital:          e.config.InitialCapital,
		FinalValue:              finalValue,
		TotalPnL:                totalPnL,
		ReturnPercentage:        returnPct,
		TotalTrades:             len(trades),
		WinningTrades:           winning,
		LosingTrades:            losing,
		MaxDrawdown:             maxDrawdown,
		MaxDrawdownDuration:     maxDrawdownDuration,
		SharpeRatio:             perf.Sharpe(returns, 0),
		SortinoRatio:            perf.Sortino(returns, 0),
		Volatility:              perf.Volatility(returns),
		WinRate:                 perf.WinRate(trades),
		ProfitFactor:            perf.ProfitFactor(trades),
		AvgTradeDurationSeconds: perf.AverageTradeDuration(trades),
		TotalCommission:         e.portfolio.TotalCommission(),
		Positions:               e.portfolio.Positions(),
		Trades:                  trades,
		EquityCurve:             equityCurve,
		StrategyName:            e.strategy.Name(),
	}
}

func countWinningLosing(trades []portfolio.Trade) (winning, losing int) {
	for _, tr := range trades {
		if tr.RealizedPnL == nil {
			continue
		}
		switch {
		case tr.RealizedPnL.Sign() > 0:
			winning++
		case tr.RealizedPnL.Sign() < 0:
			losing++
		}
	}
	return winning, losing
}

// Result is the full backtest report: initial/final capital, every risk
// and trading metric, the full trade log, and the equity curve.
type Result struct {
	InitialCapital          decimal.Decimal
	FinalValue              decimal.Decimal
	TotalPnL                decimal.Decimal
	ReturnPercentage        decimal.Decimal
	TotalTrades             int
	WinningTrades           int
	LosingTrades            int
	MaxDrawdown             decimal.Decimal
	MaxDrawdownDuration     time.Duration
	SharpeRatio             float64
	SortinoRatio            float64
	Volatility              float64
	WinRate                 float64
	ProfitFactor            decimal.Decimal
	AvgTradeDurationSeconds float64
	TotalCommission         decimal.Decimal
	Positions               map[string]portfolio.Position
	Trades                  []portfolio.Trade
	EquityCurve             []portfolio.EquityPoint
	StrategyName            string
}

// IsProfitable reports whether the run ended with positive total PnL.
func (r Result) IsProfitable() bool { return r.TotalPnL.Sign() > 0 }

// CalmarRatio is computed on demand rather than stored, matching the
// original's BacktestResult::calmar_ratio().
func (r Result) CalmarRatio() float64 {
	annualReturn, _ := r.ReturnPercentage.Div(decimal.NewFromInt(100)).Float64()
	return perf.Calmar(annualReturn, r.MaxDrawdown)
}
