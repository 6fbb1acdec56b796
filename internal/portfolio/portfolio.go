// Package portfolio simulates an account holding cash and positions across
// a backtest run: executes buys/sells against the current price, tracks
// weighted-average entry cost and FIFO-against-average-cost realized PnL,
// and records an equity curve snapshot on every price update. Grounded on
// original_source/trading-core/src/backtest/engine.rs and the sibling
// Portfolio/Position/Trade types it drives (cash, positions map, trade
// log, equity curve).
package portfolio

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/tickstore/internal/tick"
)

// Position is one symbol's open holding. AvgCommissionPerUnit tracks the
// commission paid per unit currently held, weighted the same way the entry
// price is, so a partial sell can allocate its fair share of the buy-side
// commission into realized PnL.
type Position struct {
	Symbol                string
	Quantity              decimal.Decimal
	AvgEntryPrice         decimal.Decimal
	AvgCommissionPerUnit  decimal.Decimal
}

// UnrealizedPnL values the position at lastPrice.
func (p Position) UnrealizedPnL(lastPrice decimal.Decimal) decimal.Decimal {
	return lastPrice.Sub(p.AvgEntryPrice).Mul(p.Quantity)
}

// EquityPoint is one snapshot of total portfolio value at a point in time,
// recorded on every UpdatePrice call so the curve never looks ahead.
type EquityPoint struct {
	Timestamp time.Time
	Value     decimal.Decimal
}

// Trade is one executed fill. RealizedPnL is set only for sells.
type Trade struct {
	Timestamp   time.Time
	Symbol      string
	Side        tick.Side
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	Commission  decimal.Decimal
	RealizedPnL *decimal.Decimal
}

// Portfolio is a simulated account: cash, open positions, the full trade
// log, and a running equity curve. Owned by a single backtest run.
type Portfolio struct {
	InitialCapital decimal.Decimal
	CommissionRate decimal.Decimal

	cash        decimal.Decimal
	positions   map[string]*Position
	lastPrice   map[string]decimal.Decimal
	trades      []Trade
	equityCurve []EquityPoint
}

// New constructs a Portfolio funded with initialCapital and a zero
// commission rate; chain WithCommissionRate to set one.
func New(initialCapital decimal.Decimal) *Portfolio {
	return &Portfolio{
		InitialCapital: initialCapital,
		CommissionRate: decimal.Zero,
		cash:           initialCapital,
		positions:      make(map[string]*Position),
		lastPrice:      make(map[string]decimal.Decimal),
	}
}

// WithCommissionRate sets the per-trade commission rate and returns the
// same Portfolio, matching the teacher's fluent-builder convention.
func (p *Portfolio) WithCommissionRate(rate decimal.Decimal) *Portfolio {
	p.CommissionRate = rate
	return p
}

// UpdatePrice records the latest observed price for symbol and appends a
// new equity snapshot stamped with ts, the simulated time of the
// observation (the tick or bar's own timestamp, not wall-clock). Must be
// called for every tick before any signal for that tick is executed, so
// the equity curve never looks ahead.
func (p *Portfolio) UpdatePrice(symbol string, price decimal.Decimal, ts time.Time) {
	p.lastPrice[symbol] = price
	p.equityCurve = append(p.equityCurve, EquityPoint{Timestamp: ts, Value: p.TotalValue()})
}

// ExecuteBuy opens or adds to a position, charging commission into the
// cost and re-weighting the average entry price and average commission per
// unit across the combined quantity. ts stamps the resulting Trade with the
// simulated time of execution (the tick or bar's own timestamp).
func (p *Portfolio) ExecuteBuy(symbol string, quantity, price decimal.Decimal, ts time.Time) error {
	if quantity.Sign() <= 0 {
		return fmt.Errorf("portfolio: buy quantity must be positive, got %s", quantity)
	}

	commission := quantity.Mul(price).Mul(p.CommissionRate)
	cost := quantity.Mul(price).Add(commission)
	if cost.GreaterThan(p.cash) {
		return fmt.Errorf("portfolio: insufficient cash for %s buy: cost %s > cash %s", symbol, cost, p.cash)
	}

	p.cash = p.cash.Sub(cost)

	pos, ok := p.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		p.positions[symbol] = pos
	}

	oldQty := pos.Quantity
	newQty := oldQty.Add(quantity)
	pos.AvgEntryPrice = weightedAverage(pos.AvgEntryPrice, oldQty, price, quantity, newQty)
	commissionPerUnit := commission.Div(quantity)
	pos.AvgCommissionPerUnit = weightedAverage(pos.AvgCommissionPerUnit, oldQty, commissionPerUnit, quantity, newQty)
	pos.Quantity = newQty

	p.trades = append(p.trades, Trade{
		Timestamp:  ts,
		Symbol:     symbol,
		Side:       tick.Buy,
		Quantity:   quantity,
		Price:      price,
		Commission: commission,
	})
	return nil
}

// ExecuteSell closes or reduces a position, realizing PnL against the
// position's average entry price and allocating its fair share of both the
// original buy-side commission and this sell's commission. ts stamps the
// resulting Trade with the simulated time of execution (the tick or bar's
// own timestamp).
func (p *Portfolio) ExecuteSell(symbol string, quantity, price decimal.Decimal, ts time.Time) error {
	if quantity.Sign() <= 0 {
		return fmt.Errorf("portfolio: sell quantity must be positive, got %s", quantity)
	}

	pos, ok := p.positions[symbol]
	if !ok {
		return fmt.Errorf("portfolio: no open position in %s", symbol)
	}
	if quantity.GreaterThan(pos.Quantity) {
		return fmt.Errorf("portfolio: sell quantity %s exceeds position %s in %s", quantity, pos.Quantity, symbol)
	}

	sellCommission := quantity.Mul(price).Mul(p.CommissionRate)
	proceeds := quantity.Mul(price).Sub(sellCommission)

	buyCommissionAlloc := pos.AvgCommissionPerUnit.Mul(quantity)
	grossPnL := price.Sub(pos.AvgEntryPrice).Mul(quantity)
	realizedPnL := grossPnL.Sub(buyCommissionAlloc).Sub(sellCommission)

	p.cash = p.cash.Add(proceeds)
	pos.Quantity = pos.Quantity.Sub(quantity)
	if pos.Quantity.IsZero() {
		delete(p.positions, symbol)
	}

	p.trades = append(p.trades, Trade{
		Timestamp:   ts,
		Symbol:      symbol,
		Side:        tick.Sell,
		Quantity:    quantity,
		Price:       price,
		Commission:  sellCommission,
		RealizedPnL: &realizedPnL,
	})
	return nil
}

// TotalValue is cash plus every open position valued at its last observed
// price.
func (p *Portfolio) TotalValue() decimal.Decimal {
	total := p.cash
	for symbol, pos := range p.positions {
		price, ok := p.lastPrice[symbol]
		if !ok {
			price = pos.AvgEntryPrice
		}
		total = total.Add(pos.Quantity.Mul(price))
	}
	return total
}

// TotalPnL is total value minus the capital the portfolio started with.
func (p *Portfolio) TotalPnL() decimal.Decimal {
	return p.TotalValue().Sub(p.InitialCapital)
}

// TotalCommission sums the commission actually paid across every trade.
func (p *Portfolio) TotalCommission() decimal.Decimal {
	total := decimal.Zero
	for _, t := range p.trades {
		total = total.Add(t.Commission)
	}
	return total
}

// Cash returns the current free cash balance.
func (p *Portfolio) Cash() decimal.Decimal { return p.cash }

// LastPrice returns the most recent price recorded for symbol via
// UpdatePrice, or false if none has been recorded yet.
func (p *Portfolio) LastPrice(symbol string) (decimal.Decimal, bool) {
	price, ok := p.lastPrice[symbol]
	return price, ok
}

// Position returns the current open position in symbol, or nil if flat.
func (p *Portfolio) Position(symbol string) *Position {
	pos, ok := p.positions[symbol]
	if !ok {
		return nil
	}
	clone := *pos
	return &clone
}

// Positions returns a snapshot of every currently open position.
func (p *Portfolio) Positions() map[string]Position {
	out := make(map[string]Position, len(p.positions))
	for symbol, pos := range p.positions {
		out[symbol] = *pos
	}
	return out
}

// Trades returns the full trade log in execution order.
func (p *Portfolio) Trades() []Trade {
	return p.trades
}

// GetEquityCurve returns the recorded equity snapshots, one per UpdatePrice
// call, in chronological order.
func (p *Portfolio) GetEquityCurve() []EquityPoint {
	return p.equityCurve
}

// weightedAverage combines an existing (value, weight) pair with a new one,
// returning 0 when the combined weight is zero.
func weightedAverage(oldValue, oldWeight, newValue, newWeight, combinedWeight decimal.Decimal) decimal.Decimal {
	if combinedWeight.IsZero() {
		return decimal.Zero
	}
	return oldValue.Mul(oldWeight).Add(newValue.Mul(newWeight)).Div(combinedWeight)
}
