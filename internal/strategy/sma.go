package strategy

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/tickstore/internal/portfolio"
	"github.com/sawpanic/tickstore/internal/tick"
)

func init() {
	Register("sma_crossover", "Dual simple-moving-average crossover: buys on a golden cross, sells on a death cross", newSMAFromParams)
}

// SMA is the canonical crossover strategy: two rolling windows of trade
// prices, short and long. Once both are full, a golden cross (short above
// long) with no open position emits a Buy of the fixed position size; a
// death cross (short at or below long) with an open position emits a Sell
// of the full position. No look-ahead: a signal only uses prices already
// observed. Grounded on SMAStrategy in
// original_source/trading-core/src/backtest/sma.rs.
type SMA struct {
	symbol      string
	shortPeriod int
	longPeriod  int
	positionQty decimal.Decimal

	shortWindow []float64
	longWindow  []float64

	params map[string]string
}

// NewSMA constructs an SMA strategy for symbol with the given window
// lengths and fixed buy quantity.
func NewSMA(symbol string, shortPeriod, longPeriod int, positionQty decimal.Decimal) *SMA {
	return &SMA{
		symbol:      symbol,
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		positionQty: positionQty,
		params: map[string]string{
			"symbol":            symbol,
			"short_period":      strconv.Itoa(shortPeriod),
			"long_period":       strconv.Itoa(longPeriod),
			"position_quantity": positionQty.String(),
		},
	}
}

func newSMAFromParams(params map[string]string) (Strategy, error) {
	symbol := params["symbol"]

	shortPeriod := 5
	if v, ok := params["short_period"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		shortPeriod = n
	}

	longPeriod := 20
	if v, ok := params["long_period"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		longPeriod = n
	}

	qty := decimal.NewFromInt(1)
	if v, ok := params["position_quantity"]; ok {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		qty = d
	}

	return NewSMA(symbol, shortPeriod, longPeriod, qty), nil
}

func (s *SMA) Name() string { return "sma_crossover" }

func (s *SMA) Description() string {
	return "Dual simple-moving-average crossover: buys on a golden cross, sells on a death cross"
}

func (s *SMA) Parameters() map[string]string { return s.params }

// Reset clears both rolling windows, so the same instance can run a fresh
// backtest without reconstruction.
func (s *SMA) Reset() {
	s.shortWindow = nil
	s.longWindow = nil
}

// OnTick feeds the tick's price into both windows and, once both are at
// full length, compares their averages to decide a signal. Ticks for any
// symbol other than the one this strategy was constructed for are ignored.
func (s *SMA) OnTick(t tick.Tick, pos *portfolio.Position) (*Signal, error) {
	if t.Symbol != s.symbol {
		return nil, nil
	}

	price, _ := t.Price.Float64()
	shortMA, longMA, ready := s.calculateMA(price)
	if !ready {
		return nil, nil
	}

	if shortMA > longMA {
		if pos == nil {
			return &Signal{Symbol: s.symbol, Side: tick.Buy, Qty: s.positionQty}, nil
		}
		return nil, nil
	}

	if pos != nil {
		return &Signal{Symbol: s.symbol, Side: tick.Sell, Qty: pos.Quantity}, nil
	}
	return nil, nil
}

// calculateMA pushes price onto both windows, evicting the oldest entry
// once a window exceeds its period, and returns the window averages only
// once both windows are exactly at their configured period length.
func (s *SMA) calculateMA(price float64) (shortMA, longMA float64, ready bool) {
	s.shortWindow = append(s.shortWindow, price)
	if len(s.shortWindow) > s.shortPeriod {
		s.shortWindow = s.shortWindow[1:]
	}

	s.longWindow = append(s.longWindow, price)
	if len(s.longWindow) > s.longPeriod {
		s.longWindow = s.longWindow[1:]
	}

	if len(s.shortWindow) != s.shortPeriod || len(s.longWindow) != s.longPeriod {
		return 0, 0, false
	}

	return average(s.shortWindow), average(s.longWindow), true
}

func average(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

var _ Strategy = (*SMA)(nil)
