package perf

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/tickstore/internal/portfolio"
	"github.com/sawpanic/tickstore/internal/tick"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func point(secOffset int, value string) portfolio.EquityPoint {
	return portfolio.EquityPoint{
		Timestamp: time.Unix(0, 0).Add(time.Duration(secOffset) * time.Second),
		Value:     dec(value),
	}
}

func TestMaxDrawdown_TracksWorstPeakToTrough(t *testing.T) {
	curve := []portfolio.EquityPoint{
		point(0, "1000"),
		point(10, "1200"), // new peak
		point(20, "900"),  // trough: dd = (1200-900)/1200 = 0.25
		point(30, "1100"),
	}

	dd, dur := MaxDrawdown(curve)
	assert.True(t, dd.Equal(dec("0.25")), "drawdown: %s", dd)
	assert.Equal(t, 10*time.Second, dur)
}

func TestMaxDrawdown_EmptyAndFlatCurves(t *testing.T) {
	dd, dur := MaxDrawdown(nil)
	assert.True(t, dd.IsZero())
	assert.Equal(t, time.Duration(0), dur)

	dd, _ = MaxDrawdown([]portfolio.EquityPoint{point(0, "100"), point(1, "100")})
	assert.True(t, dd.IsZero())
}

func TestReturns_ZeroPrevValueYieldsZero(t *testing.T) {
	curve := []portfolio.EquityPoint{point(0, "0"), point(1, "100")}
	rs := Returns(curve)
	assert.Equal(t, []float64{0}, rs)
}

func TestSharpe_ZeroForEmptyAndConstantReturns(t *testing.T) {
	assert.Equal(t, 0.0, Sharpe(nil, 0))
	assert.Equal(t, 0.0, Sharpe([]float64{0.01, 0.01, 0.01}, 0))
}

func TestSortino_ZeroWhenNoDownsideReturns(t *testing.T) {
	assert.Equal(t, 0.0, Sortino([]float64{0.01, 0.02, 0.03}, 0))
}

func TestWinRate_OnlyCountsSellsWithRealizedPnL(t *testing.T) {
	win := dec("10")
	loss := dec("-5")
	trades := []portfolio.Trade{
		{Side: tick.Buy},
		{Side: tick.Sell, RealizedPnL: &win},
		{Side: tick.Sell, RealizedPnL: &loss},
	}
	assert.Equal(t, 0.5, WinRate(trades))
}

func TestProfitFactor_EdgeCases(t *testing.T) {
	assert.True(t, ProfitFactor(nil).Equal(decimal.NewFromInt(1)))

	win := dec("10")
	trades := []portfolio.Trade{{Side: tick.Sell, RealizedPnL: &win}}
	assert.True(t, ProfitFactor(trades).Equal(profitFactorInfinite))

	loss := dec("-5")
	trades = []portfolio.Trade{
		{Side: tick.Sell, RealizedPnL: &win},
		{Side: tick.Sell, RealizedPnL: &loss},
	}
	assert.True(t, ProfitFactor(trades).Equal(dec("2")))
}

func TestCalmar_ZeroDrawdownYieldsZero(t *testing.T) {
	assert.Equal(t, 0.0, Calmar(0.2, decimal.Zero))
	assert.InDelta(t, 2.0, Calmar(0.5, dec("0.25")), 1e-9)
}

func TestAverageTradeDuration_SingleRoundTrip(t *testing.T) {
	open := time.Unix(0, 0)
	closeT := open.Add(90 * time.Second)
	trades := []portfolio.Trade{
		{Symbol: "BTCUSD", Side: tick.Buy, Quantity: decimal.NewFromInt(1), Timestamp: open},
		{Symbol: "BTCUSD", Side: tick.Sell, Quantity: decimal.NewFromInt(1), Timestamp: closeT},
	}
	assert.InDelta(t, 90.0, AverageTradeDuration(trades), 1e-9)
}

func TestAverageTradeDuration_NoTradesReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, AverageTradeDuration(nil))
}
