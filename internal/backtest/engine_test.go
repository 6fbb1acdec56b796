package backtest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tickstore/internal/strategy"
	"github.com/sawpanic/tickstore/internal/tick"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func mkTick(i int, symbol string, price float64) tick.Tick {
	return tick.Tick{
		Timestamp: time.Unix(int64(i), 0),
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(price),
		Quantity:  decimal.NewFromInt(1),
		Side:      tick.Buy,
		TradeID:   "t",
	}
}

func TestEngine_RunExecutesSMACrossoverAndReportsCommission(t *testing.T) {
	strat := strategy.NewSMA("BTCUSD", 2, 3, decimal.NewFromInt(1))
	cfg := Config{InitialCapital: dec("10000"), CommissionRate: dec("0.001"), StrategyParams: map[string]string{}}
	engine := New(strat, cfg)

	prices := []float64{100, 100, 130, 140, 90, 80}
	data := make([]tick.Tick, 0, len(prices))
	for i, p := range prices {
		data = append(data, mkTick(i, "BTCUSD", p))
	}

	result := engine.Run(data)

	assert.Equal(t, "sma_crossover", result.StrategyName)
	assert.True(t, result.InitialCapital.Equal(dec("10000")))
	assert.GreaterOrEqual(t, result.TotalTrades, 1)
	assert.True(t, result.TotalCommission.Sign() >= 0)
	assert.Len(t, result.EquityCurve, len(prices))
}

func TestEngine_RunRejectsInsufficientCashWithoutAborting(t *testing.T) {
	strat := strategy.NewSMA("BTCUSD", 1, 2, dec("1000"))
	cfg := Config{InitialCapital: dec("10"), CommissionRate: decimal.Zero, StrategyParams: map[string]string{}}
	engine := New(strat, cfg)

	data := []tick.Tick{
		mkTick(0, "BTCUSD", 100),
		mkTick(1, "BTCUSD", 100),
		mkTick(2, "BTCUSD", 150), // golden cross, but position size far exceeds cash
	}

	require.NotPanics(t, func() {
		result := engine.Run(data)
		assert.Equal(t, 0, result.TotalTrades)
		assert.True(t, result.FinalValue.Equal(dec("10")))
	})
}

func TestEngine_RunWithOHLCUpdatesEquityCurveEvenWithoutOHLCSupport(t *testing.T) {
	strat := strategy.NewSMA("BTCUSD", 2, 3, decimal.NewFromInt(1))
	cfg := DefaultConfig(dec("5000"))
	engine := New(strat, cfg)

	bars := []tick.Bar{
		{Symbol: "BTCUSD", WindowStart: time.Unix(0, 0), Close: dec("100")},
		{Symbol: "BTCUSD", WindowStart: time.Unix(60, 0), Close: dec("110")},
	}

	result := engine.RunWithOHLC(bars)
	assert.Len(t, result.EquityCurve, 2)
	assert.Equal(t, 0, result.TotalTrades, "SMA has no OnOHLC, so no signals should fire")
}
