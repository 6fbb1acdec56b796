package tick

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkTick(symbol string, ts time.Time, price, qty float64) Tick {
	return Tick{
		Timestamp: ts,
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(price),
		Quantity:  decimal.NewFromFloat(qty),
		Side:      Buy,
		TradeID:   ts.String(),
	}
}

func TestBuildBars_SingleWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []Tick{
		mkTick("BTCUSD", base.Add(1*time.Second), 100, 1),
		mkTick("BTCUSD", base.Add(30*time.Second), 110, 2),
		mkTick("BTCUSD", base.Add(59*time.Second), 90, 1),
	}

	bars := BuildBars(ticks, Timeframe1m)
	require.Len(t, bars, 1)

	bar := bars[0]
	assert.Equal(t, "BTCUSD", bar.Symbol)
	assert.True(t, bar.Open.Equal(decimal.NewFromFloat(100)))
	assert.True(t, bar.Close.Equal(decimal.NewFromFloat(90)))
	assert.True(t, bar.High.Equal(decimal.NewFromFloat(110)))
	assert.True(t, bar.Low.Equal(decimal.NewFromFloat(90)))
	assert.True(t, bar.Volume.Equal(decimal.NewFromFloat(4)))
}

func TestBuildBars_UnsortedInputAndMultipleWindows(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []Tick{
		mkTick("BTCUSD", base.Add(90*time.Second), 200, 1), // window 2
		mkTick("BTCUSD", base.Add(1*time.Second), 100, 1),  // window 1
		mkTick("ETHUSD", base.Add(1*time.Second), 10, 5),   // different symbol
	}

	bars := BuildBars(ticks, Timeframe1m)
	require.Len(t, bars, 3)

	assert.Equal(t, "BTCUSD", bars[0].Symbol)
	assert.Equal(t, "BTCUSD", bars[1].Symbol)
	assert.Equal(t, "ETHUSD", bars[2].Symbol)
	assert.True(t, bars[0].WindowStart.Before(bars[1].WindowStart))
}

func TestAlign(t *testing.T) {
	ts := time.Date(2026, 1, 1, 10, 30, 45, 0, time.UTC)
	aligned := Align(ts, Timeframe5m)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC), aligned)
}
