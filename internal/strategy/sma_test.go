package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tickstore/internal/portfolio"
	"github.com/sawpanic/tickstore/internal/tick"
)

func mkTick(price float64) tick.Tick {
	return tick.Tick{
		Timestamp: time.Now(),
		Symbol:    "BTCUSD",
		Price:     decimal.NewFromFloat(price),
		Quantity:  decimal.NewFromInt(1),
		Side:      tick.Buy,
		TradeID:   "t",
	}
}

func TestSMA_NoSignalUntilBothWindowsFull(t *testing.T) {
	s := NewSMA("BTCUSD", 2, 3, decimal.NewFromInt(1))

	sig, err := s.OnTick(mkTick(100), nil)
	require.NoError(t, err)
	assert.Nil(t, sig)

	sig, err = s.OnTick(mkTick(101), nil)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestSMA_BuySignalOnGoldenCrossWithNoPosition(t *testing.T) {
	s := NewSMA("BTCUSD", 2, 3, decimal.NewFromInt(2))

	// long window fills with a flat run, then short jumps up.
	_, _ = s.OnTick(mkTick(100), nil)
	_, _ = s.OnTick(mkTick(100), nil)
	sig, err := s.OnTick(mkTick(130), nil)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, tick.Buy, sig.Side)
	assert.True(t, sig.Qty.Equal(decimal.NewFromInt(2)))
}

func TestSMA_NoBuySignalWhenPositionAlreadyOpen(t *testing.T) {
	s := NewSMA("BTCUSD", 2, 3, decimal.NewFromInt(1))
	pos := &portfolio.Position{Symbol: "BTCUSD", Quantity: decimal.NewFromInt(1)}

	_, _ = s.OnTick(mkTick(100), pos)
	_, _ = s.OnTick(mkTick(100), pos)
	sig, err := s.OnTick(mkTick(130), pos)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestSMA_SellSignalOnDeathCrossWithOpenPosition(t *testing.T) {
	s := NewSMA("BTCUSD", 2, 3, decimal.NewFromInt(1))
	pos := &portfolio.Position{Symbol: "BTCUSD", Quantity: decimal.NewFromInt(1)}

	_, _ = s.OnTick(mkTick(130), pos)
	_, _ = s.OnTick(mkTick(100), pos)
	sig, err := s.OnTick(mkTick(90), pos)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, tick.Sell, sig.Side)
	assert.True(t, sig.Qty.Equal(decimal.NewFromInt(1)))
}

func TestSMA_IgnoresTicksForOtherSymbols(t *testing.T) {
	s := NewSMA("BTCUSD", 2, 3, decimal.NewFromInt(1))
	other := mkTick(130)
	other.Symbol = "ETHUSD"

	sig, err := s.OnTick(other, nil)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestSMA_ResetClearsWindows(t *testing.T) {
	s := NewSMA("BTCUSD", 2, 3, decimal.NewFromInt(1))
	_, _ = s.OnTick(mkTick(100), nil)
	_, _ = s.OnTick(mkTick(100), nil)
	sig, _ := s.OnTick(mkTick(130), nil)
	require.NotNil(t, sig)

	s.Reset()
	sig, err := s.OnTick(mkTick(130), nil)
	require.NoError(t, err)
	assert.Nil(t, sig, "freshly reset strategy should need both windows refilled before signaling")
}

func TestCreateRegisteredSMAStrategy(t *testing.T) {
	s, err := Create("sma_crossover", map[string]string{
		"symbol":            "BTCUSD",
		"short_period":      "5",
		"long_period":       "20",
		"position_quantity": "1.5",
	})
	require.NoError(t, err)
	assert.Equal(t, "sma_crossover", s.Name())
}

func TestListCatalogReportsRegisteredStrategies(t *testing.T) {
	catalog, err := ListCatalog()
	require.NoError(t, err)
	require.NotEmpty(t, catalog)

	found := false
	for _, c := range catalog {
		if c.ID == "sma_crossover" {
			found = true
			assert.Equal(t, "sma_crossover", c.Name)
			assert.NotEmpty(t, c.Description)
		}
	}
	assert.True(t, found, "sma_crossover should be in the catalog")
}
