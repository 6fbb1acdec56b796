package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tickstore/internal/tick"
)

func mkTick(symbol, tradeID string) tick.Tick {
	return tick.Tick{
		Timestamp: time.Now(),
		Symbol:    symbol,
		Price:     decimal.NewFromInt(1),
		Quantity:  decimal.NewFromInt(1),
		Side:      tick.Buy,
		TradeID:   tradeID,
	}
}

func TestCache_DegradedModeOnUnreachableRedis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RemoteAddr = "127.0.0.1:1" // nothing listens here
	c := New(cfg)
	defer c.Close()

	require.True(t, c.Degraded())

	ctx := context.Background()
	c.Put(ctx, mkTick("BTCUSD", "1"))
	got := c.GetRecent(ctx, "BTCUSD", 10)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].TradeID)
}

func TestMemoryRing_BoundedFIFO(t *testing.T) {
	r := newMemoryRing(3)
	for i := 0; i < 5; i++ {
		r.push(mkTick("ETHUSD", string(rune('a'+i))))
	}

	recent := r.recent("ETHUSD", 10)
	require.Len(t, recent, 3)
	// ascending order: pushes were a,b,c,d,e -> ring holds c,d,e -> recent() returns c,d,e
	assert.Equal(t, "c", recent[0].TradeID)
	assert.Equal(t, "d", recent[1].TradeID)
	assert.Equal(t, "e", recent[2].TradeID)
}

func TestMemoryRing_ClearAndSymbols(t *testing.T) {
	r := newMemoryRing(10)
	r.push(mkTick("BTCUSD", "1"))
	r.push(mkTick("ETHUSD", "2"))

	assert.ElementsMatch(t, []string{"BTCUSD", "ETHUSD"}, r.symbols())

	r.clear("BTCUSD")
	assert.Equal(t, []string{"ETHUSD"}, r.symbols())
	assert.Empty(t, r.recent("BTCUSD", 10))
}
