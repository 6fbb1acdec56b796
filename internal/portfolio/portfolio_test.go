package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestPortfolio_CommissionScenario(t *testing.T) {
	p := New(dec("10000")).WithCommissionRate(dec("0.001"))

	require.NoError(t, p.ExecuteBuy("BTCUSD", dec("1"), dec("5000"), t0))
	assert.True(t, p.Cash().Equal(dec("4995")), "cash after buy: %s", p.Cash())

	require.NoError(t, p.ExecuteSell("BTCUSD", dec("1"), dec("5100"), t0.Add(time.Hour)))
	assert.True(t, p.Cash().Equal(dec("10089.9")), "cash after sell: %s", p.Cash())

	trades := p.Trades()
	require.Len(t, trades, 2)
	sell := trades[1]
	require.NotNil(t, sell.RealizedPnL)
	assert.True(t, sell.RealizedPnL.Equal(dec("89.9")), "realized pnl: %s", sell.RealizedPnL)

	assert.True(t, p.TotalCommission().Equal(dec("10.1")), "total commission: %s", p.TotalCommission())
	assert.Nil(t, p.Position("BTCUSD"))
}

func TestPortfolio_WeightedAverageEntryOnSecondBuy(t *testing.T) {
	p := New(dec("100000"))

	require.NoError(t, p.ExecuteBuy("ETHUSD", dec("2"), dec("100"), t0))
	require.NoError(t, p.ExecuteBuy("ETHUSD", dec("2"), dec("200"), t0.Add(time.Hour)))

	pos := p.Position("ETHUSD")
	require.NotNil(t, pos)
	assert.True(t, pos.Quantity.Equal(dec("4")))
	assert.True(t, pos.AvgEntryPrice.Equal(dec("150")), "avg entry: %s", pos.AvgEntryPrice)
}

func TestPortfolio_ExecuteBuyFailsOnInsufficientCash(t *testing.T) {
	p := New(dec("100"))
	err := p.ExecuteBuy("BTCUSD", dec("1"), dec("5000"), t0)
	assert.Error(t, err)
	assert.True(t, p.Cash().Equal(dec("100")))
}

func TestPortfolio_ExecuteSellFailsWithoutPosition(t *testing.T) {
	p := New(dec("1000"))
	err := p.ExecuteSell("BTCUSD", dec("1"), dec("100"), t0)
	assert.Error(t, err)
}

func TestPortfolio_ExecuteSellFailsWhenQuantityExceedsPosition(t *testing.T) {
	p := New(dec("100000"))
	require.NoError(t, p.ExecuteBuy("BTCUSD", dec("1"), dec("100"), t0))
	err := p.ExecuteSell("BTCUSD", dec("2"), dec("100"), t0.Add(time.Hour))
	assert.Error(t, err)
}

func TestPortfolio_UpdatePriceAppendsEquityCurve(t *testing.T) {
	p := New(dec("1000"))
	p.UpdatePrice("BTCUSD", dec("100"), t0)
	p.UpdatePrice("BTCUSD", dec("110"), t0.Add(time.Hour))

	curve := p.GetEquityCurve()
	require.Len(t, curve, 2)
	assert.True(t, curve[0].Value.Equal(dec("1000")))
	assert.True(t, curve[1].Value.Equal(dec("1000")))
	assert.True(t, curve[0].Timestamp.Equal(t0))
	assert.True(t, curve[1].Timestamp.Equal(t0.Add(time.Hour)))
}

func TestPortfolio_TotalValueAndPnLTrackOpenPosition(t *testing.T) {
	p := New(dec("10000")).WithCommissionRate(dec("0.001"))
	require.NoError(t, p.ExecuteBuy("BTCUSD", dec("1"), dec("5000"), t0))
	p.UpdatePrice("BTCUSD", dec("5500"), t0.Add(time.Hour))

	assert.True(t, p.TotalValue().Equal(dec("10495")), "total value: %s", p.TotalValue())
	assert.True(t, p.TotalPnL().Equal(dec("495")), "total pnl: %s", p.TotalPnL())
}
