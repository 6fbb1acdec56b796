package tick

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTick_Validate(t *testing.T) {
	valid := Tick{
		Timestamp: time.Now(),
		Symbol:    "BTCUSD",
		Price:     decimal.NewFromFloat(50000),
		Quantity:  decimal.NewFromFloat(0.1),
		Side:      Buy,
		TradeID:   "t1",
	}
	assert.NoError(t, valid.Validate())

	t.Run("empty_symbol", func(t *testing.T) {
		tk := valid
		tk.Symbol = ""
		assert.Error(t, tk.Validate())
	})

	t.Run("empty_trade_id", func(t *testing.T) {
		tk := valid
		tk.TradeID = ""
		assert.Error(t, tk.Validate())
	})

	t.Run("non_positive_price", func(t *testing.T) {
		tk := valid
		tk.Price = decimal.Zero
		assert.Error(t, tk.Validate())
	})

	t.Run("negative_quantity", func(t *testing.T) {
		tk := valid
		tk.Quantity = decimal.NewFromFloat(-1)
		assert.Error(t, tk.Validate())
	})
}

func TestSideFromBuyerMaker(t *testing.T) {
	assert.Equal(t, Sell, SideFromBuyerMaker(true))
	assert.Equal(t, Buy, SideFromBuyerMaker(false))
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"lowercase", "btcusd", "BTCUSD", false},
		{"mixed_case_with_space", " EthUsd ", "ETHUSD", false},
		{"too_short", "bt", "", true},
		{"non_alphanumeric", "BTC-USD", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSymbol(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
