// Package tick defines the canonical trade print record shared by every
// layer of the pipeline: venue adapters produce it, the store persists it,
// the cache holds it hot, and the backtest engine replays it.
package tick

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the trade direction from the perspective of the taker.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Tick is an immutable record of a single completed trade print at a venue.
type Tick struct {
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
	Symbol       string          `json:"symbol" db:"symbol"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Quantity     decimal.Decimal `json:"quantity" db:"quantity"`
	Side         Side            `json:"side" db:"side"`
	TradeID      string          `json:"trade_id" db:"trade_id"`
	IsBuyerMaker bool            `json:"is_buyer_maker" db:"is_buyer_maker"`
}

// Validate enforces the insert precondition shared by the store and the
// repository: non-empty symbol and trade id, strictly positive price and
// quantity.
func (t Tick) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("tick: empty symbol")
	}
	if t.TradeID == "" {
		return fmt.Errorf("tick: empty trade_id")
	}
	if t.Price.Sign() <= 0 {
		return fmt.Errorf("tick: non-positive price %s", t.Price)
	}
	if t.Quantity.Sign() <= 0 {
		return fmt.Errorf("tick: non-positive quantity %s", t.Quantity)
	}
	return nil
}

// SideFromBuyerMaker maps the venue's buyer-is-maker flag to a canonical
// Side: when the buyer was the resting (maker) order, the incoming taker
// was a seller.
func SideFromBuyerMaker(isBuyerMaker bool) Side {
	if isBuyerMaker {
		return Sell
	}
	return Buy
}

// NormalizeSymbol upper-cases and validates a venue symbol per spec:
// alphanumeric only, length 3-20.
func NormalizeSymbol(raw string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if len(sym) < 3 || len(sym) > 20 {
		return "", fmt.Errorf("symbol %q: length must be 3-20", raw)
	}
	for _, r := range sym {
		if !((r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return "", fmt.Errorf("symbol %q: alphanumeric only", raw)
		}
	}
	return sym, nil
}
