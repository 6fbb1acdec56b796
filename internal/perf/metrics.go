// Package perf computes backtest performance metrics as pure functions
// over a portfolio's trade log and equity curve. Named perf rather than
// metrics because the teacher's internal/metrics package already covers an
// unrelated concern (momentum VADR/freshness scoring for the scanner);
// this package is otherwise a line-for-line port of
// original_source/trading-core/src/backtest/metrics.rs, with calmar and
// average trade duration implemented for real where the original left
// them as TODO zero-value stubs.
package perf

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/tickstore/internal/portfolio"
	"github.com/sawpanic/tickstore/internal/tick"
)

// MaxDrawdown walks the equity curve once, tracking the running peak, and
// returns the largest peak-to-trough decline as a fraction (0 if the curve
// never had a positive peak) along with the wall-clock duration of that
// specific drawdown (from the peak to the trough that set the record).
func MaxDrawdown(curve []portfolio.EquityPoint) (decimal.Decimal, time.Duration) {
	maxDD := decimal.Zero
	var maxDDDuration time.Duration

	peak := decimal.Zero
	var peakTime time.Time

	for _, point := range curve {
		if point.Value.GreaterThan(peak) {
			peak = point.Value
			peakTime = point.Timestamp
			continue
		}
		if peak.IsZero() {
			continue
		}
		drawdown := peak.Sub(point.Value).Div(peak)
		if drawdown.GreaterThan(maxDD) {
			maxDD = drawdown
			maxDDDuration = point.Timestamp.Sub(peakTime)
		}
	}
	return maxDD, maxDDDuration
}

// Returns maps an equity curve to per-period fractional returns: for each
// adjacent pair (v0, v1), (v1-v0)/v0, or 0 when v0 is zero.
func Returns(curve []portfolio.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev, cur := curve[i-1].Value, curve[i].Value
		if prev.Sign() <= 0 {
			out = append(out, 0)
			continue
		}
		r, _ := cur.Sub(prev).Div(prev).Float64()
		out = append(out, r)
	}
	return out
}

const tradingDaysPerYear = 252.0

// Sharpe is the annualized Sharpe ratio: (mean - riskFree) / stddev, scaled
// by sqrt(252). Returns 0 for an empty series or zero variance.
func Sharpe(returns []float64, riskFree float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := meanOf(returns)
	sd := stddevOf(returns, mean)
	if sd == 0 {
		return 0
	}
	return (mean - riskFree) / sd * math.Sqrt(tradingDaysPerYear)
}

// Sortino is identical to Sharpe except the divisor is the annualized
// downside deviation (RMS of negative returns only). Returns 0 when there
// are no negative returns.
func Sortino(returns []float64, riskFree float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := meanOf(returns)

	var sumSq float64
	var n int
	for _, r := range returns {
		if r < 0 {
			sumSq += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	downsideDeviation := math.Sqrt(sumSq / float64(n))
	if downsideDeviation == 0 {
		return 0
	}
	return (mean - riskFree) / downsideDeviation * math.Sqrt(tradingDaysPerYear)
}

// Volatility is the sample standard deviation of returns.
func Volatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := meanOf(returns)
	var sumSq float64
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(returns)-1))
}

// WinRate is the fraction of Sell trades whose realized PnL is positive.
func WinRate(trades []portfolio.Trade) float64 {
	var sells, wins int
	for _, tr := range trades {
		if tr.RealizedPnL == nil {
			continue
		}
		sells++
		if tr.RealizedPnL.Sign() > 0 {
			wins++
		}
	}
	if sells == 0 {
		return 0
	}
	return float64(wins) / float64(sells)
}

// profitFactorInfinite stands in for the original's Decimal::MAX sentinel,
// returned when there are realized profits but no realized losses at all.
var profitFactorInfinite = decimal.New(1, 30)

// ProfitFactor is the ratio of total positive realized PnL to the absolute
// value of total negative realized PnL: 1 when both are zero, "infinite"
// (profitFactorInfinite) when there are profits and no losses.
func ProfitFactor(trades []portfolio.Trade) decimal.Decimal {
	positive := decimal.Zero
	negative := decimal.Zero
	for _, tr := range trades {
		if tr.RealizedPnL == nil {
			continue
		}
		if tr.RealizedPnL.Sign() > 0 {
			positive = positive.Add(*tr.RealizedPnL)
		} else if tr.RealizedPnL.Sign() < 0 {
			negative = negative.Add(tr.RealizedPnL.Neg())
		}
	}

	if negative.IsZero() {
		if positive.IsZero() {
			return decimal.NewFromInt(1)
		}
		return profitFactorInfinite
	}
	return positive.Div(negative)
}

// Calmar is annual return divided by max drawdown, 0 when drawdown is 0.
// The original left this as a TODO stub; spec requires it implemented.
func Calmar(annualReturn float64, maxDrawdown decimal.Decimal) float64 {
	if maxDrawdown.IsZero() {
		return 0
	}
	dd, _ := maxDrawdown.Float64()
	return annualReturn / dd
}

// AverageTradeDuration matches each Sell against the Buy(s) that opened its
// position FIFO, per symbol, and returns the quantity-weighted mean holding
// period in seconds across every matched round trip. A sell can close
// across more than one buy lot (partial fills), each contributing its own
// weighted duration. The original left this as a TODO stub; spec requires
// it implemented.
func AverageTradeDuration(trades []portfolio.Trade) float64 {
	type lot struct {
		opened time.Time
		qty    decimal.Decimal
	}
	open := make(map[string][]lot)

	var totalWeightedSeconds float64
	var totalQty float64

	for _, tr := range trades {
		switch tr.Side {
		case tick.Buy:
			open[tr.Symbol] = append(open[tr.Symbol], lot{opened: tr.Timestamp, qty: tr.Quantity})
		case tick.Sell:
			remaining := tr.Quantity
			queue := open[tr.Symbol]
			for remaining.Sign() > 0 && len(queue) > 0 {
				front := &queue[0]
				matched := front.qty
				if remaining.LessThan(matched) {
					matched = remaining
				}

				seconds := tr.Timestamp.Sub(front.opened).Seconds()
				weight, _ := matched.Float64()
				totalWeightedSeconds += seconds * weight
				totalQty += weight

				front.qty = front.qty.Sub(matched)
				remaining = remaining.Sub(matched)
				if front.qty.IsZero() {
					queue = queue[1:]
				}
			}
			open[tr.Symbol] = queue
		}
	}

	if totalQty == 0 {
		return 0
	}
	return totalWeightedSeconds / totalQty
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddevOf(xs []float64, mean float64) float64 {
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}
