package tick

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe is a bar aggregation window.
type Timeframe time.Duration

const (
	Timeframe1m Timeframe = Timeframe(time.Minute)
	Timeframe5m Timeframe = Timeframe(5 * time.Minute)
	Timeframe1h Timeframe = Timeframe(time.Hour)
)

// Bar is a derived OHLC aggregate over a (symbol, timeframe, window) bucket.
type Bar struct {
	Symbol      string
	Timeframe   Timeframe
	WindowStart time.Time
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
}

// Align truncates a timestamp down to the start of its timeframe window.
func Align(ts time.Time, tf Timeframe) time.Time {
	d := time.Duration(tf)
	if d <= 0 {
		return ts
	}
	return ts.Truncate(d)
}

// BuildBars groups ticks by (symbol, align(timestamp, timeframe)) and
// reduces each group to an OHLC bar. Ticks need not arrive pre-sorted;
// each group is sorted by timestamp before open/high/low/close/volume are
// derived.
func BuildBars(ticks []Tick, tf Timeframe) []Bar {
	groups := make(map[string][]Tick)
	order := make([]string, 0)

	keyOf := func(t Tick) (string, time.Time) {
		start := Align(t.Timestamp, tf)
		return t.Symbol + "|" + start.Format(time.RFC3339Nano), start
	}

	windowStarts := make(map[string]time.Time)
	for _, t := range ticks {
		key, start := keyOf(t)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
			windowStarts[key] = start
		}
		groups[key] = append(groups[key], t)
	}

	bars := make([]Bar, 0, len(order))
	for _, key := range order {
		group := groups[key]
		sort.Slice(group, func(i, j int) bool {
			return group[i].Timestamp.Before(group[j].Timestamp)
		})

		bar := Bar{
			Symbol:      group[0].Symbol,
			Timeframe:   tf,
			WindowStart: windowStarts[key],
			Open:        group[0].Price,
			Close:       group[len(group)-1].Price,
			High:        group[0].Price,
			Low:         group[0].Price,
			Volume:      decimal.Zero,
		}
		for _, t := range group {
			if t.Price.GreaterThan(bar.High) {
				bar.High = t.Price
			}
			if t.Price.LessThan(bar.Low) {
				bar.Low = t.Price
			}
			bar.Volume = bar.Volume.Add(t.Quantity)
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool {
		if bars[i].Symbol != bars[j].Symbol {
			return bars[i].Symbol < bars[j].Symbol
		}
		return bars[i].WindowStart.Before(bars[j].WindowStart)
	})

	return bars
}
