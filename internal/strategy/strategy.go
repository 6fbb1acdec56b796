// Package strategy defines the capability contract every trading strategy
// satisfies, plus a string-id registry, following the teacher's
// plug-in-by-name convention for its momentum algorithms.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/tickstore/internal/portfolio"
	"github.com/sawpanic/tickstore/internal/tick"
)

// Signal is the trading decision a strategy emits for a single price
// update. Hold is implicit: a strategy returning no Signal took no action.
type Signal struct {
	Symbol string
	Side   tick.Side
	Qty    decimal.Decimal
}

// Strategy reacts to each incoming price point and optionally emits a
// signal. Implementations are not expected to be safe for concurrent use;
// the backtest engine owns a single instance for the duration of a run.
type Strategy interface {
	Name() string
	Description() string
	Parameters() map[string]string

	// OnTick is called for every new price point, in chronological order.
	// pos is the caller's current position for the strategy's symbol, so
	// the strategy can decide whether a signal would be a no-op.
	OnTick(t tick.Tick, pos *portfolio.Position) (*Signal, error)

	// Reset clears any rolling state, so one instance can be reused across
	// backtest runs without reconstruction.
	Reset()
}

// Factory builds a new Strategy from string-keyed parameters, the same
// shape the teacher's provider/algo registries use.
type Factory func(params map[string]string) (Strategy, error)

// entry pairs a registered factory with the catalog metadata list_strategies
// reports, so Listing never needs to construct a throwaway instance just to
// read its name and description.
type entry struct {
	description string
	factory     Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]entry)
)

// Register adds a strategy factory under id, with the human-readable
// description its catalog entry reports.
func Register(id, description string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = entry{description: description, factory: factory}
}

// Create instantiates a registered strategy by id.
func Create(id string, params map[string]string) (Strategy, error) {
	registryMu.RLock()
	e, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy: unknown strategy %q", id)
	}
	return e.factory(params)
}

// Names lists every registered strategy id.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for id := range registry {
		names = append(names, id)
	}
	return names
}

// Catalog is one entry of list_strategies()'s advertised strategy catalog.
type Catalog struct {
	ID          string
	Name        string
	Description string
}

// ListCatalog returns the full {id, name, description} catalog of every
// registered strategy, sorted by id. Name is read off a zero-params
// instance: every built-in strategy's Name() is a fixed string that does
// not depend on its parameters.
func ListCatalog() ([]Catalog, error) {
	registryMu.RLock()
	ids := make([]string, 0, len(registry))
	entries := make(map[string]entry, len(registry))
	for id, e := range registry {
		ids = append(ids, id)
		entries[id] = e
	}
	registryMu.RUnlock()

	sort.Strings(ids)

	out := make([]Catalog, 0, len(ids))
	for _, id := range ids {
		e := entries[id]
		strat, err := e.factory(map[string]string{})
		if err != nil {
			return nil, fmt.Errorf("strategy: catalog entry %q: %w", id, err)
		}
		out = append(out, Catalog{ID: id, Name: strat.Name(), Description: e.description})
	}
	return out, nil
}
