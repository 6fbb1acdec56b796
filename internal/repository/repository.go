// Package repository combines the Tick Store and the Tiered Cache behind
// a single facade, matching the teacher's persistence.Repository aggregate
// pattern (one struct grouping per-concern sub-repos) but with a real
// cache-first read path instead of a plain field grouping.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tickstore/internal/cache"
	"github.com/sawpanic/tickstore/internal/store"
	"github.com/sawpanic/tickstore/internal/tick"
)

// Repository is the sole read/write path the rest of the system uses to
// reach tick data: the ingest service writes through it, strategies and
// the backtest engine read through it.
type Repository struct {
	store store.TickStore
	cache *cache.Cache
}

func New(s store.TickStore, c *cache.Cache) *Repository {
	return &Repository{store: s, cache: c}
}

// InsertTick validates, persists, and writes t through to the cache. The
// cache write happens after the store write succeeds, so a reader never
// observes a tick in cache that isn't also durable. Used for one-off
// inserts (REST gap-fill); the ingest service's hot path uses CacheTick +
// InsertBatch instead, to keep the store write on the batching path.
func (r *Repository) InsertTick(ctx context.Context, t tick.Tick) error {
	if err := r.store.Insert(ctx, t); err != nil {
		return fmt.Errorf("repository: insert: %w", err)
	}
	r.cache.Put(ctx, t)
	return nil
}

// CacheTick writes t through to the cache only, without touching the
// store. The ingest service calls this on every tick off the wire so reads
// stay hot immediately, while durability is handled separately by the
// batching flush into the store.
func (r *Repository) CacheTick(ctx context.Context, t tick.Tick) error {
	return r.cache.Put(ctx, t)
}

// InsertBatch persists a batch of ticks and writes each through to cache.
func (r *Repository) InsertBatch(ctx context.Context, ticks []tick.Tick) error {
	if err := r.store.InsertBatch(ctx, ticks); err != nil {
		return fmt.Errorf("repository: insert batch: %w", err)
	}
	for _, t := range ticks {
		_ = r.cache.Put(ctx, t)
	}
	return nil
}

// GetTicks returns up to limit of the most recent ticks for symbol within
// tr, preferring the cache; when the cache can't satisfy the full request
// (too few entries, or the window reaches further back than the cache's
// retention), it answers the whole request from the store instead and
// writes the store's ticks back into the cache.
func (r *Repository) GetTicks(ctx context.Context, symbol string, tr store.TimeRange, limit int) ([]tick.Tick, error) {
	cached := r.cache.GetRecent(ctx, symbol, limit)

	withinWindow := make([]tick.Tick, 0, len(cached))
	for _, t := range cached {
		if !t.Timestamp.Before(tr.From) && t.Timestamp.Before(tr.To) {
			withinWindow = append(withinWindow, t)
		}
	}

	if len(withinWindow) >= limit {
		return withinWindow, nil
	}

	log.Debug().Str("symbol", symbol).Int("cache_hits", len(withinWindow)).Msg("repository: cache miss, falling back to store")
	fromStore, err := r.store.ListBySymbol(ctx, symbol, tr, limit)
	if err != nil {
		return nil, err
	}
	for _, t := range fromStore {
		_ = r.cache.Put(ctx, t)
	}
	return fromStore, nil
}

// LatestPrice returns the most recent tick for symbol, or nil if none
// exists in either tier.
func (r *Repository) LatestPrice(ctx context.Context, symbol string) (*tick.Tick, error) {
	cached := r.cache.GetRecent(ctx, symbol, 1)
	if len(cached) > 0 {
		return &cached[0], nil
	}

	latest, err := r.store.GetLatest(ctx, symbol, 1)
	if err != nil {
		return nil, fmt.Errorf("repository: latest price: %w", err)
	}
	if len(latest) == 0 {
		return nil, nil
	}
	return &latest[0], nil
}

// BacktestTicks fetches the full tick history for symbol within tr directly
// from the store, bypassing the cache: backtest replay windows are
// typically far larger than the cache's retention.
func (r *Repository) BacktestTicks(ctx context.Context, symbol string, tr store.TimeRange) ([]tick.Tick, error) {
	info, err := r.store.SymbolInfo(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("repository: symbol info: %w", err)
	}
	if info.Count == 0 {
		return nil, fmt.Errorf("repository: no data for symbol %s", symbol)
	}

	const pageSize = 10000
	var all []tick.Tick
	cursor := tr.To

	for {
		page, err := r.store.ListBySymbol(ctx, symbol, store.TimeRange{From: tr.From, To: cursor}, pageSize)
		if err != nil {
			return nil, fmt.Errorf("repository: backtest page: %w", err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
		cursor = page[len(page)-1].Timestamp
	}

	// pages arrive newest-first; reverse to chronological order for replay.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

// BacktestLatest fetches the n most recent ticks for symbol directly from
// the store, in chronological order, for an interactive backtest run sized
// by record count rather than a time window.
func (r *Repository) BacktestLatest(ctx context.Context, symbol string, n int) ([]tick.Tick, error) {
	latest, err := r.store.GetLatest(ctx, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("repository: backtest latest: %w", err)
	}

	// GetLatest returns newest-first; reverse to chronological order for replay.
	for i, j := 0, len(latest)-1; i < j; i, j = i+1, j-1 {
		latest[i], latest[j] = latest[j], latest[i]
	}
	return latest, nil
}

// ClearSymbol evicts symbol from cache only; the store remains the durable
// record.
func (r *Repository) ClearSymbol(ctx context.Context, symbol string) {
	r.cache.ClearSymbol(ctx, symbol)
}

// Cleanup removes ticks older than the given retention window from the
// store, matching the feed simulator's periodic retention sweep.
func (r *Repository) Cleanup(ctx context.Context, retain time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retain)
	deleted, err := r.store.CleanupOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("repository: cleanup: %w", err)
	}
	return deleted, nil
}
