package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tickstore/internal/cache"
	"github.com/sawpanic/tickstore/internal/store"
	"github.com/sawpanic/tickstore/internal/tick"
)

type fakeStore struct {
	inserted []tick.Tick
	bySymbol map[string][]tick.Tick
}

func newFakeStore() *fakeStore {
	return &fakeStore{bySymbol: make(map[string][]tick.Tick)}
}

func (f *fakeStore) Insert(ctx context.Context, t tick.Tick) error {
	f.inserted = append(f.inserted, t)
	f.bySymbol[t.Symbol] = append(f.bySymbol[t.Symbol], t)
	return nil
}

func (f *fakeStore) InsertBatch(ctx context.Context, ticks []tick.Tick) error {
	for _, t := range ticks {
		f.Insert(ctx, t)
	}
	return nil
}

func (f *fakeStore) ListBySymbol(ctx context.Context, symbol string, tr store.TimeRange, limit int) ([]tick.Tick, error) {
	all := f.bySymbol[symbol]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]tick.Tick, len(all))
	for i := range all {
		out[i] = all[len(all)-1-i]
	}
	return out, nil
}

func (f *fakeStore) GetLatest(ctx context.Context, symbol string, limit int) ([]tick.Tick, error) {
	return f.ListBySymbol(ctx, symbol, store.TimeRange{From: time.Time{}, To: time.Now().Add(time.Hour)}, limit)
}

func (f *fakeStore) Count(ctx context.Context, symbol string, tr store.TimeRange) (int64, error) {
	return int64(len(f.bySymbol[symbol])), nil
}

func (f *fakeStore) SymbolInfo(ctx context.Context, symbol string) (*store.SymbolInfo, error) {
	all := f.bySymbol[symbol]
	return &store.SymbolInfo{Symbol: symbol, Count: int64(len(all))}, nil
}

func (f *fakeStore) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func mkTick(symbol, tradeID string, ts time.Time) tick.Tick {
	return tick.Tick{
		Timestamp: ts,
		Symbol:    symbol,
		Price:     decimal.NewFromInt(100),
		Quantity:  decimal.NewFromInt(1),
		Side:      tick.Buy,
		TradeID:   tradeID,
	}
}

func TestRepository_InsertThenLatestPrice(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	c := cache.New(cache.DefaultConfig())
	defer c.Close()

	repo := New(s, c)

	now := time.Now()
	require.NoError(t, repo.InsertTick(ctx, mkTick("BTCUSD", "1", now)))

	latest, err := repo.LatestPrice(ctx, "BTCUSD")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "1", latest.TradeID)
}

func TestRepository_LatestPriceFallsBackToStoreOnCacheMiss(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	c := cache.New(cache.DefaultConfig())
	defer c.Close()

	repo := New(s, c)

	// Insert directly into the store, bypassing the cache, to simulate a
	// tick written before this process started.
	require.NoError(t, s.Insert(ctx, mkTick("ETHUSD", "7", time.Now())))

	latest, err := repo.LatestPrice(ctx, "ETHUSD")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "7", latest.TradeID)
}

func TestRepository_BacktestTicksReturnsChronologicalOrder(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	c := cache.New(cache.DefaultConfig())
	defer c.Close()

	repo := New(s, c)

	base := time.Now().Add(-time.Hour)
	require.NoError(t, s.Insert(ctx, mkTick("BTCUSD", "1", base)))
	require.NoError(t, s.Insert(ctx, mkTick("BTCUSD", "2", base.Add(time.Minute))))
	require.NoError(t, s.Insert(ctx, mkTick("BTCUSD", "3", base.Add(2*time.Minute))))

	ticks, err := repo.BacktestTicks(ctx, "BTCUSD", store.TimeRange{From: base.Add(-time.Minute), To: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	assert.True(t, ticks[0].Timestamp.Before(ticks[1].Timestamp))
	assert.True(t, ticks[1].Timestamp.Before(ticks[2].Timestamp))
}

func TestRepository_BacktestTicksErrorsWhenNoData(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	c := cache.New(cache.DefaultConfig())
	defer c.Close()

	repo := New(s, c)
	_, err := repo.BacktestTicks(ctx, "NOPE", store.TimeRange{From: time.Now().Add(-time.Hour), To: time.Now()})
	assert.Error(t, err)
}

func TestRepository_BacktestLatestReturnsChronologicalOrder(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	c := cache.New(cache.DefaultConfig())
	defer c.Close()

	repo := New(s, c)

	base := time.Now().Add(-time.Hour)
	require.NoError(t, s.Insert(ctx, mkTick("BTCUSD", "1", base)))
	require.NoError(t, s.Insert(ctx, mkTick("BTCUSD", "2", base.Add(time.Minute))))
	require.NoError(t, s.Insert(ctx, mkTick("BTCUSD", "3", base.Add(2*time.Minute))))

	ticks, err := repo.BacktestLatest(ctx, "BTCUSD", 2)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, "2", ticks[0].TradeID)
	assert.Equal(t, "3", ticks[1].TradeID)
}

func TestRepository_GetTicksWritesStoreFallbackBackToCache(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	c := cache.New(cache.DefaultConfig())
	defer c.Close()

	repo := New(s, c)

	base := time.Now().Add(-time.Hour)
	require.NoError(t, s.Insert(ctx, mkTick("BTCUSD", "1", base)))

	ticks, err := repo.GetTicks(ctx, "BTCUSD", store.TimeRange{From: base.Add(-time.Minute), To: base.Add(time.Hour)}, 1)
	require.NoError(t, err)
	require.Len(t, ticks, 1)

	// the store fallback must have been written back into the cache.
	cached := c.GetRecent(ctx, "BTCUSD", 10)
	require.Len(t, cached, 1)
	assert.Equal(t, "1", cached[0].TradeID)
}
