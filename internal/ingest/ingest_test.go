package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tickstore/internal/cache"
	"github.com/sawpanic/tickstore/internal/repository"
	"github.com/sawpanic/tickstore/internal/store"
	"github.com/sawpanic/tickstore/internal/tick"
	"github.com/sawpanic/tickstore/internal/venue"
)

type fakeStore struct {
	inserted int64
}

func (f *fakeStore) Insert(ctx context.Context, t tick.Tick) error {
	f.inserted++
	return nil
}
func (f *fakeStore) InsertBatch(ctx context.Context, ticks []tick.Tick) error {
	f.inserted += int64(len(ticks))
	return nil
}
func (f *fakeStore) ListBySymbol(ctx context.Context, symbol string, tr store.TimeRange, limit int) ([]tick.Tick, error) {
	return nil, nil
}
func (f *fakeStore) GetLatest(ctx context.Context, symbol string, limit int) ([]tick.Tick, error) {
	return nil, nil
}
func (f *fakeStore) Count(ctx context.Context, symbol string, tr store.TimeRange) (int64, error) {
	return f.inserted, nil
}
func (f *fakeStore) SymbolInfo(ctx context.Context, symbol string) (*store.SymbolInfo, error) {
	return &store.SymbolInfo{Symbol: symbol}, nil
}
func (f *fakeStore) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeAdapter struct {
	emit []tick.Tick
}

func (f *fakeAdapter) Name() string { return "fake" }
func (f *fakeAdapter) SubscribeTrades(ctx context.Context, symbols []string, handler venue.TradeHandler) error {
	for _, t := range f.emit {
		handler(t)
	}
	<-ctx.Done()
	return nil
}
func (f *fakeAdapter) GetHistoricalTrades(ctx context.Context, symbol string, from, to time.Time) ([]tick.Tick, error) {
	return nil, nil
}
func (f *fakeAdapter) Close() error { return nil }

func mkTick(id string) tick.Tick {
	return tick.Tick{
		Timestamp: time.Now(),
		Symbol:    "BTCUSD",
		Price:     decimal.NewFromInt(100),
		Quantity:  decimal.NewFromInt(1),
		Side:      tick.Buy,
		TradeID:   id,
	}
}

func TestService_ProcessesTicksAndFlushesOnShutdown(t *testing.T) {
	s := &fakeStore{}
	c := cache.New(cache.DefaultConfig())
	defer c.Close()
	repo := repository.New(s, c)

	adapter := &fakeAdapter{emit: []tick.Tick{mkTick("1"), mkTick("2"), mkTick("3")}}

	cfg := DefaultBatchConfig()
	cfg.MaxBatchSize = 100 // big enough that only the shutdown flush fires
	cfg.MaxBatchTime = time.Hour

	svc := New(adapter, repo, []string{"BTCUSD"}, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, svc.Run(ctx))

	stats := svc.Stats()
	assert.Equal(t, int64(3), stats.TotalTicksProcessed)
	assert.Equal(t, int64(1), stats.TotalBatchesFlushed)
	assert.Equal(t, int64(3), s.inserted)
}

func TestService_RunErrorsWithNoSymbols(t *testing.T) {
	s := &fakeStore{}
	c := cache.New(cache.DefaultConfig())
	defer c.Close()
	repo := repository.New(s, c)

	svc := New(&fakeAdapter{}, repo, nil, DefaultBatchConfig())
	err := svc.Run(context.Background())
	assert.Error(t, err)
}
