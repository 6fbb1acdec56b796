package venue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tickstore/internal/tick"
	"github.com/sawpanic/tickstore/internal/venue"
)

type stubAdapter struct{ name string }

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) SubscribeTrades(ctx context.Context, symbols []string, handler venue.TradeHandler) error {
	return nil
}
func (s *stubAdapter) GetHistoricalTrades(ctx context.Context, symbol string, from, to time.Time) ([]tick.Tick, error) {
	return nil, nil
}
func (s *stubAdapter) Close() error { return nil }

func TestRegisterAndCreate(t *testing.T) {
	venue.Register("stub-test", func(cfg map[string]string) (venue.Adapter, error) {
		return &stubAdapter{name: "stub-test"}, nil
	})

	a, err := venue.Create("stub-test", nil)
	require.NoError(t, err)
	assert.Equal(t, "stub-test", a.Name())
}

func TestCreateUnknownVenue(t *testing.T) {
	_, err := venue.Create("does-not-exist", nil)
	assert.Error(t, err)
}

func TestErrorKindUnwrap(t *testing.T) {
	base := assert.AnError
	err := venue.NewError("binance", venue.ErrRateLimit, base)
	assert.True(t, venue.IsKind(err, venue.ErrRateLimit))
	assert.False(t, venue.IsKind(err, venue.ErrTimeout))
	assert.ErrorIs(t, err, base)
}
