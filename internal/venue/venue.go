// Package venue defines the exchange adapter contract used by the ingest
// service: a venue streams live trade prints and, separately, serves
// historical trades for backtest replay.
package venue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sawpanic/tickstore/internal/tick"
)

// ErrorKind classifies adapter failures so callers (ingest retry policy,
// circuit breaker) can branch on failure class rather than string matching.
type ErrorKind string

const (
	ErrInvalidSymbol ErrorKind = "invalid_symbol"
	ErrNetwork       ErrorKind = "network"
	ErrTimeout       ErrorKind = "timeout"
	ErrAPI           ErrorKind = "api"
	ErrParse         ErrorKind = "parse"
	ErrRateLimit     ErrorKind = "rate_limit"
)

// Error wraps a venue failure with its kind and the venue name.
type Error struct {
	Venue string
	Kind  ErrorKind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("venue %s: %s: %v", e.Venue, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(venueName string, kind ErrorKind, err error) *Error {
	return &Error{Venue: venueName, Kind: kind, Err: err}
}

// IsKind reports whether err is a venue Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind == kind
	}
	return false
}

// TradeHandler receives each normalized tick as it arrives off the wire.
type TradeHandler func(tick.Tick)

// Adapter is the capability contract every exchange integration satisfies.
// Implementations own their own connection lifecycle; SubscribeTrades
// blocks, delivering trades to handler, until ctx is cancelled or Close is
// called (returning nil) or the connection fails fatally (returning an
// error).
type Adapter interface {
	// Name identifies the venue, e.g. "binance", "kraken".
	Name() string

	// SubscribeTrades opens (or reuses) a streaming connection for the given
	// symbols and invokes handler for every trade print received.
	SubscribeTrades(ctx context.Context, symbols []string, handler TradeHandler) error

	// GetHistoricalTrades fetches trade prints for symbol within [from, to)
	// via REST, for backtest replay and gap-fill.
	GetHistoricalTrades(ctx context.Context, symbol string, from, to time.Time) ([]tick.Tick, error)

	// Close releases any open connections.
	Close() error
}

// Factory builds a new Adapter instance from venue-specific configuration.
type Factory func(cfg map[string]string) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a venue factory under name. Intended to be called from
// adapter package init() functions, matching the teacher's strategy/provider
// registration convention.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Create instantiates a registered venue adapter by name.
func Create(name string, cfg map[string]string) (Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("venue: unknown venue %q", name)
	}
	return factory(cfg)
}

// Names lists every registered venue name.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
