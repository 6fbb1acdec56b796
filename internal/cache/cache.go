// Package cache implements the two-tier hot-tick cache: a bounded
// in-process ring per symbol for the hottest reads, backed by a Redis list
// per symbol for a slightly deeper, process-restart-surviving window.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tickstore/internal/tick"
)

// Config configures the tiered cache.
type Config struct {
	MemoryCapacity int           // max ticks held in the in-process ring, per symbol
	RemoteAddr     string        // Redis address; empty disables the remote tier
	RemoteMaxLen   int64         // max ticks held in the Redis list, per symbol
	RemoteTTL      time.Duration // TTL refreshed on every remote write
}

func DefaultConfig() Config {
	return Config{
		MemoryCapacity: 500,
		RemoteMaxLen:   5000,
		RemoteTTL:      24 * time.Hour,
	}
}

// Cache is the tiered hot-tick cache. When constructed without a reachable
// Redis endpoint it runs in degraded mode: writes and reads fall back to
// the memory tier only, mirroring the teacher's db.Manager
// disabled-but-non-fatal pattern for an unreachable dependency at startup.
type Cache struct {
	memory *memoryRing
	remote *remoteTier
}

// New constructs a tiered cache. If cfg.RemoteAddr is set but Redis cannot
// be reached within a short ping timeout, New logs a warning and returns a
// degraded-mode cache rather than failing startup.
func New(cfg Config) *Cache {
	c := &Cache{memory: newMemoryRing(cfg.MemoryCapacity)}

	if cfg.RemoteAddr == "" {
		return c
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RemoteAddr})
	remote := newRemoteTier(client, cfg.RemoteMaxLen, cfg.RemoteTTL)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := remote.ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RemoteAddr).Msg("cache: redis unreachable at startup, running memory-only (degraded mode)")
		client.Close()
		return c
	}

	c.remote = remote
	return c
}

// Degraded reports whether the remote tier is disabled.
func (c *Cache) Degraded() bool { return c.remote == nil }

// Put writes t through to the memory tier, and to the remote tier if
// enabled. The memory tier cannot fail; a non-nil return means the remote
// write-through failed (logged here regardless, so the caller's error
// handling is optional bookkeeping, not the only record of the failure).
func (c *Cache) Put(ctx context.Context, t tick.Tick) error {
	c.memory.push(t)

	if c.remote == nil {
		return nil
	}
	if err := c.remote.push(ctx, t); err != nil {
		log.Warn().Err(err).Str("symbol", t.Symbol).Msg("cache: remote write-through failed")
		return err
	}
	return nil
}

// GetRecent returns up to n of the most recent ticks for symbol, in
// ascending timestamp order (oldest first, most recent last). It serves
// from the memory tier first; if the memory tier has fewer than n entries
// and a remote tier is enabled, it merges in older entries from Redis,
// de-duplicating by trade id.
func (c *Cache) GetRecent(ctx context.Context, symbol string, n int) []tick.Tick {
	fromMemory := c.memory.recent(symbol, n)
	if len(fromMemory) >= n || c.remote == nil {
		return fromMemory
	}

	fromRemote, err := c.remote.recent(ctx, symbol, int64(n))
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("cache: remote read failed, serving memory tier only")
		return fromMemory
	}

	seen := make(map[string]bool, len(fromMemory))
	for _, t := range fromMemory {
		seen[t.TradeID] = true
	}

	// fromRemote arrives newest-first (Redis LPUSH order); collect the
	// entries memory doesn't already have, then reverse them to ascending
	// order so they can be prepended as the older tail of the result.
	extra := make([]tick.Tick, 0, n-len(fromMemory))
	for _, t := range fromRemote {
		if len(fromMemory)+len(extra) >= n {
			break
		}
		if seen[t.TradeID] {
			continue
		}
		seen[t.TradeID] = true
		extra = append(extra, t)
	}
	for i, j := 0, len(extra)-1; i < j; i, j = i+1, j-1 {
		extra[i], extra[j] = extra[j], extra[i]
	}

	merged := make([]tick.Tick, 0, len(extra)+len(fromMemory))
	merged = append(merged, extra...)
	merged = append(merged, fromMemory...)
	return merged
}

// ClearSymbol evicts symbol from both tiers.
func (c *Cache) ClearSymbol(ctx context.Context, symbol string) {
	c.memory.clear(symbol)
	if c.remote != nil {
		if err := c.remote.clear(ctx, symbol); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("cache: remote clear failed")
		}
	}
}

// Symbols lists symbols currently present in the memory tier.
func (c *Cache) Symbols() []string {
	return c.memory.symbols()
}

// Close releases cache resources.
func (c *Cache) Close() {
	c.memory.stop()
}
