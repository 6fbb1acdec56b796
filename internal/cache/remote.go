package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sawpanic/tickstore/internal/tick"
)

// remoteTier stores one Redis list per symbol under key "ticks:{symbol}",
// newest element at the head (LPUSH), trimmed to maxLen (LTRIM), with the
// key's TTL refreshed on every write (EXPIRE). This is the Open Question 2
// resolution recorded in SPEC_FULL.md.
type remoteTier struct {
	client *redis.Client
	maxLen int64
	ttl    time.Duration
}

func newRemoteTier(client *redis.Client, maxLen int64, ttl time.Duration) *remoteTier {
	return &remoteTier{client: client, maxLen: maxLen, ttl: ttl}
}

func remoteKey(symbol string) string {
	return "ticks:" + symbol
}

func (r *remoteTier) push(ctx context.Context, t tick.Tick) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("cache: marshal tick: %w", err)
	}

	key := remoteKey(t.Symbol)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, r.maxLen-1)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: remote push: %w", err)
	}
	return nil
}

func (r *remoteTier) recent(ctx context.Context, symbol string, n int64) ([]tick.Tick, error) {
	key := remoteKey(symbol)
	if n <= 0 || n > r.maxLen {
		n = r.maxLen
	}

	raw, err := r.client.LRange(ctx, key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: remote lrange: %w", err)
	}

	ticks := make([]tick.Tick, 0, len(raw))
	for _, item := range raw {
		var t tick.Tick
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("cache: unmarshal tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}

func (r *remoteTier) clear(ctx context.Context, symbol string) error {
	if err := r.client.Del(ctx, remoteKey(symbol)).Err(); err != nil {
		return fmt.Errorf("cache: remote clear: %w", err)
	}
	return nil
}

func (r *remoteTier) ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
