// Package ingest runs the live tick pipeline: a collection task subscribes
// to a venue and pushes normalized ticks onto a bounded channel; a
// processing task drains that channel, writes each tick through to the
// repository, batches them, and flushes the batch to the store on size or
// time triggers. Translated 1:1 from the original MarketDataService:
// tokio tasks become goroutines, mpsc::channel becomes a buffered Go
// channel, and broadcast::Sender<()> becomes a context.Context whose
// cancellation every goroutine observes.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tickstore/internal/repository"
	"github.com/sawpanic/tickstore/internal/tick"
	"github.com/sawpanic/tickstore/internal/venue"
)

// BatchConfig bounds the processing task's batching behavior.
type BatchConfig struct {
	MaxBatchSize    int
	MaxBatchTime    time.Duration
	MaxRetryAttempts int
	RetryDelay      time.Duration
}

func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxBatchSize:     100,
		MaxBatchTime:     1 * time.Second,
		MaxRetryAttempts: 3,
		RetryDelay:       1000 * time.Millisecond,
	}
}

// Stats mirrors the original BatchStats fields exactly, so operators
// reading the /metrics endpoint see the same counters the original
// exposed.
type Stats struct {
	mu sync.Mutex

	TotalTicksProcessed int64
	TotalBatchesFlushed int64
	TotalRetryAttempts  int64
	TotalFailedBatches  int64
	CacheUpdateFailures int64
	LastFlushTime       time.Time
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		TotalTicksProcessed: s.TotalTicksProcessed,
		TotalBatchesFlushed: s.TotalBatchesFlushed,
		TotalRetryAttempts:  s.TotalRetryAttempts,
		TotalFailedBatches:  s.TotalFailedBatches,
		CacheUpdateFailures: s.CacheUpdateFailures,
		LastFlushTime:       s.LastFlushTime,
	}
}

// Service coordinates collection from a venue and processing into the
// repository for a fixed symbol set.
type Service struct {
	adapter    venue.Adapter
	repo       *repository.Repository
	symbols    []string
	batchCfg   BatchConfig
	stats      *Stats
	tickChSize int
}

// New constructs an ingest Service. tickChSize matches the original's
// mpsc::channel(1000) bound.
func New(adapter venue.Adapter, repo *repository.Repository, symbols []string, batchCfg BatchConfig) *Service {
	return &Service{
		adapter:    adapter,
		repo:       repo,
		symbols:    symbols,
		batchCfg:   batchCfg,
		stats:      &Stats{},
		tickChSize: 1000,
	}
}

// Stats returns the service's live counters.
func (s *Service) Stats() Stats { return s.stats.Snapshot() }

// Run starts the collection and processing tasks and blocks until ctx is
// cancelled, at which point both tasks drain and exit: the processing task
// flushes any buffered ticks before returning.
func (s *Service) Run(ctx context.Context) error {
	if len(s.symbols) == 0 {
		return errNoSymbols
	}

	log.Info().Strs("symbols", s.symbols).Msg("ingest: starting market data service")

	tickCh := make(chan tick.Tick, s.tickChSize)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.collect(ctx, tickCh)
	}()

	go func() {
		defer wg.Done()
		s.process(ctx, tickCh)
	}()

	wg.Wait()
	log.Info().Msg("ingest: market data service stopped")
	return nil
}

var errNoSymbols = errNoSymbolsError{}

type errNoSymbolsError struct{}

func (errNoSymbolsError) Error() string { return "ingest: no symbols configured" }

// collect subscribes to the venue and forwards every trade onto tickCh.
// SubscribeTrades blocks for the life of the connection, so this only
// returns once ctx is cancelled (err == nil, a clean shutdown) or the
// adapter exhausts its own bounded reconnect attempts and surfaces a
// fatal error, in which case collect retries the whole subscription from
// scratch after 5 seconds, checking ctx between attempts so shutdown
// during the retry delay is immediate.
func (s *Service) collect(ctx context.Context, tickCh chan<- tick.Tick) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("ingest: collection shutdown requested before connection attempt")
			return
		default:
		}

		err := s.adapter.SubscribeTrades(ctx, s.symbols, func(t tick.Tick) {
			select {
			case tickCh <- t:
			case <-ctx.Done():
			}
		})
		if err == nil {
			log.Info().Msg("ingest: exchange subscription ended on shutdown")
			return
		}

		log.Error().Err(err).Msg("ingest: exchange subscription failed, resubscribing")

		select {
		case <-ctx.Done():
			log.Info().Msg("ingest: collection shutdown requested, canceling retry")
			return
		case <-time.After(5 * time.Second):
			continue
		}
	}
}

// process drains tickCh, writes each tick through the repository, and
// flushes batches to the store on size or time triggers. On ctx
// cancellation it flushes any remaining buffer before returning.
func (s *Service) process(ctx context.Context, tickCh <-chan tick.Tick) {
	buffer := make([]tick.Tick, 0, s.batchCfg.MaxBatchSize)
	flushTimer := time.NewTicker(s.batchCfg.MaxBatchTime)
	defer flushTimer.Stop()

	for {
		select {
		case t, ok := <-tickCh:
			if !ok {
				log.Warn().Msg("ingest: tick channel closed")
				return
			}

			// Cache update happens immediately and non-durably; the store
			// write is deferred to the batch flush below, matching the
			// original's split between update_cache_async and
			// flush_batch_with_retry.
			if err := s.repo.CacheTick(ctx, t); err != nil {
				s.stats.mu.Lock()
				s.stats.CacheUpdateFailures++
				s.stats.mu.Unlock()
			}

			buffer = append(buffer, t)

			s.stats.mu.Lock()
			s.stats.TotalTicksProcessed++
			s.stats.mu.Unlock()

			if len(buffer) >= s.batchCfg.MaxBatchSize {
				s.flushWithRetry(ctx, &buffer)
			}

		case <-flushTimer.C:
			if len(buffer) > 0 {
				log.Debug().Int("batch_size", len(buffer)).Msg("ingest: time-based batch flush triggered")
				s.flushWithRetry(ctx, &buffer)
			}

		case <-ctx.Done():
			log.Info().Msg("ingest: processing shutdown requested, flushing remaining data")
			if len(buffer) > 0 {
				s.flushWithRetry(context.Background(), &buffer)
			}
			return
		}
	}
}

// flushWithRetry writes buffer to the store, making at most
// MaxRetryAttempts attempts in all (the first one included) before
// discarding the batch, matching the original's flush_batch_with_retry.
func (s *Service) flushWithRetry(ctx context.Context, buffer *[]tick.Tick) {
	if len(*buffer) == 0 {
		return
	}

	batchSize := len(*buffer)
	attempt := 0

	for {
		err := s.repo.InsertBatch(ctx, *buffer)
		if err == nil {
			log.Info().Int("count", batchSize).Msg("ingest: successfully flushed batch")
			s.stats.mu.Lock()
			s.stats.TotalBatchesFlushed++
			s.stats.LastFlushTime = time.Now()
			s.stats.mu.Unlock()
			*buffer = (*buffer)[:0]
			return
		}

		attempt++
		log.Error().Err(err).Int("attempt", attempt).Int("max_attempts", s.batchCfg.MaxRetryAttempts).Msg("ingest: batch insert failed")

		s.stats.mu.Lock()
		s.stats.TotalRetryAttempts++
		s.stats.mu.Unlock()

		if attempt >= s.batchCfg.MaxRetryAttempts {
			log.Error().Int("attempts", attempt).Int("discarded", batchSize).Msg("ingest: batch insert failed after max attempts, discarding")
			s.stats.mu.Lock()
			s.stats.TotalFailedBatches++
			s.stats.mu.Unlock()
			*buffer = (*buffer)[:0]
			return
		}

		time.Sleep(s.batchCfg.RetryDelay)
	}
}
