package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/tickstore/internal/tick"
)

// PostgresStore implements TickStore over sqlx + lib/pq, adapted from the
// teacher's trades_repo.go: context-scoped query timeouts, prepared-
// statement batch inserts inside one transaction, and pq.Error code 23505
// used to turn a duplicate (symbol, trade_id, timestamp) into a silent
// no-op rather than an error, per the insert contract.
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresStore wraps an already-opened *sqlx.DB. timeout bounds every
// individual query; InsertBatch scales it by batch size.
func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, timeout: timeout}
}

const duplicateKeyCode = "23505"

func isDuplicateKey(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == duplicateKeyCode
	}
	return false
}

// Insert adds one tick. A duplicate (symbol, trade_id, timestamp) is
// treated as already-persisted and returns nil, matching the store's
// conflict-ignore contract.
func (s *PostgresStore) Insert(ctx context.Context, t tick.Tick) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO ticks (ts, symbol, price, quantity, side, trade_id, is_buyer_maker)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, trade_id, ts) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		t.Timestamp, t.Symbol, t.Price, t.Quantity, t.Side, t.TradeID, t.IsBuyerMaker)
	if err != nil {
		if isDuplicateKey(err) {
			return nil
		}
		return fmt.Errorf("store: insert tick: %w", err)
	}
	return nil
}

// InsertBatch inserts every tick inside one transaction using a prepared
// statement, matching the teacher's InsertBatch. Invalid ticks abort the
// whole batch so a partial, silently-corrupt batch never lands.
func (s *PostgresStore) InsertBatch(ctx context.Context, ticks []tick.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout*time.Duration(len(ticks)/100+1))
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin batch tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ticks (ts, symbol, price, quantity, side, trade_id, is_buyer_maker)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, trade_id, ts) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("store: prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range ticks {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("store: batch contains invalid tick: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			t.Timestamp, t.Symbol, t.Price, t.Quantity, t.Side, t.TradeID, t.IsBuyerMaker); err != nil {
			if isDuplicateKey(err) {
				continue
			}
			return fmt.Errorf("store: batch insert: %w", err)
		}
	}

	return tx.Commit()
}

type tickRow struct {
	Timestamp    time.Time       `db:"ts"`
	Symbol       string          `db:"symbol"`
	Price        decimal.Decimal `db:"price"`
	Quantity     decimal.Decimal `db:"quantity"`
	Side         string          `db:"side"`
	TradeID      string          `db:"trade_id"`
	IsBuyerMaker bool            `db:"is_buyer_maker"`
}

func (r tickRow) toTick() tick.Tick {
	return tick.Tick{
		Timestamp:    r.Timestamp,
		Symbol:       r.Symbol,
		Price:        r.Price,
		Quantity:     r.Quantity,
		Side:         tick.Side(r.Side),
		TradeID:      r.TradeID,
		IsBuyerMaker: r.IsBuyerMaker,
	}
}

// ListBySymbol returns ticks for symbol within tr, newest first, PIT-ordered
// by timestamp the way the teacher's ListBySymbol does for trades.
func (s *PostgresStore) ListBySymbol(ctx context.Context, symbol string, tr TimeRange, limit int) ([]tick.Tick, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT ts, symbol, price, quantity, side, trade_id, is_buyer_maker
		FROM ticks
		WHERE symbol = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts DESC
		LIMIT $4`

	var rows []tickRow
	if err := s.db.SelectContext(ctx, &rows, query, symbol, tr.From, tr.To, limit); err != nil {
		return nil, fmt.Errorf("store: list by symbol: %w", err)
	}

	ticks := make([]tick.Tick, 0, len(rows))
	for _, r := range rows {
		ticks = append(ticks, r.toTick())
	}
	return ticks, nil
}

// GetLatest returns the most recent ticks for symbol.
func (s *PostgresStore) GetLatest(ctx context.Context, symbol string, limit int) ([]tick.Tick, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT ts, symbol, price, quantity, side, trade_id, is_buyer_maker
		FROM ticks
		WHERE symbol = $1
		ORDER BY ts DESC
		LIMIT $2`

	var rows []tickRow
	if err := s.db.SelectContext(ctx, &rows, query, symbol, limit); err != nil {
		return nil, fmt.Errorf("store: get latest: %w", err)
	}

	ticks := make([]tick.Tick, 0, len(rows))
	for _, r := range rows {
		ticks = append(ticks, r.toTick())
	}
	return ticks, nil
}

// Count returns the number of ticks for symbol within tr.
func (s *PostgresStore) Count(ctx context.Context, symbol string, tr TimeRange) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT COUNT(*) FROM ticks WHERE symbol = $1 AND ts >= $2 AND ts < $3`

	var count int64
	if err := s.db.QueryRowxContext(ctx, query, symbol, tr.From, tr.To).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return count, nil
}

// SymbolInfo reports data availability for symbol, used by
// Repository.BacktestTicks to reject a symbol with no stored ticks before
// paging through its window.
func (s *PostgresStore) SymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT MIN(ts), MAX(ts), COUNT(*)
		FROM ticks
		WHERE symbol = $1`

	var info SymbolInfo
	info.Symbol = symbol
	var first, last sql.NullTime
	if err := s.db.QueryRowxContext(ctx, query, symbol).Scan(&first, &last, &info.Count); err != nil {
		return nil, fmt.Errorf("store: symbol info: %w", err)
	}
	if info.Count == 0 {
		return &info, nil
	}
	info.FirstTick = first.Time
	info.LastTick = last.Time
	return &info, nil
}

// CleanupOlderThan deletes ticks with ts < cutoff, mirroring the retention
// sweep pattern of the feed simulator's RunRetention.
func (s *PostgresStore) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `DELETE FROM ticks WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: cleanup: %w", err)
	}
	return result.RowsAffected()
}

var _ TickStore = (*PostgresStore)(nil)
