package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"deriv-connect/internal/model"
)

// CandleStore writes fetched series and ticks to Postgres.
type CandleStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewCandleStore creates a store over an existing pool.
func NewCandleStore(db *pgxpool.Pool, logger *slog.Logger) *CandleStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CandleStore{db: db, logger: logger}
}

const upsertCandleSQL = `
INSERT INTO candles (symbol, interval_s, epoch, open, high, low, close)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (symbol, interval_s, epoch)
DO UPDATE SET open = EXCLUDED.open, high = EXCLUDED.high,
              low = EXCLUDED.low, close = EXCLUDED.close`

// SaveSeries upserts every candle of a series in one batch. Stale series are
// skipped; they were written when they were fresh.
func (s *CandleStore) SaveSeries(ctx context.Context, series *model.Series) error {
	if series == nil || series.Len() == 0 || series.Stale {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range series.Candles {
		batch.Queue(upsertCandleSQL,
			series.Symbol, series.Interval, c.Epoch, c.Open, c.High, c.Low, c.Close)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	for range series.Candles {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert candles for %s: %w", series.Symbol, err)
		}
	}

	s.logger.Debug("series persisted",
		"symbol", series.Symbol,
		"interval", series.Interval,
		"candles", series.Len(),
	)
	return nil
}

const insertTickSQL = `
INSERT INTO ticks (symbol, epoch, quote, received_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (symbol, epoch) DO NOTHING`

// SaveTick inserts one tick, ignoring duplicates.
func (s *CandleStore) SaveTick(ctx context.Context, tick model.Tick) error {
	if _, err := s.db.Exec(ctx, insertTickSQL,
		tick.Symbol, tick.Epoch, tick.Quote, tick.ReceivedAt); err != nil {
		return fmt.Errorf("insert tick for %s: %w", tick.Symbol, err)
	}
	return nil
}

// LatestEpoch returns the newest stored candle epoch for a key, or 0.
func (s *CandleStore) LatestEpoch(ctx context.Context, symbol string, interval int) (int64, error) {
	var epoch int64
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(epoch), 0) FROM candles WHERE symbol = $1 AND interval_s = $2`,
		symbol, interval).Scan(&epoch)
	if err != nil {
		return 0, fmt.Errorf("query latest epoch: %w", err)
	}
	return epoch, nil
}
