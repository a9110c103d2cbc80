package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irfndi/cryptopulse/internal/logging"
	"github.com/irfndi/cryptopulse/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

const (
	upsertSnapshotQuery = `
		INSERT INTO crypto_assets (coin_id, name, symbol, current_price, market_cap, price_change_24h, last_updated, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (coin_id) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			current_price = EXCLUDED.current_price,
			market_cap = EXCLUDED.market_cap,
			price_change_24h = EXCLUDED.price_change_24h,
			last_updated = EXCLUDED.last_updated,
			updated_at = NOW()`

	insertCandleQuery = `
		INSERT INTO historical_candles (coin_id, name, symbol, open, high, low, close, volume, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (coin_id, ts) DO NOTHING`

	listSnapshotsQuery = `
		SELECT coin_id, name, symbol, current_price, market_cap, price_change_24h, last_updated
		FROM crypto_assets
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR symbol ILIKE '%' || $1 || '%')
		ORDER BY market_cap DESC
		LIMIT $2 OFFSET $3`

	countSnapshotsQuery = `SELECT COUNT(*) FROM crypto_assets`

	listCandlesDescQuery = `
		SELECT coin_id, name, symbol, open, high, low, close, volume, ts
		FROM historical_candles
		WHERE coin_id = $1 AND ts >= $2
		ORDER BY ts DESC
		LIMIT $3`

	listCandlesAscQuery = `
		SELECT coin_id, name, symbol, open, high, low, close, volume, ts
		FROM historical_candles
		WHERE coin_id = $1 AND ts >= $2
		ORDER BY ts ASC
		LIMIT $3`
)

// maxCandleRows caps unbounded candle reads.
const maxCandleRows = 10000

// InsertReport summarises an unordered candle insert.
type InsertReport struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// MarketRepository persists asset snapshots and historical candles.
type MarketRepository struct {
	pool   DatabasePool
	logger logrus.FieldLogger
}

// NewMarketRepository creates a new market repository.
func NewMarketRepository(pool DatabasePool, logger logrus.FieldLogger) *MarketRepository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MarketRepository{
		pool:   pool,
		logger: logger,
	}
}

// UpsertSnapshots writes each snapshot keyed by coin id, replacing prior values.
// It stops at the first failure and returns it as a *StorageError.
func (r *MarketRepository) UpsertSnapshots(ctx context.Context, snapshots []models.AssetSnapshot) error {
	start := time.Now()
	for _, s := range snapshots {
		_, err := r.pool.Exec(ctx, upsertSnapshotQuery,
			s.CoinID, s.Name, s.Symbol, s.CurrentPrice, s.MarketCap, s.PriceChange24h, s.LastUpdated)
		if err != nil {
			return &StorageError{Op: "upsert_snapshot", Key: s.CoinID, Err: err}
		}
	}
	logging.LogDatabaseOperation(r.logger, "upsert", models.AssetSnapshot{}.TableName(), time.Since(start).Milliseconds(), int64(len(snapshots)))
	return nil
}

// InsertCandles attempts every candle regardless of earlier failures.
// Rows that already exist are counted as duplicates and never fail the call;
// any other failure is collected and returned as one *StorageError once all rows were tried.
func (r *MarketRepository) InsertCandles(ctx context.Context, candles []models.HistoricalCandle) (InsertReport, error) {
	var (
		report InsertReport
		errs   []error
	)
	start := time.Now()

	for _, c := range candles {
		var volume interface{}
		if c.Volume != nil {
			volume = *c.Volume
		}

		tag, err := r.pool.Exec(ctx, insertCandleQuery,
			c.CoinID, c.Name, c.Symbol, c.Open, c.High, c.Low, c.Close, volume, c.Timestamp)
		switch {
		case err == nil && tag.RowsAffected() == 0:
			report.Duplicates++
		case err == nil:
			report.Inserted++
		case IsUniqueViolation(err):
			report.Duplicates++
		default:
			report.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", c.Key(), err))
		}
	}

	logging.LogDatabaseOperation(r.logger, "insert", models.HistoricalCandle{}.TableName(), time.Since(start).Milliseconds(), int64(report.Inserted))
	if report.Duplicates > 0 {
		r.logger.WithFields(logrus.Fields{
			"duplicates": report.Duplicates,
			"inserted":   report.Inserted,
		}).Warn("Some historical records already exist (skipped)")
	}

	if len(errs) > 0 {
		return report, &StorageError{Op: "insert_candles", Err: errors.Join(errs...)}
	}
	return report, nil
}

// ListSnapshots returns snapshots ordered by market cap, optionally filtered by name or symbol.
func (r *MarketRepository) ListSnapshots(ctx context.Context, filter models.AssetFilter) ([]models.AssetSnapshot, error) {
	rows, err := r.pool.Query(ctx, listSnapshotsQuery, filter.Search, filter.Limit, filter.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]models.AssetSnapshot, 0)
	for rows.Next() {
		var s models.AssetSnapshot
		if err := rows.Scan(&s.CoinID, &s.Name, &s.Symbol, &s.CurrentPrice, &s.MarketCap, &s.PriceChange24h, &s.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// CountSnapshots returns the number of tracked assets.
func (r *MarketRepository) CountSnapshots(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, countSnapshotsQuery).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

// ListCandles returns candles of one asset newer than q.Since.
func (r *MarketRepository) ListCandles(ctx context.Context, q models.CandleQuery) ([]models.HistoricalCandle, error) {
	query := listCandlesDescQuery
	if q.Ascending {
		query = listCandlesAscQuery
	}
	limit := q.Limit
	if limit <= 0 {
		limit = maxCandleRows
	}
	since := q.Since
	if since.IsZero() {
		since = time.Unix(0, 0).UTC()
	}

	rows, err := r.pool.Query(ctx, query, q.CoinID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for %s: %w", q.CoinID, err)
	}
	defer rows.Close()

	candles := make([]models.HistoricalCandle, 0)
	for rows.Next() {
		var (
			c      models.HistoricalCandle
			volume decimal.NullDecimal
		)
		if err := rows.Scan(&c.CoinID, &c.Name, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &volume, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		if volume.Valid {
			v := volume.Decimal
			c.Volume = &v
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	return candles, nil
}
