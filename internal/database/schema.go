package database

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS crypto_assets (
		coin_id          TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		symbol           TEXT NOT NULL,
		current_price    NUMERIC NOT NULL DEFAULT 0,
		market_cap       NUMERIC NOT NULL DEFAULT 0,
		price_change_24h NUMERIC NOT NULL DEFAULT 0,
		last_updated     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_crypto_assets_market_cap ON crypto_assets (market_cap DESC)`,
	`CREATE TABLE IF NOT EXISTS historical_candles (
		id         BIGSERIAL PRIMARY KEY,
		coin_id    TEXT NOT NULL,
		name       TEXT NOT NULL,
		symbol     TEXT NOT NULL,
		open       NUMERIC NOT NULL,
		high       NUMERIC NOT NULL,
		low        NUMERIC NOT NULL,
		close      NUMERIC NOT NULL,
		volume     NUMERIC,
		ts         TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_historical_candles_coin_ts UNIQUE (coin_id, ts)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_historical_candles_ts ON historical_candles (coin_id, ts DESC)`,
}

// EnsureSchema creates the tables and indexes the service needs. It is safe to run on every start.
func EnsureSchema(ctx context.Context, pool DatabasePool) error {
	for i, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
