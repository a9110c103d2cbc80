package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/cryptopulse/internal/cache"
	"github.com/irfndi/cryptopulse/internal/config"
	"github.com/irfndi/cryptopulse/internal/database"
	"github.com/irfndi/cryptopulse/internal/models"
	"github.com/irfndi/cryptopulse/pkg/coingecko"
)

const pipelineMarkets = `[
	{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":64000.5,"market_cap":1260000000000,"price_change_percentage_24h":1.2,"last_updated":"2024-05-01T11:59:00Z"},
	{"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":3100.25,"market_cap":372000000000,"price_change_percentage_24h":-0.4,"last_updated":"2024-05-01T11:59:00Z"}
]`

const pipelineOHLC = `[[1714521600000,100,110,95,105],[1714536000000,105,112,101,108]]`

// providerStub serves the markets and OHLC endpoints and counts every request.
func providerStub(t *testing.T) (*coingecko.Client, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/coins/markets":
			_, _ = fmt.Fprint(w, pipelineMarkets)
		case strings.HasSuffix(r.URL.Path, "/ohlc"):
			_, _ = fmt.Fprint(w, pipelineOHLC)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	return coingecko.NewClient(config.ProviderConfig{BaseURL: server.URL, Timeout: "2s"}, quietLogger()), &hits
}

func pipelineService(t *testing.T, mock pgxmock.PgxPoolIface) (*IngestionService, *atomic.Int64) {
	t.Helper()
	client, hits := providerStub(t)
	repo := database.NewMarketRepository(mock, quietLogger())
	svc := NewIngestionService(client, NewReconciler(repo, repo, quietLogger()), cache.NewTTLCache[[]models.HistoricalCandle](30*time.Minute), nil, quietLogger())
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc, hits
}

// anyArgs matches n bound parameters of any value.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func pipelineParams() IngestionParams {
	return IngestionParams{
		Retries:      1,
		BaseDelay:    time.Millisecond,
		LookbackDays: 1,
		UniverseSize: 2,
		BatchSize:    2,
		VsCurrency:   "usd",
	}
}

func TestPipeline_ProviderToStorage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	// snapshot and candle writes run concurrently
	mock.MatchExpectationsInOrder(false)

	for range 2 {
		mock.ExpectExec(`INSERT INTO crypto_assets`).WithArgs(anyArgs(7)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectExec(`INSERT INTO historical_candles`).WithArgs(anyArgs(9)...).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	for range 3 {
		mock.ExpectExec(`INSERT INTO historical_candles`).WithArgs(anyArgs(9)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	svc, hits := pipelineService(t, mock)
	result := svc.RunIngestion(context.Background(), pipelineParams())

	require.True(t, result.Success, "error: %+v", result.Error)
	assert.False(t, result.UsedFallbackCache)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 3, result.APICalls)
	assert.Equal(t, 1, result.BatchesCommitted)
	assert.Equal(t, int64(3), hits.Load())
	assert.NoError(t, mock.ExpectationsWereMet())

	status := svc.Status()
	assert.Equal(t, 2, status.CachedEntries)
	assert.True(t, status.FreshCache)
}

func TestPipeline_SecondRunServesCandlesFromCache(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(false)

	for run := 0; run < 2; run++ {
		for range 2 {
			mock.ExpectExec(`INSERT INTO crypto_assets`).WithArgs(anyArgs(7)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		for range 4 {
			mock.ExpectExec(`INSERT INTO historical_candles`).WithArgs(anyArgs(9)...).WillReturnResult(pgxmock.NewResult("INSERT", int64(1-run)))
		}
	}

	svc, hits := pipelineService(t, mock)

	first := svc.RunIngestion(context.Background(), pipelineParams())
	require.True(t, first.Success)
	assert.Equal(t, 3, first.APICalls)

	second := svc.RunIngestion(context.Background(), pipelineParams())
	require.True(t, second.Success)
	assert.Equal(t, 1, second.APICalls, "only the markets page is fetched again")
	assert.Equal(t, int64(4), hits.Load())
	assert.NoError(t, mock.ExpectationsWereMet())
}
