package services

import (
	"testing"
	"time"

	"github.com/irfndi/cryptopulse/pkg/coingecko"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSnapshotFromMarket_Defaults(t *testing.T) {
	s := snapshotFromMarket(coingecko.MarketCoin{}, testNow)

	assert.Equal(t, "unknown", s.CoinID)
	assert.Equal(t, "Unknown", s.Name)
	assert.Equal(t, "UNK", s.Symbol)
	assert.True(t, s.CurrentPrice.IsZero())
	assert.True(t, s.MarketCap.IsZero())
	assert.True(t, s.PriceChange24h.IsZero())
	assert.Equal(t, testNow, s.LastUpdated)
}

func TestSnapshotFromMarket_NameFromID(t *testing.T) {
	s := snapshotFromMarket(coingecko.MarketCoin{ID: strPtr("wrapped-bitcoin")}, testNow)
	assert.Equal(t, "Wrapped Bitcoin", s.Name)
}

func TestSnapshotFromMarket_Full(t *testing.T) {
	updated := time.Date(2024, 4, 30, 23, 59, 0, 0, time.UTC)
	s := snapshotFromMarket(coingecko.MarketCoin{
		ID:                       strPtr("bitcoin"),
		Symbol:                   strPtr("btc"),
		Name:                     strPtr("Bitcoin"),
		CurrentPrice:             decimal.NewNullDecimal(decimal.RequireFromString("64000.5")),
		MarketCap:                decimal.NewNullDecimal(decimal.NewFromInt(1260000000000)),
		PriceChangePercentage24h: decimal.NewNullDecimal(decimal.RequireFromString("-1.25")),
		LastUpdated:              &updated,
	}, testNow)

	assert.Equal(t, "bitcoin", s.CoinID)
	assert.Equal(t, "Bitcoin", s.Name)
	assert.Equal(t, "btc", s.Symbol)
	assert.Equal(t, "64000.5", s.CurrentPrice.String())
	assert.Equal(t, "-1.25", s.PriceChange24h.String())
	assert.Equal(t, updated, s.LastUpdated)
}

func TestCandlesFromOHLC(t *testing.T) {
	asset := snapshotFromMarket(marketCoin("bitcoin"), testNow)
	candles := candlesFromOHLC(asset, ohlcPoints(3))

	assert.Len(t, candles, 3)
	for _, c := range candles {
		assert.Equal(t, "bitcoin", c.CoinID)
		assert.Equal(t, "Bitcoin", c.Name)
		assert.Equal(t, "bit", c.Symbol)
		assert.Nil(t, c.Volume)
	}
	assert.True(t, candles[0].Timestamp.Before(candles[2].Timestamp))
}
