package services

import (
	"strings"
	"time"

	"github.com/irfndi/cryptopulse/internal/models"
	"github.com/irfndi/cryptopulse/pkg/coingecko"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	unknownCoinID = "unknown"
	unknownName   = "Unknown"
	unknownSymbol = "UNK"
)

var titleCaser = cases.Title(language.English)

// snapshotFromMarket maps a provider row, substituting defaults for missing fields.
func snapshotFromMarket(coin coingecko.MarketCoin, now time.Time) models.AssetSnapshot {
	snapshot := models.AssetSnapshot{
		CoinID:         stringOr(coin.ID, unknownCoinID),
		Symbol:         stringOr(coin.Symbol, unknownSymbol),
		CurrentPrice:   decimalOrZero(coin.CurrentPrice),
		MarketCap:      decimalOrZero(coin.MarketCap),
		PriceChange24h: decimalOrZero(coin.PriceChangePercentage24h),
		LastUpdated:    now,
	}

	switch {
	case coin.Name != nil && *coin.Name != "":
		snapshot.Name = *coin.Name
	case coin.ID != nil && *coin.ID != "":
		snapshot.Name = displayName(*coin.ID)
	default:
		snapshot.Name = unknownName
	}

	if coin.LastUpdated != nil && !coin.LastUpdated.IsZero() {
		snapshot.LastUpdated = coin.LastUpdated.UTC()
	}

	return snapshot
}

// candlesFromOHLC attaches asset identity to provider candles.
func candlesFromOHLC(asset models.AssetSnapshot, points []coingecko.OHLCPoint) []models.HistoricalCandle {
	candles := make([]models.HistoricalCandle, 0, len(points))
	for _, p := range points {
		candles = append(candles, models.HistoricalCandle{
			CoinID:    asset.CoinID,
			Name:      asset.Name,
			Symbol:    asset.Symbol,
			Open:      p.Open,
			High:      p.High,
			Low:       p.Low,
			Close:     p.Close,
			Timestamp: p.Timestamp,
		})
	}
	return candles
}

// displayName turns "wrapped-bitcoin" into "Wrapped Bitcoin".
func displayName(coinID string) string {
	return titleCaser.String(strings.ReplaceAll(coinID, "-", " "))
}

func stringOr(value *string, fallback string) string {
	if value == nil || *value == "" {
		return fallback
	}
	return *value
}

func decimalOrZero(value decimal.NullDecimal) decimal.Decimal {
	if !value.Valid {
		return decimal.Zero
	}
	return value.Decimal
}
