package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AssetSnapshot is the latest known market state of one tracked asset.
// CoinID is the stable key; at most one row exists per CoinID.
type AssetSnapshot struct {
	CoinID         string          `json:"coinId" db:"coin_id"`
	Name           string          `json:"name" db:"name"`
	Symbol         string          `json:"symbol" db:"symbol"`
	CurrentPrice   decimal.Decimal `json:"currentPrice" db:"current_price"`
	MarketCap      decimal.Decimal `json:"marketCap" db:"market_cap"`
	PriceChange24h decimal.Decimal `json:"priceChange24h" db:"price_change_24h"`
	LastUpdated    time.Time       `json:"lastUpdated" db:"last_updated"`
}

// TableName returns the table name for AssetSnapshot
func (AssetSnapshot) TableName() string {
	return "crypto_assets"
}

// HistoricalCandle is one OHLC bar. Rows are append-only and unique per (CoinID, Timestamp).
type HistoricalCandle struct {
	CoinID    string           `json:"coinId" db:"coin_id"`
	Name      string           `json:"name" db:"name"`
	Symbol    string           `json:"symbol" db:"symbol"`
	Open      decimal.Decimal  `json:"open" db:"open"`
	High      decimal.Decimal  `json:"high" db:"high"`
	Low       decimal.Decimal  `json:"low" db:"low"`
	Close     decimal.Decimal  `json:"close" db:"close"`
	Volume    *decimal.Decimal `json:"volume,omitempty" db:"volume"`
	Timestamp time.Time        `json:"timestamp" db:"ts"`
}

// TableName returns the table name for HistoricalCandle
func (HistoricalCandle) TableName() string {
	return "historical_candles"
}

// Key identifies the candle for duplicate detection.
func (c HistoricalCandle) Key() string {
	return c.CoinID + "@" + c.Timestamp.UTC().Format(time.RFC3339Nano)
}

// AssetFilter narrows snapshot listings on the read side.
type AssetFilter struct {
	Search string `json:"search" form:"search"`
	Page   int    `json:"page" form:"page"`
	Limit  int    `json:"limit" form:"limit"`
}

// Offset returns the row offset for 1-indexed pages.
func (f AssetFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// CandleQuery selects candles for one asset.
type CandleQuery struct {
	CoinID    string
	Since     time.Time
	Limit     int
	Ascending bool
}

// ChartPoint is one candlestick point in the chart payload.
type ChartPoint struct {
	T time.Time       `json:"t"`
	O decimal.Decimal `json:"o"`
	H decimal.Decimal `json:"h"`
	L decimal.Decimal `json:"l"`
	C decimal.Decimal `json:"c"`
}

// ChartDataset groups chart points under a label.
type ChartDataset struct {
	Label string       `json:"label"`
	Data  []ChartPoint `json:"data"`
}

// ChartData is the candlestick chart payload served to the front end.
type ChartData struct {
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}

// NewChartData builds a single-dataset chart from candles sorted ascending.
func NewChartData(coinID string, candles []HistoricalCandle) ChartData {
	labels := make([]string, 0, len(candles))
	points := make([]ChartPoint, 0, len(candles))
	for _, c := range candles {
		labels = append(labels, c.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"))
		points = append(points, ChartPoint{T: c.Timestamp, O: c.Open, H: c.High, L: c.Low, C: c.Close})
	}
	return ChartData{
		Labels: labels,
		Datasets: []ChartDataset{{
			Label: strings.ToUpper(coinID) + " Candlestick",
			Data:  points,
		}},
	}
}
