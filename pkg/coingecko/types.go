package coingecko

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMalformedPayload is returned when a response body does not have the expected shape.
var ErrMalformedPayload = errors.New("malformed provider payload")

// MarketsRequest holds the query of a /coins/markets call.
type MarketsRequest struct {
	VsCurrency            string
	Order                 string
	PerPage               int
	Page                  int
	PriceChangePercentage string
}

// MarketCoin is one row of the /coins/markets response. Any field may be
// missing, so every field is nullable.
type MarketCoin struct {
	ID                       *string             `json:"id"`
	Symbol                   *string             `json:"symbol"`
	Name                     *string             `json:"name"`
	CurrentPrice             decimal.NullDecimal `json:"current_price"`
	MarketCap                decimal.NullDecimal `json:"market_cap"`
	TotalVolume              decimal.NullDecimal `json:"total_volume"`
	PriceChangePercentage24h decimal.NullDecimal `json:"price_change_percentage_24h"`
	LastUpdated              *time.Time          `json:"last_updated"`
}

// OHLCPoint is one [timestamp_ms, open, high, low, close] row of the /coins/{id}/ohlc response.
type OHLCPoint struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
}

// UnmarshalJSON decodes the positional array form used by the provider.
func (p *OHLCPoint) UnmarshalJSON(data []byte) error {
	var row []decimal.Decimal
	if err := json.Unmarshal(data, &row); err != nil {
		return fmt.Errorf("%w: ohlc row: %v", ErrMalformedPayload, err)
	}
	if len(row) < 5 {
		return fmt.Errorf("%w: ohlc row has %d fields, want 5", ErrMalformedPayload, len(row))
	}

	p.Timestamp = time.UnixMilli(row[0].IntPart()).UTC()
	p.Open = row[1]
	p.High = row[2]
	p.Low = row[3]
	p.Close = row[4]
	return nil
}

// ErrorResponse covers both error envelopes the provider returns.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

// APIError is returned for any response with status >= 400.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("CoinGecko API error (%d): %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same call may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
