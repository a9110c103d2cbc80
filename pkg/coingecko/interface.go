package coingecko

import "context"

// Provider is the upstream market data surface used by the ingestion pipeline.
type Provider interface {
	GetMarkets(ctx context.Context, req MarketsRequest) ([]MarketCoin, error)
	GetOHLC(ctx context.Context, coinID, vsCurrency string, days int) ([]OHLCPoint, error)
}

var _ Provider = (*Client)(nil)
