package cache

import "fmt"

// OHLCKey names the ingestion cache entry for an asset's candles, e.g. "bitcoin_ohlc_3d".
func OHLCKey(coinID string, days int) string {
	return fmt.Sprintf("%s_ohlc_%dd", coinID, days)
}

// ChartKey names the read-path chart cache entry, e.g. "bitcoin_chart_3d".
func ChartKey(coinID string, days int) string {
	return fmt.Sprintf("%s_chart_%dd", coinID, days)
}

// ListKey names the read-path asset list cache entry.
func ListKey(search string) string {
	return "crypto_list_" + search
}
