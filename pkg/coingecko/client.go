package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/irfndi/cryptopulse/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"
	defaultTimeout = 10 * time.Second
	apiKeyHeader   = "x-cg-demo-api-key"
)

// Client is an HTTP client for the CoinGecko v3 API
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	apiKey     string
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     logrus.FieldLogger
}

// NewClient creates a new CoinGecko client
func NewClient(cfg config.ProviderConfig, logger logrus.FieldLogger) *Client {
	timeout := config.Duration(cfg.Timeout, defaultTimeout)
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		limiter: limiter,
		logger:  logger,
	}
}

// GetMarkets retrieves one page of coins ordered as requested
func (c *Client) GetMarkets(ctx context.Context, req MarketsRequest) ([]MarketCoin, error) {
	query := url.Values{}
	query.Set("vs_currency", orDefault(req.VsCurrency, "usd"))
	query.Set("order", orDefault(req.Order, "market_cap_desc"))
	if req.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(req.PerPage))
	}
	if req.Page > 0 {
		query.Set("page", strconv.Itoa(req.Page))
	}
	query.Set("sparkline", "false")
	query.Set("price_change_percentage", orDefault(req.PriceChangePercentage, "24h"))

	var coins []MarketCoin
	if err := c.makeRequest(ctx, "/coins/markets", query, &coins); err != nil {
		return nil, err
	}
	return coins, nil
}

// GetOHLC retrieves candles for a coin over the last days
func (c *Client) GetOHLC(ctx context.Context, coinID, vsCurrency string, days int) ([]OHLCPoint, error) {
	if coinID == "" {
		return nil, fmt.Errorf("coin id is required")
	}
	query := url.Values{}
	query.Set("vs_currency", orDefault(vsCurrency, "usd"))
	query.Set("days", strconv.Itoa(days))

	var points []OHLCPoint
	if err := c.makeRequest(ctx, "/coins/"+url.PathEscape(coinID)+"/ohlc", query, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// Ping checks that the API is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.makeRequest(ctx, "/ping", nil, nil)
}

// makeRequest performs a GET request and decodes the JSON body into result
func (c *Client) makeRequest(ctx context.Context, path string, query url.Values, result interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "CryptoPulse/1.0")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Warn("Error closing response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return newAPIError(resp, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			if errors.Is(err, ErrMalformedPayload) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}

	return nil
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Code:       strconv.Itoa(resp.StatusCode),
		Message:    strings.TrimSpace(string(body)),
	}

	var errorResp ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err == nil {
		switch {
		case errorResp.Status.ErrorMessage != "":
			apiErr.Message = errorResp.Status.ErrorMessage
			if errorResp.Status.ErrorCode != 0 {
				apiErr.Code = strconv.Itoa(errorResp.Status.ErrorCode)
			}
		case errorResp.Error != "":
			apiErr.Message = errorResp.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			apiErr.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	return apiErr
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
