package handlers

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/cryptopulse/internal/cache"
	"github.com/irfndi/cryptopulse/internal/logging"
	"github.com/irfndi/cryptopulse/internal/models"
	"github.com/irfndi/cryptopulse/internal/services"
)

// coinIDPattern admits CoinGecko ids such as "bitcoin" or "usd-coin".
var coinIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]{1,100}$`)

// MarketReader is the read side of the market repository.
type MarketReader interface {
	ListSnapshots(ctx context.Context, filter models.AssetFilter) ([]models.AssetSnapshot, error)
	CountSnapshots(ctx context.Context) (int64, error)
	ListCandles(ctx context.Context, q models.CandleQuery) ([]models.HistoricalCandle, error)
}

// ResponseCache stores rendered responses; cache.RedisJSONCache satisfies it.
type ResponseCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// IngestionRunner runs one ingestion pass.
type IngestionRunner interface {
	RunIngestion(ctx context.Context, params services.IngestionParams) models.IngestionResult
}

// MarketOptions carries the read-side tunables.
type MarketOptions struct {
	ListCacheTTL  time.Duration
	ChartCacheTTL time.Duration
	DefaultLimit  int
	MaxLimit      int
	HistoryLimit  int
}

type MarketHandler struct {
	store     MarketReader
	cache     ResponseCache
	ingestion IngestionRunner
	params    services.IngestionParams
	opts      MarketOptions
	logger    logrus.FieldLogger
	now       func() time.Time
}

// MarketListResponse is the body of GET /api/crypto.
type MarketListResponse struct {
	Data  []models.AssetSnapshot `json:"data"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
}

func NewMarketHandler(store MarketReader, responseCache ResponseCache, ingestion IngestionRunner, params services.IngestionParams, opts MarketOptions, logger logrus.FieldLogger) *MarketHandler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 60
	}
	if opts.ListCacheTTL <= 0 {
		opts.ListCacheTTL = 30 * time.Minute
	}
	if opts.ChartCacheTTL <= 0 {
		opts.ChartCacheTTL = 30 * time.Minute
	}
	return &MarketHandler{
		store:     store,
		cache:     responseCache,
		ingestion: ingestion,
		params:    params,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// ListAssets handles GET /api/crypto.
func (h *MarketHandler) ListAssets(c *gin.Context) {
	ctx := c.Request.Context()
	search := strings.TrimSpace(c.Query("search"))
	if len(search) > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid parameters"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.opts.DefaultLimit)))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > h.opts.MaxLimit {
		limit = h.opts.DefaultLimit
	}

	cacheKey := fmt.Sprintf("%s:%d:%d", cache.ListKey(search), page, limit)
	var cached MarketListResponse
	if h.cacheGet(ctx, cacheKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	filter := models.AssetFilter{Search: search, Page: page, Limit: limit}
	assets, err := h.store.ListSnapshots(ctx, filter)
	if err != nil {
		h.logger.WithError(err).Error("Error fetching cryptos")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch crypto data"})
		return
	}

	if len(assets) == 0 && search == "" && h.ingestion != nil {
		assets, err = h.bootstrap(ctx, filter)
		if err != nil {
			h.logger.WithError(err).Error("Error fetching cryptos")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch crypto data"})
			return
		}
	}

	if assets == nil {
		assets = []models.AssetSnapshot{}
	}
	response := MarketListResponse{Data: assets, Page: page, Limit: limit}
	h.cacheSet(ctx, cacheKey, response, h.opts.ListCacheTTL)
	c.JSON(http.StatusOK, response)
}

// bootstrap runs one ingestion when the snapshot table is empty and re-reads.
// A failed run still yields whatever the table holds.
func (h *MarketHandler) bootstrap(ctx context.Context, filter models.AssetFilter) ([]models.AssetSnapshot, error) {
	total, err := h.store.CountSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	if total > 0 {
		return nil, nil
	}

	result := h.ingestion.RunIngestion(ctx, h.params)
	h.logger.WithFields(logrus.Fields{
		"run_id":  result.RunID,
		"success": result.Success,
		"skipped": result.Skipped,
	}).Info("Snapshot table empty, ran ingestion before listing")

	return h.store.ListSnapshots(ctx, filter)
}

// GetHistory handles GET /api/crypto/historical/:coinId.
func (h *MarketHandler) GetHistory(c *gin.Context) {
	coinID, ok := validCoinID(c)
	if !ok {
		return
	}

	candles, err := h.store.ListCandles(c.Request.Context(), models.CandleQuery{
		CoinID: coinID,
		Limit:  h.opts.HistoryLimit,
	})
	if err != nil {
		h.logger.WithError(err).WithField("coin_id", coinID).Error("Error fetching historical data")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch historical data"})
		return
	}
	if len(candles) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No historical data found for this coin"})
		return
	}

	c.JSON(http.StatusOK, candles)
}

// GetChart handles GET /api/crypto/chart/:coinId?range=1d|3d.
func (h *MarketHandler) GetChart(c *gin.Context) {
	coinID, ok := validCoinID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	days := 1
	if c.Query("range") == "3d" {
		days = 3
	}

	cacheKey := cache.ChartKey(coinID, days)
	var cached models.ChartData
	if h.cacheGet(ctx, cacheKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	candles, err := h.store.ListCandles(ctx, models.CandleQuery{
		CoinID:    coinID,
		Since:     h.now().Add(-time.Duration(days) * 24 * time.Hour),
		Ascending: true,
	})
	if err != nil {
		h.logger.WithError(err).WithField("coin_id", coinID).Error("Error fetching chart data")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch chart data"})
		return
	}
	if len(candles) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No historical data found for this coin"})
		return
	}

	chart := models.NewChartData(coinID, candles)
	h.cacheSet(ctx, cacheKey, chart, h.opts.ChartCacheTTL)
	c.JSON(http.StatusOK, chart)
}

func validCoinID(c *gin.Context) (string, bool) {
	coinID := strings.TrimSpace(c.Param("coinId"))
	if !coinIDPattern.MatchString(coinID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coin ID"})
		return "", false
	}
	return coinID, true
}

func (h *MarketHandler) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if h.cache == nil {
		return false
	}
	hit := h.cache.Get(ctx, key, dest)
	logging.LogCacheOperation(h.logger, "get", key, hit)
	return hit
}

func (h *MarketHandler) cacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if h.cache == nil {
		return
	}
	if err := h.cache.SetWithTTL(ctx, key, value, ttl); err != nil {
		h.logger.WithError(err).WithField("key", key).Warn("Failed to cache response")
	}
}
