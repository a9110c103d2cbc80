package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/irfndi/cryptopulse/internal/cache"
	"github.com/irfndi/cryptopulse/internal/config"
	"github.com/irfndi/cryptopulse/internal/logging"
	"github.com/irfndi/cryptopulse/internal/models"
	"github.com/irfndi/cryptopulse/pkg/coingecko"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const ingestionTracerName = "github.com/irfndi/cryptopulse/internal/services/ingestion"

// IngestionParams configures one ingestion run.
type IngestionParams struct {
	Retries              int
	BaseDelay            time.Duration
	LookbackDays         int
	UniverseSize         int
	BatchSize            int
	BatchDelay           time.Duration
	StaggerDelay         time.Duration
	VsCurrency           string
	RetryPermanentErrors bool
}

// DefaultIngestionParams mirrors the configuration defaults.
func DefaultIngestionParams() IngestionParams {
	return IngestionParams{
		Retries:              3,
		BaseDelay:            60 * time.Second,
		LookbackDays:         3,
		UniverseSize:         10,
		BatchSize:            5,
		BatchDelay:           5 * time.Minute,
		StaggerDelay:         2 * time.Second,
		VsCurrency:           "usd",
		RetryPermanentErrors: true,
	}
}

// ParamsFromConfig builds run parameters from the ingestion and provider settings.
func ParamsFromConfig(cfg config.IngestionConfig, provider config.ProviderConfig) IngestionParams {
	defaults := DefaultIngestionParams()
	params := IngestionParams{
		Retries:              cfg.Retries,
		BaseDelay:            config.Duration(cfg.BaseDelay, defaults.BaseDelay),
		LookbackDays:         cfg.LookbackDays,
		UniverseSize:         cfg.UniverseSize,
		BatchSize:            cfg.BatchSize,
		BatchDelay:           config.Duration(cfg.BatchDelay, defaults.BatchDelay),
		StaggerDelay:         config.Duration(cfg.StaggerDelay, defaults.StaggerDelay),
		VsCurrency:           provider.VsCurrency,
		RetryPermanentErrors: cfg.RetryPermanentErrors,
	}
	return params.normalized()
}

// BatchCount returns the number of provider pages covering the universe.
func (p IngestionParams) BatchCount() int {
	p = p.normalized()
	return (p.UniverseSize + p.BatchSize - 1) / p.BatchSize
}

func (p IngestionParams) normalized() IngestionParams {
	defaults := DefaultIngestionParams()
	if p.Retries < 1 {
		p.Retries = 1
	}
	if p.LookbackDays < 1 {
		p.LookbackDays = defaults.LookbackDays
	}
	if p.UniverseSize < 1 {
		p.UniverseSize = defaults.UniverseSize
	}
	if p.BatchSize < 1 {
		p.BatchSize = p.UniverseSize
	}
	if p.VsCurrency == "" {
		p.VsCurrency = defaults.VsCurrency
	}
	return p
}

// IngestionStatus is a point-in-time view of the pipeline.
type IngestionStatus struct {
	Running       bool                    `json:"running"`
	LastResult    *models.IngestionResult `json:"last_result,omitempty"`
	LastAttempt   *models.FetchAttempt    `json:"last_attempt,omitempty"`
	CachedEntries int                     `json:"cached_entries"`
	FreshCache    bool                    `json:"fresh_cache"`
}

// IngestionService fetches snapshots and candles from the provider and reconciles them into storage.
type IngestionService struct {
	provider   coingecko.Provider
	reconciler *Reconciler
	cache      *cache.TTLCache[[]models.HistoricalCandle]
	notifier   Notifier
	logger     *logrus.Logger
	tracer     trace.Tracer
	lock       RunLock

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu          sync.RWMutex
	lastResult  *models.IngestionResult
	lastAttempt *models.FetchAttempt
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(
	provider coingecko.Provider,
	reconciler *Reconciler,
	ohlcCache *cache.TTLCache[[]models.HistoricalCandle],
	notifier Notifier,
	logger *logrus.Logger,
) *IngestionService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &IngestionService{
		provider:   provider,
		reconciler: reconciler,
		cache:      ohlcCache,
		notifier:   notifier,
		logger:     logger,
		tracer:     otel.Tracer(ingestionTracerName),
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// RunIngestion performs one ingestion run with retries. It never returns an error:
// every outcome, including a skipped run, is described by the result.
func (s *IngestionService) RunIngestion(ctx context.Context, params IngestionParams) (result models.IngestionResult) {
	result.RunID = uuid.NewString()
	result.StartedAt = s.now()
	log := s.logger.WithField("run_id", result.RunID)

	if !s.lock.TryAcquire() {
		log.Info("Ingestion already in progress, skipping trigger")
		result.Skipped = true
		result.FinishedAt = s.now()
		return result
	}
	defer s.lock.Release()

	ctx, span := s.tracer.Start(ctx, "ingestion.run", trace.WithAttributes(attribute.String("run_id", result.RunID)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Ingestion run panicked")
			result.Success = false
			result.UsedFallbackCache = false
			result.Error = &models.IngestionError{Message: fmt.Sprintf("panic: %v", r), Kind: models.ErrorKindStorageFatal}
			result.FinishedAt = s.now()
			s.recordResult(result)
		}
	}()

	s.run(ctx, params.normalized(), &result, log)

	result.FinishedAt = s.now()
	span.SetAttributes(
		attribute.Bool("success", result.Success),
		attribute.Bool("used_fallback_cache", result.UsedFallbackCache),
		attribute.Int("attempts", result.Attempts),
		attribute.Int("api_calls", result.APICalls),
	)
	if result.Error != nil && !result.Success {
		span.SetStatus(codes.Error, result.Error.Message)
	}
	s.recordResult(result)
	return result
}

func (s *IngestionService) run(ctx context.Context, params IngestionParams, result *models.IngestionResult, log *logrus.Entry) {
	committed := make(map[int]bool)
	var lastErr error

	for attempt := 1; attempt <= params.Retries; attempt++ {
		result.Attempts = attempt
		fa := &models.FetchAttempt{Attempt: attempt}
		log.WithField("attempt", attempt).Info("Fetching market data")

		err := s.runAttempt(ctx, params, committed, fa)
		result.APICalls += fa.APICalls
		result.BatchesCommitted = len(committed)

		if err == nil {
			s.recordAttempt(*fa)
			result.Success = true
			result.Error = nil
			log.WithFields(logrus.Fields{
				"attempt":   attempt,
				"api_calls": result.APICalls,
			}).Info("Crypto data updated successfully")
			return
		}

		lastErr = err
		fa.LastError = NormalizeError(err)
		s.recordAttempt(*fa)
		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"kind":    fa.LastError.Kind,
			"status":  fa.LastError.HTTPStatus,
			"code":    fa.LastError.ProviderCode,
			"error":   fa.LastError.Message,
		}).Error("Ingestion attempt failed")

		if !ShouldRetry(fa.LastError.Kind, attempt, params.Retries, params.RetryPermanentErrors) {
			if attempt >= params.Retries {
				log.Error("Max retries reached, aborting fetch")
			}
			break
		}

		delay := BackoffDelay(params.BaseDelay, attempt)
		if requested := retryAfter(err); requested > delay {
			delay = requested
		}
		log.WithField("delay", formatDelay(delay)).Info("Waiting before retry")
		if err := s.sleep(ctx, delay); err != nil {
			lastErr = fmt.Errorf("retry aborted: %w", err)
			break
		}
	}

	result.Error = NormalizeError(lastErr)
	if ctx.Err() == nil && s.cache.HasFresh() {
		result.Success = true
		result.UsedFallbackCache = true
		log.WithField("cached_entries", s.cache.Len()).Warn("Ingestion failed, fresh cached data remains available")
		return
	}

	result.Success = false
	if err := s.notifier.NotifyIngestionFailure(ctx, *result); err != nil {
		log.WithError(err).Warn("Failed to send ingestion failure notification")
	}
}

// runAttempt processes every batch not committed earlier in this run.
func (s *IngestionService) runAttempt(ctx context.Context, params IngestionParams, committed map[int]bool, fa *models.FetchAttempt) error {
	ctx, span := s.tracer.Start(ctx, "ingestion.attempt", trace.WithAttributes(attribute.Int("attempt", fa.Attempt)))
	defer span.End()

	var calls atomic.Int64
	defer func() { fa.APICalls = int(calls.Load()) }()

	total := params.BatchCount()
	processed := 0
	for i := 0; i < total; i++ {
		if committed[i] {
			continue
		}
		if processed > 0 && params.BatchDelay > 0 {
			if err := s.sleep(ctx, params.BatchDelay); err != nil {
				return err
			}
		}
		processed++

		if err := s.processBatch(ctx, params, i, &calls); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("batch %d/%d: %w", i+1, total, err)
		}
		committed[i] = true
	}
	return nil
}

// processBatch fetches one markets page, the candles of its assets, and reconciles them.
// Markets failures skip the candle calls; a candle failure fails the batch once all
// sibling fetches have settled.
func (s *IngestionService) processBatch(ctx context.Context, params IngestionParams, index int, calls *atomic.Int64) error {
	ctx, span := s.tracer.Start(ctx, "ingestion.batch", trace.WithAttributes(attribute.Int("page", index+1)))
	defer span.End()
	log := s.logger.WithFields(logrus.Fields{"batch": index + 1, "page": index + 1})

	calls.Add(1)
	coins, err := s.provider.GetMarkets(ctx, coingecko.MarketsRequest{
		VsCurrency:            params.VsCurrency,
		Order:                 "market_cap_desc",
		PerPage:               params.BatchSize,
		Page:                  index + 1,
		PriceChangePercentage: "24h",
	})
	if err != nil {
		return fmt.Errorf("fetch markets page %d: %w", index+1, err)
	}
	if remaining := params.UniverseSize - index*params.BatchSize; len(coins) > remaining {
		coins = coins[:remaining]
	}

	now := s.now()
	snapshots := make([]models.AssetSnapshot, len(coins))
	for i, coin := range coins {
		snapshots[i] = snapshotFromMarket(coin, now)
	}

	history := make([][]models.HistoricalCandle, len(snapshots))
	var g errgroup.Group
	for i, asset := range snapshots {
		key := cache.OHLCKey(asset.CoinID, params.LookbackDays)
		if cached, ok := s.cache.Get(key); ok {
			logging.LogCacheOperation(log, "get", key, true)
			history[i] = cached
			continue
		}
		logging.LogCacheOperation(log, "get", key, false)

		g.Go(recoverTask(func() error {
			if stagger := time.Duration(i) * params.StaggerDelay; stagger > 0 {
				if err := s.sleep(ctx, stagger); err != nil {
					return err
				}
			}
			calls.Add(1)
			points, err := s.provider.GetOHLC(ctx, asset.CoinID, params.VsCurrency, params.LookbackDays)
			if err != nil {
				return fmt.Errorf("fetch ohlc for %s: %w", asset.CoinID, err)
			}
			candles := candlesFromOHLC(asset, points)
			s.cache.Put(key, candles)
			history[i] = candles
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var candles []models.HistoricalCandle
	for _, h := range history {
		candles = append(candles, h...)
	}

	report, err := s.reconciler.Reconcile(ctx, snapshots, candles)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	log.WithFields(logrus.Fields{
		"assets":     len(snapshots),
		"inserted":   report.Candles.Inserted,
		"duplicates": report.Candles.Duplicates,
		"api_calls":  calls.Load(),
	}).Info("Batch committed")
	return nil
}

// Status returns the running flag, the last run and attempt, and cache occupancy.
func (s *IngestionService) Status() IngestionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := IngestionStatus{
		Running:       s.lock.Held(),
		CachedEntries: s.cache.Len(),
		FreshCache:    s.cache.HasFresh(),
	}
	if s.lastResult != nil {
		r := *s.lastResult
		status.LastResult = &r
	}
	if s.lastAttempt != nil {
		a := *s.lastAttempt
		status.LastAttempt = &a
	}
	return status
}

// LastResult returns the most recent non-skipped run result.
func (s *IngestionService) LastResult() *models.IngestionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastResult == nil {
		return nil
	}
	r := *s.lastResult
	return &r
}

func (s *IngestionService) recordResult(result models.IngestionResult) {
	s.mu.Lock()
	s.lastResult = &result
	s.mu.Unlock()
}

func (s *IngestionService) recordAttempt(attempt models.FetchAttempt) {
	s.mu.Lock()
	s.lastAttempt = &attempt
	s.mu.Unlock()
}
