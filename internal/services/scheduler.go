package services

import (
	"context"
	"sync"
	"time"

	"github.com/irfndi/cryptopulse/internal/models"
	"github.com/sirupsen/logrus"
)

// IngestionRunner is the entry point the scheduler triggers.
type IngestionRunner interface {
	RunIngestion(ctx context.Context, params IngestionParams) models.IngestionResult
}

// IngestionScheduler triggers ingestion on a fixed interval. Each tick starts a run
// in its own goroutine; ticks arriving while a run is in flight are rejected by the
// run lock and never queued.
type IngestionScheduler struct {
	runner     IngestionRunner
	params     IngestionParams
	interval   time.Duration
	runOnStart bool
	logger     *logrus.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewIngestionScheduler creates a new scheduler
func NewIngestionScheduler(runner IngestionRunner, params IngestionParams, interval time.Duration, runOnStart bool, logger *logrus.Logger) *IngestionScheduler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &IngestionScheduler{
		runner:     runner,
		params:     params,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     logger,
	}
}

// Start registers the recurring trigger. Calling Start twice is a no-op.
func (s *IngestionScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.WithFields(logrus.Fields{
		"interval":     s.interval.String(),
		"run_on_start": s.runOnStart,
	}).Info("Crypto ingestion job scheduled")

	if s.runOnStart {
		s.trigger(ctx)
	}

	ticker := time.NewTicker(s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.trigger(ctx)
			}
		}
	}()
}

// Stop cancels the trigger loop and any in-flight run, then waits for them to exit.
func (s *IngestionScheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("Stopping ingestion scheduler")
	cancel()
	s.wg.Wait()
}

// trigger fires one run without waiting for it.
func (s *IngestionScheduler) trigger(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("Running crypto data fetch job")
		result := s.runner.RunIngestion(ctx, s.params)

		entry := s.logger.WithFields(logrus.Fields{
			"run_id":              result.RunID,
			"success":             result.Success,
			"skipped":             result.Skipped,
			"used_fallback_cache": result.UsedFallbackCache,
			"attempts":            result.Attempts,
			"api_calls":           result.APICalls,
		})
		switch {
		case result.Skipped:
			entry.Info("Scheduled ingestion skipped")
		case result.Success:
			entry.Info("Scheduled ingestion finished")
		default:
			entry.Warn("Scheduled ingestion finished without fresh data")
		}
	}()
}
