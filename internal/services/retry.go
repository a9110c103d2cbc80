package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/irfndi/cryptopulse/internal/database"
	"github.com/irfndi/cryptopulse/internal/models"
	"github.com/irfndi/cryptopulse/pkg/coingecko"
)

// MaxBackoffDelay caps the exponential schedule.
const MaxBackoffDelay = 24 * time.Hour

// ErrTaskPanic wraps a panic recovered inside a worker goroutine.
var ErrTaskPanic = errors.New("task panicked")

// BackoffDelay returns the wait before the next attempt: base * 2^(attempt-1),
// saturating at MaxBackoffDelay.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > MaxBackoffDelay/2 {
			return MaxBackoffDelay
		}
		delay *= 2
	}
	return delay
}

// recoverTask converts a panic in fn into an error wrapping ErrTaskPanic.
func recoverTask(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
			}
		}()
		return fn()
	}
}

// ShouldRetry decides whether a failed attempt is followed by another one.
// Permanent upstream failures use the same budget only when retryPermanent is set.
func ShouldRetry(kind models.ErrorKind, attempt, maxAttempts int, retryPermanent bool) bool {
	if attempt >= maxAttempts {
		return false
	}
	switch kind {
	case models.ErrorKindCanceled, models.ErrorKindStorageConflict:
		return false
	case models.ErrorKindUpstream:
		return retryPermanent
	default:
		return true
	}
}

// ClassifyError maps an error from the provider or the store onto the ingestion taxonomy.
func ClassifyError(err error) models.ErrorKind {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return models.ErrorKindCanceled
	}

	if errors.Is(err, ErrTaskPanic) {
		return models.ErrorKindStorageFatal
	}

	var storageErr *database.StorageError
	if errors.As(err, &storageErr) {
		if database.IsUniqueViolation(err) {
			return models.ErrorKindStorageConflict
		}
		return models.ErrorKindStorageFatal
	}

	var apiErr *coingecko.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return models.ErrorKindRateLimited
		case apiErr.StatusCode >= 500:
			return models.ErrorKindNetwork
		default:
			return models.ErrorKindUpstream
		}
	}

	if errors.Is(err, coingecko.ErrMalformedPayload) {
		return models.ErrorKindUpstream
	}

	// timeouts, dial failures and untyped transport errors
	return models.ErrorKindNetwork
}

// NormalizeError converts err into the record kept as a run's last error.
func NormalizeError(err error) *models.IngestionError {
	if err == nil {
		return nil
	}

	ingestionErr := &models.IngestionError{
		Message: err.Error(),
		Kind:    ClassifyError(err),
	}

	var apiErr *coingecko.APIError
	if errors.As(err, &apiErr) {
		ingestionErr.HTTPStatus = apiErr.StatusCode
		ingestionErr.ProviderCode = apiErr.Code
	}

	var netErr net.Error
	if ingestionErr.ProviderCode == "" && errors.As(err, &netErr) && netErr.Timeout() {
		ingestionErr.ProviderCode = "ETIMEDOUT"
	}

	return ingestionErr
}

// retryAfter returns the server-requested wait when the error carries one.
func retryAfter(err error) time.Duration {
	var apiErr *coingecko.APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func formatDelay(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}
