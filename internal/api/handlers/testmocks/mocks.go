package testmocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/irfndi/cryptopulse/internal/models"
	"github.com/irfndi/cryptopulse/internal/services"
)

// MockMarketReader implements handlers.MarketReader for testing
type MockMarketReader struct {
	mock.Mock
}

func (m *MockMarketReader) ListSnapshots(ctx context.Context, filter models.AssetFilter) ([]models.AssetSnapshot, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AssetSnapshot), args.Error(1)
}

func (m *MockMarketReader) CountSnapshots(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMarketReader) ListCandles(ctx context.Context, q models.CandleQuery) ([]models.HistoricalCandle, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HistoricalCandle), args.Error(1)
}

// MockIngestionService implements handlers.IngestionController for testing
type MockIngestionService struct {
	mock.Mock
}

func (m *MockIngestionService) RunIngestion(ctx context.Context, params services.IngestionParams) models.IngestionResult {
	args := m.Called(ctx, params)
	return args.Get(0).(models.IngestionResult)
}

func (m *MockIngestionService) Status() services.IngestionStatus {
	args := m.Called()
	return args.Get(0).(services.IngestionStatus)
}

// MockHealthChecker implements handlers.HealthChecker for testing
type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
