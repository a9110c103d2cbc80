package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/irfndi/cryptopulse/internal/cache"
	"github.com/irfndi/cryptopulse/internal/database"
	"github.com/irfndi/cryptopulse/internal/models"
	"github.com/irfndi/cryptopulse/pkg/coingecko"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func marketCoin(id string) coingecko.MarketCoin {
	return coingecko.MarketCoin{
		ID:           strPtr(id),
		Symbol:       strPtr(id[:3]),
		Name:         strPtr(displayName(id)),
		CurrentPrice: decimal.NewNullDecimal(decimal.NewFromInt(100)),
		MarketCap:    decimal.NewNullDecimal(decimal.NewFromInt(1000)),
	}
}

func ohlcPoints(n int) []coingecko.OHLCPoint {
	points := make([]coingecko.OHLCPoint, n)
	for i := range points {
		points[i] = coingecko.OHLCPoint{
			Timestamp: testNow.Add(-time.Duration(n-i) * 30 * time.Minute),
			Open:      decimal.NewFromInt(10),
			High:      decimal.NewFromInt(12),
			Low:       decimal.NewFromInt(9),
			Close:     decimal.NewFromInt(11),
		}
	}
	return points
}

// fakeProvider serves a ranked universe and lets tests inject failures per call.
type fakeProvider struct {
	mu       sync.Mutex
	universe []string

	marketsErr func(call int, req coingecko.MarketsRequest) error
	ohlcErr    func(coinID string) error
	onMarkets  func()

	marketCalls []coingecko.MarketsRequest
	ohlcCalls   []string
}

func newFakeProvider(universe ...string) *fakeProvider {
	return &fakeProvider{universe: universe}
}

func (p *fakeProvider) GetMarkets(ctx context.Context, req coingecko.MarketsRequest) ([]coingecko.MarketCoin, error) {
	p.mu.Lock()
	p.marketCalls = append(p.marketCalls, req)
	call := len(p.marketCalls)
	hook, errFn := p.onMarkets, p.marketsErr
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if errFn != nil {
		if err := errFn(call, req); err != nil {
			return nil, err
		}
	}

	start := (req.Page - 1) * req.PerPage
	var coins []coingecko.MarketCoin
	for i := start; i < start+req.PerPage && i < len(p.universe); i++ {
		coins = append(coins, marketCoin(p.universe[i]))
	}
	return coins, nil
}

func (p *fakeProvider) GetOHLC(ctx context.Context, coinID, vsCurrency string, days int) ([]coingecko.OHLCPoint, error) {
	p.mu.Lock()
	p.ohlcCalls = append(p.ohlcCalls, coinID)
	errFn := p.ohlcErr
	p.mu.Unlock()

	if errFn != nil {
		if err := errFn(coinID); err != nil {
			return nil, err
		}
	}
	return ohlcPoints(2), nil
}

func (p *fakeProvider) MarketPages() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	pages := make([]int, len(p.marketCalls))
	for i, req := range p.marketCalls {
		pages[i] = req.Page
	}
	return pages
}

func (p *fakeProvider) OHLCCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	calls := append([]string(nil), p.ohlcCalls...)
	sort.Strings(calls)
	return calls
}

// memStore is an in-memory snapshot and candle store with failure injection.
type memStore struct {
	mu          sync.Mutex
	snapshots   map[string]models.AssetSnapshot
	candles     map[string]models.HistoricalCandle
	upserts     int
	snapshotErr func(call int) error
	candleErr   func(call int) error
	candleCalls int
}

func newMemStore() *memStore {
	return &memStore{
		snapshots: make(map[string]models.AssetSnapshot),
		candles:   make(map[string]models.HistoricalCandle),
	}
}

func (m *memStore) UpsertSnapshots(ctx context.Context, snapshots []models.AssetSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.snapshotErr != nil {
		if err := m.snapshotErr(m.upserts); err != nil {
			return &database.StorageError{Op: "upsert_snapshot", Err: err}
		}
	}
	for _, s := range snapshots {
		m.snapshots[s.CoinID] = s
	}
	return nil
}

func (m *memStore) InsertCandles(ctx context.Context, candles []models.HistoricalCandle) (database.InsertReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candleCalls++
	if m.candleErr != nil {
		if err := m.candleErr(m.candleCalls); err != nil {
			return database.InsertReport{Failed: len(candles)}, &database.StorageError{Op: "insert_candles", Err: err}
		}
	}
	var report database.InsertReport
	for _, c := range candles {
		if _, ok := m.candles[c.Key()]; ok {
			report.Duplicates++
			continue
		}
		m.candles[c.Key()] = c
		report.Inserted++
	}
	return report, nil
}

func (m *memStore) SnapshotIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *memStore) CandleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.candles)
}

// recordingSleeper records requested waits instead of sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []models.IngestionResult
}

func (n *recordingNotifier) NotifyIngestionFailure(ctx context.Context, result models.IngestionResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, result)
	return nil
}

func (n *recordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.results)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type serviceFixture struct {
	service  *IngestionService
	provider *fakeProvider
	store    *memStore
	sleeper  *recordingSleeper
	notifier *recordingNotifier
	cache    *cache.TTLCache[[]models.HistoricalCandle]
	clock    *time.Time
}

func newServiceFixture(universe ...string) *serviceFixture {
	clock := testNow
	f := &serviceFixture{
		provider: newFakeProvider(universe...),
		store:    newMemStore(),
		sleeper:  &recordingSleeper{},
		notifier: &recordingNotifier{},
		clock:    &clock,
	}
	now := func() time.Time { return *f.clock }
	f.cache = cache.NewTTLCache[[]models.HistoricalCandle](30 * time.Minute).WithClock(now)

	logger := quietLogger()
	f.service = NewIngestionService(f.provider, NewReconciler(f.store, f.store, logger), f.cache, f.notifier, logger)
	f.service.sleep = f.sleeper.Sleep
	f.service.now = now
	return f
}

func testParams(universe, batch int) IngestionParams {
	return IngestionParams{
		Retries:              3,
		BaseDelay:            60 * time.Second,
		LookbackDays:         3,
		UniverseSize:         universe,
		BatchSize:            batch,
		BatchDelay:           5 * time.Minute,
		StaggerDelay:         2 * time.Second,
		VsCurrency:           "usd",
		RetryPermanentErrors: true,
	}
}

func coinIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("coin-%02d", i+1)
	}
	return ids
}
