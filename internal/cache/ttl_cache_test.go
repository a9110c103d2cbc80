package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestTTLCache_GetFreshEntry(t *testing.T) {
	clock := newClock()
	c := NewTTLCache[[]int](30 * time.Minute).WithClock(clock.Now)

	c.Put("BTC_ohlc_3d", []int{1, 2, 3})
	clock.Advance(5 * time.Minute)

	got, ok := c.Get("BTC_ohlc_3d")
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestTTLCache_ExpiresAtTTLBoundary(t *testing.T) {
	clock := newClock()
	c := NewTTLCache[string](30 * time.Minute).WithClock(clock.Now)

	c.Put("k", "v")
	clock.Advance(30*time.Minute - time.Nanosecond)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Nanosecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry exactly ttl old is stale")
	assert.Equal(t, 1, c.Len(), "stale entries are not evicted")
}

func TestTTLCache_Miss(t *testing.T) {
	c := NewTTLCache[string](time.Minute)
	got, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestTTLCache_PutReplacesWholeEntry(t *testing.T) {
	clock := newClock()
	c := NewTTLCache[string](10 * time.Minute).WithClock(clock.Now)

	c.Put("k", "old")
	clock.Advance(9 * time.Minute)
	c.Put("k", "new")
	clock.Advance(5 * time.Minute)

	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "new", got)
}

func TestTTLCache_HasFresh(t *testing.T) {
	clock := newClock()
	c := NewTTLCache[int](30 * time.Minute).WithClock(clock.Now)
	assert.False(t, c.HasFresh())

	c.Put("a", 1)
	clock.Advance(20 * time.Minute)
	c.Put("b", 2)
	clock.Advance(15 * time.Minute)
	assert.True(t, c.HasFresh(), "b is 15 minutes old")

	clock.Advance(15 * time.Minute)
	assert.False(t, c.HasFresh())
}

func TestTTLCache_ConcurrentAccess(t *testing.T) {
	c := NewTTLCache[int](time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := OHLCKey("coin", i%5)
			c.Put(key, i)
			c.Get(key)
			c.HasFresh()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, c.Len())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "bitcoin_ohlc_3d", OHLCKey("bitcoin", 3))
	assert.Equal(t, "BTC_ohlc_3d", OHLCKey("BTC", 3))
	assert.Equal(t, "ethereum_chart_1d", ChartKey("ethereum", 1))
	assert.Equal(t, "crypto_list_", ListKey(""))
	assert.Equal(t, "crypto_list_bit", ListKey("bit"))
}
