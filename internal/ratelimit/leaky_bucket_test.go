package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced by hand.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBucket(rate, burst float64) (*LeakyBucket, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	lb := NewLeakyBucketWithBurst(rate, burst)
	lb.now = clock.Now
	lb.lastDrip = clock.Now()
	return lb, clock
}

func TestNewLeakyBucket(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		expected float64
	}{
		{"positive rate", 100, 100},
		{"zero rate defaults to 1", 0, 1},
		{"negative rate defaults to 1", -10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewLeakyBucket(tt.rate).Rate())
		})
	}
}

func TestLeakyBucket_Reserve_Spacing(t *testing.T) {
	lb, clock := newTestBucket(100, 1)
	start := clock.Now()

	assert.Equal(t, start, lb.Reserve(), "first start is immediate")
	assert.Equal(t, start.Add(10*time.Millisecond), lb.Reserve())
	assert.Equal(t, start.Add(20*time.Millisecond), lb.Reserve())

	// Catching up to the schedule does not release extra starts.
	clock.Advance(20 * time.Millisecond)
	assert.Equal(t, start.Add(30*time.Millisecond), lb.Reserve())
}

func TestLeakyBucket_Reserve_BehindSchedule(t *testing.T) {
	lb, clock := newTestBucket(10, 1)
	lb.Reserve()

	clock.Advance(time.Second)
	now := clock.Now()
	assert.Equal(t, now, lb.Reserve(), "a late caller starts at once")
	assert.Equal(t, now.Add(100*time.Millisecond), lb.Reserve(), "only one start was banked")
}

func TestLeakyBucket_Burst(t *testing.T) {
	lb, clock := newTestBucket(10, 3)
	for i := 0; i < 3; i++ {
		lb.Reserve()
	}

	clock.Advance(10 * time.Second)
	now := clock.Now()
	for i := 0; i < 3; i++ {
		assert.Equal(t, now, lb.Reserve(), "banked start %d", i)
	}
	assert.True(t, lb.Reserve().After(now))
}

func TestLeakyBucket_SetRate(t *testing.T) {
	lb, clock := newTestBucket(1000, 5)
	lb.SetRate(2)
	start := clock.Now()

	assert.Equal(t, 2.0, lb.Rate())
	assert.Equal(t, start.Add(500*time.Millisecond), lb.Reserve(), "banked starts are dropped")

	lb.SetRate(-1)
	assert.Equal(t, 1.0, lb.Rate())
}

func TestLeakyBucket_Wait_RespectsContext(t *testing.T) {
	lb := NewLeakyBucket(1)
	require.NoError(t, lb.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := lb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestLeakyBucket_Wait_Paces(t *testing.T) {
	lb := NewLeakyBucket(200)
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, lb.Wait(context.Background()))
	}
	// Four gaps of 5ms.
	assert.GreaterOrEqual(t, time.Since(start), 18*time.Millisecond)
}

func TestLeakyBucket_Concurrent(t *testing.T) {
	lb, clock := newTestBucket(1000, 1)
	start := clock.Now()

	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			due := lb.Reserve()
			mu.Lock()
			seen[due] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50, "every caller gets its own slot")
	assert.True(t, seen[start.Add(49*time.Millisecond)])

	stats := lb.Stats()
	assert.Equal(t, int64(50), stats.Reserved)
	assert.Equal(t, 1.0, stats.Burst)
	assert.Greater(t, stats.Waited, time.Duration(0))
}
