// Package ratelimit paces requests shared by every virtual user of a run.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LeakyBucket hands out start times spaced 1/rate apart. A caller that
// is behind schedule starts at once; no more than burst starts are ever
// banked.
//
// LeakyBucket is safe for concurrent use.
type LeakyBucket struct {
	mu       sync.Mutex
	rate     float64
	burst    float64
	banked   float64
	lastDrip time.Time
	now      func() time.Time

	reserved atomic.Int64
	waited   atomic.Int64
}

// NewLeakyBucket returns a bucket releasing rate starts per second. The
// first start is immediate. A rate <= 0 is treated as 1.
func NewLeakyBucket(rate float64) *LeakyBucket {
	return NewLeakyBucketWithBurst(rate, 1)
}

// NewLeakyBucketWithBurst is NewLeakyBucket with up to burst starts
// banked while callers are idle. burst is at least 1.
func NewLeakyBucketWithBurst(rate, burst float64) *LeakyBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst < 1 {
		burst = 1
	}
	lb := &LeakyBucket{rate: rate, burst: burst, banked: burst, now: time.Now}
	lb.lastDrip = lb.now()
	return lb
}

// Reserve claims the next start and returns when it is due. The time
// may be in the past.
func (lb *LeakyBucket) Reserve() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := lb.now()
	if elapsed := now.Sub(lb.lastDrip).Seconds(); elapsed > 0 {
		lb.banked += elapsed * lb.rate
	}
	if lb.banked > lb.burst {
		lb.banked = lb.burst
	}
	lb.reserved.Add(1)

	if lb.banked >= 1 {
		lb.banked--
		if now.After(lb.lastDrip) {
			lb.lastDrip = now
		}
		return now
	}

	// lastDrip moves to the due time so the sleep is not counted twice.
	base := lb.lastDrip
	if now.After(base) {
		base = now
	}
	due := base.Add(time.Duration((1 - lb.banked) / lb.rate * float64(time.Second)))
	lb.banked = 0
	lb.lastDrip = due
	lb.waited.Add(int64(due.Sub(now)))
	return due
}

// Wait blocks until the next start is due or ctx is done.
func (lb *LeakyBucket) Wait(ctx context.Context) error {
	d := time.Until(lb.Reserve())
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

// SetRate changes the rate. Banked starts are dropped so a lower rate
// does not begin with a burst.
func (lb *LeakyBucket) SetRate(rate float64) {
	if rate <= 0 {
		rate = 1
	}
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.rate = rate
	lb.banked = 0
	if now := lb.now(); now.After(lb.lastDrip) {
		lb.lastDrip = now
	}
}

// Rate returns starts per second.
func (lb *LeakyBucket) Rate() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.rate
}

// Stats summarises the bucket's work so far.
type Stats struct {
	Rate     float64       `json:"rate"`
	Burst    float64       `json:"burst"`
	Reserved int64         `json:"reserved"`
	Waited   time.Duration `json:"waited"`
}

// Stats returns a snapshot of the counters.
func (lb *LeakyBucket) Stats() Stats {
	lb.mu.Lock()
	rate, burst := lb.rate, lb.burst
	lb.mu.Unlock()
	return Stats{
		Rate:     rate,
		Burst:    burst,
		Reserved: lb.reserved.Load(),
		Waited:   time.Duration(lb.waited.Load()),
	}
}
