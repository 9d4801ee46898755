package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimeBucket is one interval of the run's time series.
type TimeBucket struct {
	Timestamp time.Time     `json:"timestamp"`
	Elapsed   time.Duration `json:"elapsed"`

	// Cumulative totals at the end of the interval.
	Iterations      int64 `json:"iterations"`
	IterationErrors int64 `json:"iterationErrors"`

	// Interval values.
	IntervalIterations int64   `json:"intervalIterations"`
	IntervalRate       float64 `json:"intervalRate"`
	IntervalErrorRate  float64 `json:"intervalErrorRate"`

	// IterationP95 is the cumulative iteration_duration p95 in milliseconds.
	IterationP95 float64 `json:"iterationP95"`

	ActiveVUs int   `json:"activeVUs"`
	Phase     Phase `json:"phase"`
}

// TimeBucketStore keeps the most recent buckets in a ring buffer so memory
// stays bounded regardless of run length. Interval accumulators are updated
// without locks.
type TimeBucketStore struct {
	buckets    []*TimeBucket
	head       int
	count      int
	maxBuckets int
	mu         sync.RWMutex

	startTime      time.Time
	lastBucketTime time.Time

	currentIterations atomic.Int64
	currentErrors     atomic.Int64
}

// NewTimeBucketStore creates a store holding at most maxBuckets buckets.
// For a one hour run with 1s buckets use 3600.
func NewTimeBucketStore(maxBuckets int) *TimeBucketStore {
	if maxBuckets <= 0 {
		maxBuckets = 3600
	}

	now := time.Now()
	return &TimeBucketStore{
		buckets:        make([]*TimeBucket, maxBuckets),
		maxBuckets:     maxBuckets,
		startTime:      now,
		lastBucketTime: now,
	}
}

// restart moves the interval origin to t.
func (tbs *TimeBucketStore) restart(t time.Time) {
	tbs.mu.Lock()
	defer tbs.mu.Unlock()
	tbs.startTime = t
	tbs.lastBucketTime = t
}

// RecordIteration counts one finished iteration in the current interval.
func (tbs *TimeBucketStore) RecordIteration() {
	tbs.currentIterations.Add(1)
}

// RecordError counts one failed iteration in the current interval.
func (tbs *TimeBucketStore) RecordError() {
	tbs.currentErrors.Add(1)
}

// CreateBucket closes the current interval and appends it to the ring.
func (tbs *TimeBucketStore) CreateBucket(
	totalIterations, totalErrors int64,
	iterationP95 float64,
	activeVUs int,
	phase Phase,
) *TimeBucket {
	tbs.mu.Lock()
	defer tbs.mu.Unlock()

	now := time.Now()

	intervalIterations := tbs.currentIterations.Swap(0)
	intervalErrors := tbs.currentErrors.Swap(0)

	intervalDuration := now.Sub(tbs.lastBucketTime).Seconds()
	if intervalDuration <= 0 {
		intervalDuration = 1.0
	}

	errorRate := 0.0
	if intervalIterations > 0 {
		errorRate = float64(intervalErrors) / float64(intervalIterations)
	}

	bucket := &TimeBucket{
		Timestamp:          now,
		Elapsed:            now.Sub(tbs.startTime),
		Iterations:         totalIterations,
		IterationErrors:    totalErrors,
		IntervalIterations: intervalIterations,
		IntervalRate:       float64(intervalIterations) / intervalDuration,
		IntervalErrorRate:  errorRate,
		IterationP95:       iterationP95,
		ActiveVUs:          activeVUs,
		Phase:              phase,
	}

	tbs.buckets[tbs.head] = bucket
	tbs.head = (tbs.head + 1) % tbs.maxBuckets
	if tbs.count < tbs.maxBuckets {
		tbs.count++
	}
	tbs.lastBucketTime = now

	return bucket
}

// GetBuckets returns all retained buckets in chronological order.
func (tbs *TimeBucketStore) GetBuckets() []*TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}

	result := make([]*TimeBucket, tbs.count)
	if tbs.count < tbs.maxBuckets {
		copy(result, tbs.buckets[:tbs.count])
		return result
	}

	// Full ring: oldest entry sits at head.
	for i := 0; i < tbs.count; i++ {
		result[i] = tbs.buckets[(tbs.head+i)%tbs.maxBuckets]
	}
	return result
}

// GetRecentBuckets returns the n most recent buckets, oldest first.
func (tbs *TimeBucketStore) GetRecentBuckets(n int) []*TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if n > tbs.count {
		n = tbs.count
	}
	if n <= 0 {
		return nil
	}

	result := make([]*TimeBucket, n)
	for i := 0; i < n; i++ {
		idx := (tbs.head - 1 - i + tbs.maxBuckets) % tbs.maxBuckets
		result[n-1-i] = tbs.buckets[idx]
	}
	return result
}

// GetLatestBucket returns the most recent bucket, or nil if none.
func (tbs *TimeBucketStore) GetLatestBucket() *TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}
	return tbs.buckets[(tbs.head-1+tbs.maxBuckets)%tbs.maxBuckets]
}

// Count returns the number of retained buckets.
func (tbs *TimeBucketStore) Count() int {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()
	return tbs.count
}

// SteadyStateRate returns the mean interval iteration rate across buckets
// taken while the VU target was held, and how many buckets contributed.
func (tbs *TimeBucketStore) SteadyStateRate() (float64, int) {
	var (
		sum float64
		n   int
	)
	for _, b := range tbs.GetBuckets() {
		if b.Phase != PhaseSteady {
			continue
		}
		sum += b.IntervalRate
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
