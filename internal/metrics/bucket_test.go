package metrics

import "testing"

func TestTimeBucketStore_RingBuffer(t *testing.T) {
	store := NewTimeBucketStore(3)

	for i := int64(1); i <= 5; i++ {
		store.RecordIteration()
		store.CreateBucket(i, 0, 0, int(i), PhaseSteady)
	}

	if store.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", store.Count())
	}

	buckets := store.GetBuckets()
	for i, want := range []int64{3, 4, 5} {
		if buckets[i].Iterations != want {
			t.Errorf("buckets[%d].Iterations = %d, want %d", i, buckets[i].Iterations, want)
		}
	}

	recent := store.GetRecentBuckets(2)
	if len(recent) != 2 || recent[0].Iterations != 4 || recent[1].Iterations != 5 {
		t.Errorf("GetRecentBuckets(2) returned wrong buckets")
	}
	if latest := store.GetLatestBucket(); latest.Iterations != 5 {
		t.Errorf("GetLatestBucket().Iterations = %d, want 5", latest.Iterations)
	}
}

func TestTimeBucketStore_IntervalCounts(t *testing.T) {
	store := NewTimeBucketStore(10)

	for i := 0; i < 4; i++ {
		store.RecordIteration()
	}
	store.RecordError()

	b := store.CreateBucket(4, 1, 12.5, 2, PhaseRampUp)
	if b.IntervalIterations != 4 {
		t.Errorf("IntervalIterations = %d, want 4", b.IntervalIterations)
	}
	if b.IntervalErrorRate != 0.25 {
		t.Errorf("IntervalErrorRate = %v, want 0.25", b.IntervalErrorRate)
	}

	b = store.CreateBucket(4, 1, 12.5, 2, PhaseRampUp)
	if b.IntervalIterations != 0 {
		t.Errorf("second IntervalIterations = %d, want 0", b.IntervalIterations)
	}
}

func TestTimeBucketStore_Empty(t *testing.T) {
	store := NewTimeBucketStore(0)

	if store.GetBuckets() != nil {
		t.Error("GetBuckets() on empty store should be nil")
	}
	if store.GetLatestBucket() != nil {
		t.Error("GetLatestBucket() on empty store should be nil")
	}
	if rate, n := store.SteadyStateRate(); rate != 0 || n != 0 {
		t.Errorf("SteadyStateRate() = %v, %d, want 0, 0", rate, n)
	}
}

func TestTimeBucketStore_SteadyStateRate(t *testing.T) {
	store := NewTimeBucketStore(10)

	store.CreateBucket(0, 0, 0, 1, PhaseRampUp)
	store.CreateBucket(0, 0, 0, 1, PhaseSteady)
	store.CreateBucket(0, 0, 0, 1, PhaseSteady)

	if _, n := store.SteadyStateRate(); n != 2 {
		t.Errorf("steady buckets = %d, want 2", n)
	}
}
