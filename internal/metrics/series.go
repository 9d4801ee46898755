package metrics

import (
	"math"
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// histogramConfig describes how trend values are mapped into an HDR
// histogram. Magnitudes are multiplied by scale and rounded to int64.
type histogramConfig struct {
	min     int64
	max     int64
	sigFigs int
	scale   float64
}

func (h histogramConfig) newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(h.min, h.max, h.sigFigs)
}

// toUnits converts the magnitude of v. clamped is true when it exceeds the
// histogram range and was recorded as the maximum.
func (h histogramConfig) toUnits(v float64) (units int64, clamped bool) {
	scaled := math.Round(math.Abs(v) * h.scale)
	if scaled > float64(h.max) {
		return h.max, true
	}
	return int64(scaled), false
}

// distribution holds trend values in two histograms: non-negative values
// and the magnitudes of negative ones.
type distribution struct {
	hc  histogramConfig
	pos *hdrhistogram.Histogram
	neg *hdrhistogram.Histogram
}

func newDistribution(hc histogramConfig) *distribution {
	return &distribution{hc: hc, pos: hc.newHistogram()}
}

func (d *distribution) record(v float64) (clamped bool) {
	units, clamped := d.hc.toUnits(v)
	h := d.pos
	if v < 0 {
		if d.neg == nil {
			d.neg = d.hc.newHistogram()
		}
		h = d.neg
	}
	// HDR RecordValue is not thread-safe; callers hold the series lock.
	_ = h.RecordValue(units)
	return clamped
}

func (d *distribution) clone() *distribution {
	c := newDistribution(d.hc)
	c.pos.Merge(d.pos)
	if d.neg != nil {
		c.neg = d.hc.newHistogram()
		c.neg.Merge(d.neg)
	}
	return c
}

// quantile returns the value at the nearest rank for p (0-100).
func (d *distribution) quantile(p float64) float64 {
	var negN int64
	if d.neg != nil {
		negN = d.neg.TotalCount()
	}
	posN := d.pos.TotalCount()
	total := negN + posN
	if total == 0 {
		return 0
	}

	rank := int64(p/100*float64(total) + 0.5)
	if rank < 1 {
		rank = 1
	}
	if rank > total {
		rank = total
	}

	if rank <= negN {
		// The rank-th smallest value is the (negN-rank+1)-th smallest magnitude.
		q := 100 * float64(negN-rank+1) / float64(negN)
		return -float64(d.neg.ValueAtQuantile(q)) / d.hc.scale
	}
	q := 100 * float64(rank-negN) / float64(posN)
	return float64(d.pos.ValueAtQuantile(q)) / d.hc.scale
}

// series is the aggregated state of one metric. All fields are guarded by mu.
type series struct {
	mu        sync.Mutex
	name      string
	kind      Kind
	valueType ValueType

	count int64
	sum   float64
	min   float64
	max   float64
	last  float64

	// trues is the Rate numerator; count is its denominator.
	trues int64

	dist *distribution
}

func newSeries(name string, kind Kind, valueType ValueType, hc histogramConfig) *series {
	s := &series{
		name:      name,
		kind:      kind,
		valueType: valueType,
	}
	if kind == KindTrend {
		s.dist = newDistribution(hc)
	}
	return s
}

// add folds value into the series according to its kind. It reports whether
// a trend value fell outside the histogram range. Callers hold mu.
func (s *series) add(value float64) (clamped bool) {
	s.count++

	switch s.kind {
	case KindCounter:
		s.sum += value

	case KindGauge:
		s.last = value
		s.observeBounds(value)

	case KindRate:
		if value != 0 {
			s.trues++
		}

	case KindTrend:
		s.sum += value
		s.observeBounds(value)
		return s.dist.record(value)
	}
	return false
}

func (s *series) observeBounds(value float64) {
	if s.count == 1 {
		s.min = value
		s.max = value
		return
	}
	if value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}
}

// snapshot copies the series. Callers must not hold mu.
func (s *series) snapshot(elapsedSeconds float64) *SeriesSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &SeriesSnapshot{
		Name:      s.name,
		Kind:      s.kind,
		ValueType: s.valueType,
		Count:     s.count,
	}

	switch s.kind {
	case KindCounter:
		snap.Sum = s.sum
		if elapsedSeconds > 0 {
			snap.Rate = s.sum / elapsedSeconds
		}

	case KindGauge:
		snap.Value = s.last
		snap.Min = s.min
		snap.Max = s.max

	case KindRate:
		snap.Passes = s.trues
		snap.Fails = s.count - s.trues
		if s.count > 0 {
			snap.Rate = float64(s.trues) / float64(s.count)
		}

	case KindTrend:
		snap.Sum = s.sum
		snap.Min = s.min
		snap.Max = s.max
		if s.count > 0 {
			snap.Avg = s.sum / float64(s.count)
		}
		snap.dist = s.dist.clone()
		snap.Med = snap.Percentile(50)
		snap.P90 = snap.Percentile(90)
		snap.P95 = snap.Percentile(95)
		snap.P99 = snap.Percentile(99)
	}

	return snap
}

// percentile reads a percentile without copying. Callers hold mu.
func (s *series) percentile(p float64) float64 {
	if s.dist == nil || s.count == 0 {
		return 0
	}
	return clampToBounds(s.dist.quantile(p), s.min, s.max)
}

// clampToBounds keeps a histogram reading inside the exact extremes, which
// bucket rounding may overshoot.
func clampToBounds(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
