package metrics

import (
	"encoding/json"
	"sort"
	"time"
)

// Snapshot is an immutable point-in-time copy of every series.
type Snapshot struct {
	Series    map[string]*SeriesSnapshot `json:"metrics"`
	StartTime time.Time                  `json:"startTime"`
	Timestamp time.Time                  `json:"timestamp"`
	Elapsed   time.Duration              `json:"elapsed"`
	ActiveVUs int                        `json:"activeVUs"`
	MaxVUs    int                        `json:"maxVUs"`
	Phase     Phase                      `json:"phase"`

	// SteadyStateRate is the mean iterations per second while the VU
	// target was held. Zero when the run had no steady interval.
	SteadyStateRate float64 `json:"steadyStateRate"`
}

// Get returns the named series, or nil.
func (s *Snapshot) Get(name string) *SeriesSnapshot {
	if s == nil {
		return nil
	}
	return s.Series[name]
}

// Names returns the series names in sorted order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Series))
	for name := range s.Series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SeriesSnapshot is the aggregated state of one series. Which fields are
// meaningful depends on Kind:
//
//	counter: Count (samples), Sum, Rate (Sum per second)
//	gauge:   Value, Min, Max
//	rate:    Passes, Fails, Rate (Passes / Count)
//	trend:   Count, Sum, Min, Max, Avg, Med, P90, P95, P99, Percentile
type SeriesSnapshot struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"type"`
	ValueType ValueType `json:"contains"`
	Count     int64     `json:"count"`

	Sum   float64 `json:"sum"`
	Rate  float64 `json:"rate"`
	Value float64 `json:"value"`

	Passes int64 `json:"passes"`
	Fails  int64 `json:"fails"`

	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	Med float64 `json:"med"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`

	dist *distribution
}

// Empty reports whether the series received no samples.
func (s *SeriesSnapshot) Empty() bool {
	return s == nil || s.Count == 0
}

// Percentile returns the p-th percentile (0-100) of a trend series. It
// returns 0 for other kinds or when no samples were recorded.
func (s *SeriesSnapshot) Percentile(p float64) float64 {
	if s == nil || s.dist == nil || s.Count == 0 {
		return 0
	}
	if p <= 0 {
		return s.Min
	}
	if p >= 100 {
		return s.Max
	}
	return clampToBounds(s.dist.quantile(p), s.Min, s.Max)
}

// seriesJSON is the encoded form of a SeriesSnapshot. Only the statistics
// of the series' kind are set, and those are written even when zero.
type seriesJSON struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"type"`
	ValueType ValueType `json:"contains"`
	Count     int64     `json:"count"`

	Sum   *float64 `json:"sum,omitempty"`
	Rate  *float64 `json:"rate,omitempty"`
	Value *float64 `json:"value,omitempty"`

	Passes *int64 `json:"passes,omitempty"`
	Fails  *int64 `json:"fails,omitempty"`

	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
	Avg *float64 `json:"avg,omitempty"`
	Med *float64 `json:"med,omitempty"`
	P90 *float64 `json:"p90,omitempty"`
	P95 *float64 `json:"p95,omitempty"`
	P99 *float64 `json:"p99,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s SeriesSnapshot) MarshalJSON() ([]byte, error) {
	out := seriesJSON{Name: s.Name, Kind: s.Kind, ValueType: s.ValueType, Count: s.Count}
	switch s.Kind {
	case KindCounter:
		out.Sum, out.Rate = &s.Sum, &s.Rate
	case KindGauge:
		out.Value, out.Min, out.Max = &s.Value, &s.Min, &s.Max
	case KindRate:
		out.Rate, out.Passes, out.Fails = &s.Rate, &s.Passes, &s.Fails
	case KindTrend:
		out.Sum, out.Min, out.Max, out.Avg = &s.Sum, &s.Min, &s.Max, &s.Avg
		out.Med, out.P90, out.P95, out.P99 = &s.Med, &s.P90, &s.P95, &s.P99
	}
	return json.Marshal(out)
}

// Ratio returns the Rate numerator and denominator.
func (s *SeriesSnapshot) Ratio() (passes, total int64) {
	if s == nil {
		return 0, 0
	}
	return s.Passes, s.Count
}
