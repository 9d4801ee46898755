package vu

import (
	"sort"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

// CheckResult is one named assertion made during an iteration.
type CheckResult struct {
	Name   string
	Passed bool
}

// State is what a scenario sees during one iteration.
type State struct {
	VUID      int
	Iteration int64
	Metrics   *metrics.Collector
	Logger    *zap.Logger

	vu     *VirtualUser
	checks []CheckResult
}

// NewState creates the state for one iteration of v. A nil collector or
// logger is replaced by a private collector and a no-op logger.
func NewState(v *VirtualUser, iteration int64, c *metrics.Collector, logger *zap.Logger) *State {
	if c == nil {
		c = metrics.NewCollector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &State{
		VUID:      v.ID,
		Iteration: iteration,
		Metrics:   c,
		Logger:    logger,
		vu:        v,
	}
}

// Check records a named assertion into the checks rate and the per-check
// rate, and returns ok. A failed check does not fail the iteration.
func (s *State) Check(name string, ok bool) bool {
	s.checks = append(s.checks, CheckResult{Name: name, Passed: ok})

	v := 0.0
	if ok {
		v = 1
	}
	s.Metrics.Record(metrics.Checks, metrics.KindRate, v)
	s.Metrics.Record(metrics.CheckMetricName(name), metrics.KindRate, v)

	if !ok {
		s.Logger.Debug("check failed",
			zap.String("check", name),
			zap.Int("vu", s.VUID),
			zap.Int64("iteration", s.Iteration))
	}
	return ok
}

// Checks records several assertions in name order and reports whether all
// passed.
func (s *State) Checks(set map[string]bool) bool {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	all := true
	for _, name := range names {
		if !s.Check(name, set[name]) {
			all = false
		}
	}
	return all
}

// CheckResults returns the assertions made so far in this iteration.
func (s *State) CheckResults() []CheckResult {
	out := make([]CheckResult, len(s.checks))
	copy(out, s.checks)
	return out
}

// Set stores a value that survives across this VU's iterations.
func (s *State) Set(key string, value any) {
	s.vu.SetData(key, value)
}

// Get returns a value stored by Set.
func (s *State) Get(key string) (any, bool) {
	return s.vu.GetData(key)
}

// Vars returns a copy of every value stored by Set.
func (s *State) Vars() map[string]any {
	return s.vu.DataSnapshot()
}
