package threshold

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

// Outcome is the result of evaluating one threshold.
type Outcome struct {
	Metric      string  `json:"metric"`
	Expression  string  `json:"expression"`
	Passed      bool    `json:"passed"`
	NoData      bool    `json:"noData,omitempty"`
	Actual      float64 `json:"actual"`
	AbortOnFail bool    `json:"abortOnFail,omitempty"`
	Message     string  `json:"message,omitempty"`
}

// Evaluate checks one threshold against a series snapshot. A nil or empty
// series does not meet the threshold unless OnlyIfPresent is set.
func (th Threshold) Evaluate(s *metrics.SeriesSnapshot) Outcome {
	out := Outcome{
		Metric:      th.Metric,
		Expression:  th.Source,
		AbortOnFail: th.AbortOnFail,
	}

	if s.Empty() {
		out.NoData = true
		out.Passed = th.OnlyIfPresent
		if !out.Passed {
			out.Message = fmt.Sprintf("no samples recorded for %s", th.Metric)
		}
		return out
	}

	out.Actual = th.Expr.Value(s)
	out.Passed = th.Expr.Op.Compare(out.Actual, th.Expr.Literal)
	if !out.Passed {
		out.Message = fmt.Sprintf("%s %s is %.4g, threshold: %s", th.Metric, th.Expr.StatLabel(), out.Actual, th.Source)
	}
	return out
}

// Evaluate checks every threshold against the snapshot. It does not modify
// the snapshot.
func Evaluate(snap *metrics.Snapshot, ths []Threshold) []Outcome {
	outcomes := make([]Outcome, 0, len(ths))
	for _, th := range ths {
		outcomes = append(outcomes, th.Evaluate(snap.Get(th.Metric)))
	}
	return outcomes
}

// Passed reports whether every outcome passed. An empty list passes.
func Passed(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if !o.Passed {
			return false
		}
	}
	return true
}

// Breached returns the first abort-on-fail threshold that currently fails.
// Thresholds without data, or whose DelayAbortEval has not yet elapsed, are
// skipped.
func Breached(snap *metrics.Snapshot, ths []Threshold, elapsed time.Duration) (Outcome, bool) {
	for _, th := range ths {
		if !th.AbortOnFail || elapsed < th.DelayAbortEval {
			continue
		}
		s := snap.Get(th.Metric)
		if s.Empty() {
			continue
		}
		if o := th.Evaluate(s); !o.Passed {
			return o, true
		}
	}
	return Outcome{}, false
}

// HasAbortable reports whether any threshold is abort-on-fail.
func HasAbortable(ths []Threshold) bool {
	for _, th := range ths {
		if th.AbortOnFail {
			return true
		}
	}
	return false
}
