package engine

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/stampede/internal/executor"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/threshold"
)

// RunResult is the frozen outcome of one run. It is assembled once, after
// every VU has stopped, and is not modified afterwards.
type RunResult struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	Metrics    *metrics.Snapshot     `json:"metrics"`
	TimeSeries []*metrics.TimeBucket `json:"timeSeries,omitempty"`
	Phases     []metrics.PhaseChange `json:"phases,omitempty"`

	Thresholds []threshold.Outcome `json:"thresholds,omitempty"`
	Passed     bool                `json:"passed"`

	// Interrupted is set when the run ended before its last stage, either
	// by an external stop or an abort-on-fail threshold. Abort says which;
	// a threshold breach caught as the plan completed sets Abort alone.
	Interrupted bool      `json:"interrupted"`
	Abort       *RunAbort `json:"abort,omitempty"`

	Stages   []executor.StageResult `json:"stages"`
	Warnings []string               `json:"warnings,omitempty"`

	// NoSuccessfulIterations is set when not a single iteration completed
	// without error. It does not affect Passed.
	NoSuccessfulIterations bool `json:"noSuccessfulIterations,omitempty"`

	// DroppedSamples counts samples recorded after the collector froze.
	DroppedSamples int64 `json:"droppedSamples,omitempty"`
}

// Iterations returns how many iterations completed, and how many of those
// failed.
func (r *RunResult) Iterations() (total, failed int64) {
	if s := r.Metrics.Get(metrics.Iterations); s != nil {
		total = int64(s.Sum)
	}
	if s := r.Metrics.Get(metrics.IterationErrors); s != nil {
		failed = int64(s.Sum)
	}
	return total, failed
}

// FailedThresholds returns the outcomes that did not pass.
func (r *RunResult) FailedThresholds() []threshold.Outcome {
	var out []threshold.Outcome
	for _, o := range r.Thresholds {
		if !o.Passed {
			out = append(out, o)
		}
	}
	return out
}

// AbortReason says why a run was cut short.
type AbortReason string

const (
	// AbortInterrupt is an external stop: context cancellation or Stop.
	AbortInterrupt AbortReason = "interrupt"

	// AbortThreshold is an abort-on-fail threshold breach.
	AbortThreshold AbortReason = "threshold"
)

// RunAbort describes an early end of the run. Either way VUs ramp to zero
// gracefully.
type RunAbort struct {
	Reason    AbortReason        `json:"reason"`
	Elapsed   time.Duration      `json:"elapsed"`
	Threshold *threshold.Outcome `json:"threshold,omitempty"`
}

func (a *RunAbort) Error() string {
	if a.Reason == AbortThreshold && a.Threshold != nil {
		return fmt.Sprintf("run aborted after %s: threshold %q on %s failed",
			a.Elapsed.Round(time.Millisecond), a.Threshold.Expression, a.Threshold.Metric)
	}
	return fmt.Sprintf("run interrupted after %s", a.Elapsed.Round(time.Millisecond))
}

// ConfigurationError is returned by New when the run cannot start. No VU
// has been spawned when it is returned.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SummaryHandler turns the final result into named outputs. Keys are file
// paths or the special names "stdout" and "stderr".
type SummaryHandler func(*RunResult) (map[string][]byte, error)

// OutputWriter persists the outputs returned by summary handlers.
type OutputWriter func(outputs map[string][]byte) error
