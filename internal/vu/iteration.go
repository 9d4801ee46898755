package vu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

// Scenario is the user-supplied iteration logic.
type Scenario interface {
	Run(ctx context.Context, st *State) error
}

// ScenarioFunc adapts a function to Scenario.
type ScenarioFunc func(ctx context.Context, st *State) error

// Run calls f.
func (f ScenarioFunc) Run(ctx context.Context, st *State) error {
	return f(ctx, st)
}

// IterationResult describes one finished iteration.
type IterationResult struct {
	VUID         int
	Iteration    int64
	Start        time.Time
	Duration     time.Duration
	Err          error
	Interrupted  bool
	ChecksPassed int
	ChecksFailed int
}

// OK reports whether the iteration completed without error.
func (r IterationResult) OK() bool {
	return r.Err == nil && !r.Interrupted
}

// IterationExecutor runs a scenario once per call and records the outcome.
type IterationExecutor struct {
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewIterationExecutor creates an executor recording into c.
func NewIterationExecutor(c *metrics.Collector, logger *zap.Logger) *IterationExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IterationExecutor{metrics: c, logger: logger}
}

// RunOnce runs scenario exactly once. It measures wall time, converts a
// returned error or a panic into *IterationError, and records iterations,
// iteration_duration and iteration_errors. An iteration whose context was
// cancelled before it finished is counted in iterations_interrupted
// instead. RunOnce never panics and never returns an error.
func (x *IterationExecutor) RunOnce(ctx context.Context, scenario Scenario, st *State) IterationResult {
	res := IterationResult{
		VUID:      st.VUID,
		Iteration: st.Iteration,
		Start:     time.Now(),
	}

	err := x.call(ctx, scenario, st)
	res.Duration = time.Since(res.Start)

	for _, c := range st.checks {
		if c.Passed {
			res.ChecksPassed++
		} else {
			res.ChecksFailed++
		}
	}

	if err != nil && ctx.Err() != nil {
		res.Interrupted = true
		res.Err = err
		x.metrics.Record(metrics.IterationsInterrupted, metrics.KindCounter, 1)
		return res
	}

	x.metrics.Record(metrics.Iterations, metrics.KindCounter, 1)
	x.metrics.Record(metrics.IterationDuration, metrics.KindTrend, metrics.DurationMillis(res.Duration))

	if err != nil {
		res.Err = err
		x.metrics.Record(metrics.IterationErrors, metrics.KindCounter, 1)
		x.logger.Debug("iteration failed",
			zap.Int("vu", st.VUID),
			zap.Int64("iteration", st.Iteration),
			zap.Error(err))
	}
	return res
}

func (x *IterationExecutor) call(ctx context.Context, scenario Scenario, st *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &IterationError{
				VUID:      st.VUID,
				Iteration: st.Iteration,
				Err:       fmt.Errorf("panic: %v", r),
				Panic:     r,
			}
		}
	}()

	if scenario == nil {
		return &IterationError{VUID: st.VUID, Iteration: st.Iteration, Err: errors.New("no scenario")}
	}

	if runErr := scenario.Run(ctx, st); runErr != nil {
		var ie *IterationError
		if errors.As(runErr, &ie) {
			return runErr
		}
		return &IterationError{VUID: st.VUID, Iteration: st.Iteration, Err: runErr}
	}
	return nil
}
