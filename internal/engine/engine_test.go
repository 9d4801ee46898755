package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stampede/internal/engine"
	"github.com/wesleyorama2/stampede/internal/executor"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/threshold"
	"github.com/wesleyorama2/stampede/internal/vu"
)

func shortPlan() *executor.Config {
	return &executor.Config{
		Type: executor.TypeRampingVUs,
		Stages: []executor.Stage{
			{Duration: 60 * time.Millisecond, Target: 3},
			{Duration: 60 * time.Millisecond, Target: 3},
			{Duration: 60 * time.Millisecond, Target: 0},
		},
		TickInterval: 10 * time.Millisecond,
		GracefulStop: time.Second,
	}
}

func longPlan() *executor.Config {
	return &executor.Config{
		Type: executor.TypeRampingVUs,
		Stages: []executor.Stage{
			{Duration: 50 * time.Millisecond, Target: 4},
			{Duration: 10 * time.Second, Target: 4},
			{Duration: 10 * time.Second, Target: 0},
		},
		TickInterval: 10 * time.Millisecond,
		GracefulStop: time.Second,
	}
}

func okScenario() vu.Scenario {
	return vu.ScenarioFunc(func(ctx context.Context, st *vu.State) error {
		time.Sleep(time.Millisecond)
		st.Check("always ok", true)
		return nil
	})
}

func TestEngine_CompletesPlan(t *testing.T) {
	e, err := engine.New(engine.Options{
		Name:     "complete",
		Executor: shortPlan(),
		Scenario: okScenario(),
		Thresholds: map[string][]threshold.Spec{
			"iteration_duration": {{Expression: "p(95)<1000"}},
			"checks":             {{Expression: "rate==1"}},
		},
	})
	require.NoError(t, err)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "complete", result.Name)
	assert.True(t, result.Passed)
	assert.False(t, result.Interrupted)
	assert.Nil(t, result.Abort)
	assert.False(t, result.NoSuccessfulIterations)
	require.Len(t, result.Thresholds, 2)

	require.Len(t, result.Stages, 3)
	for _, st := range result.Stages {
		assert.Equal(t, executor.StageCompleted, st.Status)
	}
	assert.Equal(t, 0, result.Metrics.ActiveVUs)
	assert.Equal(t, 3, result.Metrics.MaxVUs)

	total, failed := result.Iterations()
	assert.Greater(t, total, int64(0))
	assert.Zero(t, failed)
	assert.NotEmpty(t, result.TimeSeries)
	assert.True(t, e.Collector().Frozen())
}

func TestEngine_AlwaysFailingScenario(t *testing.T) {
	failing := vu.ScenarioFunc(func(ctx context.Context, st *vu.State) error {
		time.Sleep(time.Millisecond)
		return errors.New("connection refused")
	})

	t.Run("no threshold references the failure", func(t *testing.T) {
		e, err := engine.New(engine.Options{Executor: shortPlan(), Scenario: failing})
		require.NoError(t, err)

		result, err := e.Run(context.Background())
		require.NoError(t, err)

		assert.True(t, result.Passed)
		assert.True(t, result.NoSuccessfulIterations)
		assert.NotEmpty(t, result.Warnings)

		total, failed := result.Iterations()
		assert.Greater(t, failed, int64(0))
		assert.Equal(t, total, failed)
	})

	t.Run("threshold on iteration errors", func(t *testing.T) {
		e, err := engine.New(engine.Options{
			Executor: shortPlan(),
			Scenario: failing,
			Thresholds: map[string][]threshold.Spec{
				"iteration_errors": {{Expression: "count<1"}},
			},
		})
		require.NoError(t, err)

		result, err := e.Run(context.Background())
		require.NoError(t, err)
		assert.False(t, result.Passed)
		require.Len(t, result.FailedThresholds(), 1)
		assert.Equal(t, "iteration_errors", result.FailedThresholds()[0].Metric)
	})
}

func TestEngine_PanickingScenario(t *testing.T) {
	e, err := engine.New(engine.Options{
		Executor: shortPlan(),
		Scenario: vu.ScenarioFunc(func(ctx context.Context, st *vu.State) error {
			time.Sleep(time.Millisecond)
			panic("boom")
		}),
	})
	require.NoError(t, err)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.NoSuccessfulIterations)
	require.Len(t, result.Stages, 3)
}

func TestEngine_Stop(t *testing.T) {
	e, err := engine.New(engine.Options{Executor: longPlan(), Scenario: okScenario()})
	require.NoError(t, err)

	go func() {
		time.Sleep(150 * time.Millisecond)
		e.Stop()
	}()

	start := time.Now()
	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	assert.True(t, result.Interrupted)
	require.NotNil(t, result.Abort)
	assert.Equal(t, engine.AbortInterrupt, result.Abort.Reason)
	assert.True(t, result.Passed, "an interrupt alone does not fail the run")

	require.Len(t, result.Stages, 3)
	assert.Equal(t, executor.StageCompleted, result.Stages[0].Status)
	assert.Equal(t, executor.StageInterrupted, result.Stages[1].Status)
	assert.Equal(t, executor.StageSkipped, result.Stages[2].Status)
	assert.Equal(t, 0, result.Metrics.ActiveVUs)

	// Stop after the run is a no-op.
	e.Stop()
}

func TestEngine_StopAfterPlanCompleted(t *testing.T) {
	var eng atomic.Pointer[engine.Engine]
	e, err := engine.New(engine.Options{
		Executor: &executor.Config{
			Type:         executor.TypeRampingVUs,
			Stages:       []executor.Stage{{Duration: 60 * time.Millisecond, Target: 1}},
			TickInterval: 10 * time.Millisecond,
			GracefulStop: 50 * time.Millisecond,
		},
		// The VU holds its iteration until the hard stop after the last
		// stage cancels it, then stops the engine while the executor drains.
		Scenario: vu.ScenarioFunc(func(ctx context.Context, st *vu.State) error {
			<-ctx.Done()
			eng.Load().Stop()
			return nil
		}),
	})
	require.NoError(t, err)
	eng.Store(e)

	result, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Interrupted)
	assert.Nil(t, result.Abort)
	require.Len(t, result.Stages, 1)
	assert.Equal(t, executor.StageCompleted, result.Stages[0].Status)
}

func TestEngine_ContextCancel(t *testing.T) {
	e, err := engine.New(engine.Options{Executor: longPlan(), Scenario: okScenario()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	result, err := e.Run(ctx)
	require.NoError(t, err)
	assert.True(t, result.Interrupted)
	require.NotNil(t, result.Abort)
	assert.Equal(t, engine.AbortInterrupt, result.Abort.Reason)
}

func TestEngine_AbortOnFail(t *testing.T) {
	e, err := engine.New(engine.Options{
		Executor: longPlan(),
		Scenario: vu.ScenarioFunc(func(ctx context.Context, st *vu.State) error {
			time.Sleep(time.Millisecond)
			st.Metrics.Rate("success_rate").Add(false)
			return nil
		}),
		Metrics: []metrics.Definition{{Name: "success_rate", Kind: metrics.KindRate}},
		Thresholds: map[string][]threshold.Spec{
			"success_rate": {{Expression: "rate>0.88", AbortOnFail: true}},
		},
		ThresholdInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	assert.False(t, result.Passed)
	assert.True(t, result.Interrupted)
	require.NotNil(t, result.Abort)
	assert.Equal(t, engine.AbortThreshold, result.Abort.Reason)
	require.NotNil(t, result.Abort.Threshold)
	assert.Equal(t, "success_rate", result.Abort.Threshold.Metric)
	assert.Contains(t, result.Abort.Error(), "rate>0.88")
	assert.Equal(t, 0, result.Metrics.ActiveVUs)
}

func TestEngine_DelayAbortEval(t *testing.T) {
	cfg := shortPlan()
	e, err := engine.New(engine.Options{
		Executor: cfg,
		Scenario: vu.ScenarioFunc(func(ctx context.Context, st *vu.State) error {
			time.Sleep(time.Millisecond)
			st.Metrics.Rate("success_rate").Add(false)
			return nil
		}),
		Metrics: []metrics.Definition{{Name: "success_rate", Kind: metrics.KindRate}},
		Thresholds: map[string][]threshold.Spec{
			"success_rate": {{Expression: "rate>0.88", AbortOnFail: true, DelayAbortEval: time.Minute}},
		},
		ThresholdInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result.Abort)
	assert.False(t, result.Passed, "final evaluation still fails")
}

func TestEngine_NoDataThreshold(t *testing.T) {
	e, err := engine.New(engine.Options{
		Executor: shortPlan(),
		Scenario: okScenario(),
		Metrics: []metrics.Definition{
			{Name: "never_recorded", Kind: metrics.KindTrend, ValueType: metrics.Time},
			{Name: "optional", Kind: metrics.KindRate},
		},
		Thresholds: map[string][]threshold.Spec{
			"never_recorded": {{Expression: "p(95)<5700"}},
			"optional":       {{Expression: "rate>0.5", OnlyIfPresent: true}},
		},
	})
	require.NoError(t, err)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Passed)

	failed := result.FailedThresholds()
	require.Len(t, failed, 1)
	assert.Equal(t, "never_recorded", failed[0].Metric)
	assert.True(t, failed[0].NoData)
}

func TestEngine_SummaryHandlers(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	written := map[string][]byte{}

	e, err := engine.New(engine.Options{
		Executor: shortPlan(),
		Scenario: okScenario(),
		SummaryHandlers: []engine.SummaryHandler{
			func(r *engine.RunResult) (map[string][]byte, error) {
				calls.Add(1)
				return map[string][]byte{"stdout": []byte(r.ID)}, nil
			},
			func(r *engine.RunResult) (map[string][]byte, error) {
				return nil, errors.New("renderer exploded")
			},
		},
		Output: func(outputs map[string][]byte) error {
			mu.Lock()
			defer mu.Unlock()
			for k, v := range outputs {
				written[k] = v
			}
			return nil
		},
	})
	require.NoError(t, err)

	result, err := e.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "renderer exploded")
	require.NotNil(t, result)
	assert.True(t, result.Passed, "a summary failure does not change the verdict")

	assert.Equal(t, int32(1), calls.Load())
	mu.Lock()
	assert.Equal(t, result.ID, string(written["stdout"]))
	mu.Unlock()
}

func TestEngine_Progress(t *testing.T) {
	var mu sync.Mutex
	var updates []engine.Progress

	e, err := engine.New(engine.Options{
		Executor:         shortPlan(),
		Scenario:         okScenario(),
		ProgressInterval: 20 * time.Millisecond,
		OnProgress: func(p engine.Progress) {
			mu.Lock()
			updates = append(updates, p)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.True(t, last.Done)
	assert.Equal(t, metrics.PhaseDone, last.Phase)
	assert.Equal(t, 3, last.TotalStages)
}

func TestEngine_RunTwice(t *testing.T) {
	e, err := engine.New(engine.Options{Executor: shortPlan(), Scenario: okScenario()})
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	assert.ErrorIs(t, err, engine.ErrAlreadyRun)
}

func TestNew_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		opts engine.Options
	}{
		{"no scenario", engine.Options{Executor: shortPlan()}},
		{"no executor", engine.Options{Scenario: okScenario()}},
		{
			"bad stage",
			engine.Options{
				Scenario: okScenario(),
				Executor: &executor.Config{
					Type:   executor.TypeRampingVUs,
					Stages: []executor.Stage{{Duration: 0, Target: 5}},
				},
			},
		},
		{
			"malformed threshold",
			engine.Options{
				Scenario:   okScenario(),
				Executor:   shortPlan(),
				Thresholds: map[string][]threshold.Spec{"iteration_duration": {{Expression: "p(95)<<5"}}},
			},
		},
		{
			"unknown metric",
			engine.Options{
				Scenario:   okScenario(),
				Executor:   shortPlan(),
				Thresholds: map[string][]threshold.Spec{"get_crypto_price_duration": {{Expression: "p(95)<5700"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.New(tt.opts)
			require.Error(t, err)
			var cfgErr *engine.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "got %T", err)
		})
	}
}

func TestNew_ThresholdParseErrorUnwraps(t *testing.T) {
	_, err := engine.New(engine.Options{
		Scenario:   okScenario(),
		Executor:   shortPlan(),
		Thresholds: map[string][]threshold.Spec{"checks": {{Expression: "p(95)<100"}}},
	})
	var pe *threshold.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "checks", pe.Metric)
}
