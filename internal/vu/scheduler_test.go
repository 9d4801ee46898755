package vu

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

func sleepScenario(d time.Duration) Scenario {
	return ScenarioFunc(func(ctx context.Context, st *State) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
			return nil
		}
	})
}

func TestScheduler_ScaleUpAndDown(t *testing.T) {
	c := metrics.NewCollector()
	s := NewScheduler(SchedulerConfig{Scenario: sleepScenario(time.Millisecond), Metrics: c})
	defer s.Shutdown(time.Second)

	ctx := context.Background()

	n, err := s.Scale(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, c.ActiveVUs())
	time.Sleep(20 * time.Millisecond)

	n, err = s.Scale(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, s.ActiveCount())

	n, err = s.Scale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.True(t, s.Wait(time.Second))
	assert.Equal(t, 0, s.LiveCount())
	assert.Greater(t, c.Snapshot().Get(metrics.Iterations).Sum, 0.0)
}

func TestScheduler_StopsNewestFirst(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Scenario: sleepScenario(time.Millisecond)})
	defer s.Shutdown(time.Second)

	ctx := context.Background()
	var spawned []*VirtualUser
	for i := 0; i < 3; i++ {
		v, err := s.Spawn(ctx)
		require.NoError(t, err)
		spawned = append(spawned, v)
	}

	_, err := s.Scale(ctx, 1)
	require.NoError(t, err)

	assert.False(t, spawned[0].StopRequested())
	assert.True(t, spawned[1].StopRequested())
	assert.True(t, spawned[2].StopRequested())
}

func TestScheduler_MaxVUs(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Scenario: sleepScenario(10 * time.Millisecond), MaxVUs: 3})
	defer s.Shutdown(time.Second)

	n, err := s.Scale(context.Background(), 5)
	require.Error(t, err)
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, ErrResourceExhausted)

	var se *SpawnError
	assert.ErrorAs(t, err, &se)
}

func TestScheduler_SpawnHook(t *testing.T) {
	hookErr := errors.New("no file descriptors")
	var calls atomic.Int32

	s := NewScheduler(SchedulerConfig{
		Scenario: sleepScenario(time.Millisecond),
		SpawnHook: func(id int) error {
			if calls.Add(1) > 2 {
				return hookErr
			}
			return nil
		},
	})
	defer s.Shutdown(time.Second)

	n, err := s.Scale(context.Background(), 4)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, hookErr)
}

func TestScheduler_GracefulContextStopsBetweenIterations(t *testing.T) {
	var started, finished atomic.Int32
	scenario := ScenarioFunc(func(ctx context.Context, st *State) error {
		started.Add(1)
		time.Sleep(30 * time.Millisecond)
		finished.Add(1)
		return nil
	})

	s := NewScheduler(SchedulerConfig{Scenario: scenario})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := s.Scale(ctx, 3)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	cancel()

	require.True(t, s.Wait(time.Second))
	assert.Equal(t, started.Load(), finished.Load(), "in-flight iterations must complete")
	assert.Equal(t, 0, s.Shutdown(time.Second))
}

func TestScheduler_ShutdownInterruptsStuckIterations(t *testing.T) {
	c := metrics.NewCollector()
	s := NewScheduler(SchedulerConfig{
		Scenario: ScenarioFunc(func(ctx context.Context, st *State) error {
			<-ctx.Done()
			return ctx.Err()
		}),
		Metrics:      c,
		HardStopWait: time.Second,
	})

	_, err := s.Scale(context.Background(), 2)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	remaining := s.Shutdown(20 * time.Millisecond)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, 2.0, c.Snapshot().Get(metrics.IterationsInterrupted).Sum)

	_, err = s.Spawn(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerClosed)
}

func TestScheduler_ConstantPacing(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time

	s := NewScheduler(SchedulerConfig{
		Scenario: ScenarioFunc(func(ctx context.Context, st *State) error {
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
			return nil
		}),
		Pacing: &Pacing{Type: PacingConstant, Duration: 20 * time.Millisecond},
	})

	_, err := s.Scale(context.Background(), 1)
	require.NoError(t, err)
	time.Sleep(70 * time.Millisecond)
	s.Shutdown(time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(stamps), 2)
	assert.LessOrEqual(t, len(stamps), 5)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), 20*time.Millisecond)
	}
}

func TestPacing(t *testing.T) {
	var nilPacing *Pacing
	assert.Zero(t, nilPacing.Delay())
	assert.NoError(t, nilPacing.Validate())

	constant := &Pacing{Type: PacingConstant, Duration: time.Second}
	assert.Equal(t, time.Second, constant.Delay())

	random := &Pacing{Type: PacingRandom, Min: 10 * time.Millisecond, Max: 20 * time.Millisecond}
	for i := 0; i < 100; i++ {
		d := random.Delay()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 20*time.Millisecond)
	}

	assert.Error(t, (&Pacing{Type: PacingRandom, Min: 2, Max: 1}).Validate())
	assert.Error(t, (&Pacing{Type: "bursty"}).Validate())
	assert.NoError(t, (&Pacing{Type: PacingNone}).Validate())
}
