package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/vu"
)

// RampingVUs ramps VU count up and down according to stages.
//
// Every tick it recomputes the target with TargetAt and scales the pool.
// When a stage ends it reconciles to that stage's exact target and records
// a StageResult, so the VU count at each boundary does not depend on tick
// alignment.
//
// Example stages:
//
//	stages:
//	  - duration: 1m
//	    target: 10     # Ramp from 0 to 10 VUs over 1m
//	  - duration: 3m
//	    target: 300    # Ramp to 300 VUs over 3m
//	  - duration: 1m
//	    target: 0      # Ramp down to 0 VUs over 1m
type RampingVUs struct {
	config    *Config
	stages    []Stage
	scheduler *vu.Scheduler
	metrics   *metrics.Collector
	logger    *zap.Logger

	startTime    time.Time
	targetVUs    atomic.Int32
	currentStage atomic.Int32
	running      atomic.Bool
	interrupted  atomic.Bool

	stopCh   chan struct{}
	stopOnce sync.Once

	// spawn failure tracking, touched only by the Run goroutine
	tick        int
	streakStart int
	backoff     int
	skipTicks   int
	streakWarn  bool

	mu       sync.RWMutex
	results  []StageResult
	warnings []string
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs(logger *zap.Logger) *RampingVUs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RampingVUs{
		logger: logger.Named("executor"),
		stopCh: make(chan struct{}),
	}
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Init validates config and copies its stage plan.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeRampingVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeRampingVUs, config.Type)
	}
	if err := config.Validate(); err != nil {
		return err
	}

	cfg := *config
	if cfg.TickInterval == 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.GracefulStop == 0 {
		cfg.GracefulStop = DefaultGracefulStop
	}
	if cfg.SpawnWarnAfter == 0 {
		cfg.SpawnWarnAfter = DefaultSpawnWarnAfter
	}
	cfg.Stages = append([]Stage(nil), config.Stages...)

	e.config = &cfg
	e.stages = cfg.Stages
	return nil
}

// Run drives the plan until every stage has elapsed, ctx is done, or Stop
// is called. It then stops all VUs, waiting up to GracefulStop for their
// last iterations.
func (e *RampingVUs) Run(ctx context.Context, scheduler *vu.Scheduler, metricsCollector *metrics.Collector) error {
	if e.config == nil {
		return fmt.Errorf("executor not initialized")
	}
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("executor already running")
	}
	defer e.running.Store(false)

	e.scheduler = scheduler
	e.metrics = metricsCollector

	// VUs check this between iterations.
	vuCtx, cancelVUs := context.WithCancel(ctx)
	defer cancelVUs()

	e.mu.Lock()
	e.startTime = time.Now()
	e.mu.Unlock()

	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	stageIdx := 0
	e.enterStage(stageIdx)

	if !e.stopRequested(ctx) {
		e.scale(vuCtx, e.config.StartVUs, false)
	}

	boundary := time.NewTimer(e.stages[0].Duration)
	defer boundary.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			e.interrupted.Store(true)
			break loop

		case <-e.stopCh:
			e.interrupted.Store(true)
			break loop

		case <-boundary.C:
			stageIdx = e.closeElapsedStages(vuCtx, stageIdx)
			if stageIdx >= len(e.stages) {
				break loop
			}
			e.enterStage(stageIdx)
			_, end := stageBounds(e.stages, stageIdx)
			boundary.Reset(end - time.Since(e.startTime))

		case <-ticker.C:
			e.tick++
			elapsed := time.Since(e.startTime)
			target, idx := TargetAt(e.config.StartVUs, e.stages, elapsed)
			if idx != stageIdx {
				// The boundary timer fires shortly; leave the exact
				// reconcile to it.
				continue
			}
			e.targetVUs.Store(int32(target))
			e.scale(vuCtx, target, false)
		}
	}

	if e.interrupted.Load() {
		e.recordInterrupted(stageIdx)
	}

	e.shutdown(cancelVUs)
	return nil
}

func (e *RampingVUs) stopRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-e.stopCh:
		return true
	default:
		return false
	}
}

func (e *RampingVUs) enterStage(i int) {
	e.currentStage.Store(int32(i))
	e.metrics.SetPhase(PhaseFor(e.config.StartVUs, e.stages, i))

	st := e.stages[i]
	e.logger.Info("stage started",
		zap.Int("stage", i),
		zap.String("name", st.Name),
		zap.Int("from", previousTarget(e.config.StartVUs, e.stages, i)),
		zap.Int("target", st.Target),
		zap.Duration("duration", st.Duration))
}

// closeElapsedStages reconciles and records every stage whose end has
// passed, starting at stageIdx, and returns the index of the current stage.
func (e *RampingVUs) closeElapsedStages(ctx context.Context, stageIdx int) int {
	elapsed := time.Since(e.startTime)
	for stageIdx < len(e.stages) {
		start, end := stageBounds(e.stages, stageIdx)
		if elapsed < end {
			break
		}
		st := e.stages[stageIdx]
		e.targetVUs.Store(int32(st.Target))
		active := e.scale(ctx, st.Target, true)
		e.appendResult(StageResult{
			Index:       stageIdx,
			Name:        st.Name,
			Target:      st.Target,
			ActiveAtEnd: active,
			Start:       e.startTime.Add(start),
			End:         time.Now(),
			Duration:    st.Duration,
			Status:      StageCompleted,
		})
		stageIdx++
	}
	return stageIdx
}

func (e *RampingVUs) recordInterrupted(stageIdx int) {
	now := time.Now()
	for i := stageIdx; i < len(e.stages); i++ {
		st := e.stages[i]
		res := StageResult{
			Index:    i,
			Name:     st.Name,
			Target:   st.Target,
			Duration: st.Duration,
			Status:   StageSkipped,
		}
		if i == stageIdx {
			start, _ := stageBounds(e.stages, i)
			res.Start = e.startTime.Add(start)
			res.End = now
			res.ActiveAtEnd = e.scheduler.ActiveCount()
			res.Status = StageInterrupted
		}
		e.appendResult(res)
	}
}

// scale moves the pool toward target and returns the active count. Spawn
// failures back off exponentially in ticks; scaling down and a boundary
// reconcile always proceed.
func (e *RampingVUs) scale(ctx context.Context, target int, boundary bool) int {
	if !boundary && e.skipTicks > 0 {
		if active := e.scheduler.ActiveCount(); target > active {
			e.skipTicks--
			e.checkStreak()
			return active
		}
	}

	active, err := e.scheduler.Scale(ctx, target)
	if err == nil {
		if e.backoff > 0 {
			e.logger.Info("spawning recovered", zap.Int("active", active), zap.Int("target", target))
		}
		e.backoff = 0
		e.skipTicks = 0
		e.streakWarn = false
		return active
	}

	if e.backoff == 0 {
		e.streakStart = e.tick
		e.logger.Warn("cannot spawn virtual user, retrying on a later tick",
			zap.Int("active", active),
			zap.Int("target", target),
			zap.Error(err))
		e.backoff = 1
	} else {
		e.backoff *= 2
		if e.backoff > maxBackoffTicks {
			e.backoff = maxBackoffTicks
		}
	}
	e.skipTicks = e.backoff - 1
	e.checkStreak()
	return active
}

func (e *RampingVUs) checkStreak() {
	if e.backoff == 0 || e.streakWarn {
		return
	}
	if e.tick-e.streakStart <= e.config.SpawnWarnAfter {
		return
	}
	e.streakWarn = true
	msg := fmt.Sprintf("virtual users could not be spawned for more than %d ticks; active VUs stayed below target",
		e.config.SpawnWarnAfter)
	e.logger.Warn("persistent spawn failure", zap.Int("ticks", e.tick-e.streakStart))

	e.mu.Lock()
	e.warnings = append(e.warnings, msg)
	e.mu.Unlock()
}

func (e *RampingVUs) appendResult(r StageResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, r)
}

// shutdown stops every VU and waits up to GracefulStop for them.
func (e *RampingVUs) shutdown(cancelVUs context.CancelFunc) {
	e.targetVUs.Store(0)
	e.metrics.SetPhase(metrics.PhaseStopping)
	cancelVUs()
	e.scheduler.StopAll()

	if stuck := e.scheduler.Shutdown(e.config.GracefulStop); stuck > 0 {
		e.logger.Warn("virtual users did not stop", zap.Int("vus", stuck))
	}

	e.metrics.SetActiveVUs(0)
	e.metrics.SetPhase(metrics.PhaseDone)
}

// Interrupted reports whether the run was cut short.
func (e *RampingVUs) Interrupted() bool {
	return e.interrupted.Load()
}

// Progress returns current progress (0.0 to 1.0).
func (e *RampingVUs) Progress() float64 {
	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()

	if start.IsZero() || e.config == nil {
		return 0.0
	}
	if !e.running.Load() {
		return 1.0
	}

	total := e.config.TotalDuration()
	if total == 0 {
		return 1.0
	}
	progress := float64(time.Since(start)) / float64(total)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// Stats returns executor statistics.
func (e *RampingVUs) Stats() *Stats {
	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()

	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = time.Since(start)
	}

	stats := &Stats{
		StartTime:    start,
		CurrentTime:  time.Now(),
		Elapsed:      elapsed,
		TargetVUs:    int(e.targetVUs.Load()),
		CurrentStage: int(e.currentStage.Load()),
	}
	if e.config != nil {
		stats.TotalDuration = e.config.TotalDuration()
		stats.TotalStages = len(e.stages)
		if stats.CurrentStage < len(e.stages) {
			stats.CurrentStageName = e.stages[stats.CurrentStage].Name
		}
	}
	if e.scheduler != nil {
		stats.ActiveVUs = e.scheduler.ActiveCount()
	}
	return stats
}

// StageResults returns the recorded stages in order.
func (e *RampingVUs) StageResults() []StageResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]StageResult, len(e.results))
	copy(out, e.results)
	return out
}

// Warnings returns run-level warnings.
func (e *RampingVUs) Warnings() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.warnings))
	copy(out, e.warnings)
	return out
}

// Stop interrupts the run. It is idempotent and may be called before Run.
func (e *RampingVUs) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

var _ Executor = (*RampingVUs)(nil)
