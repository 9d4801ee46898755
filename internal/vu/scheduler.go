package vu

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

// PacingType identifies the type of pacing.
type PacingType string

const (
	PacingNone     PacingType = "none"
	PacingConstant PacingType = "constant"
	PacingRandom   PacingType = "random"
)

// Pacing controls the delay between a VU's iterations.
type Pacing struct {
	// Type of pacing: "none", "constant", "random"
	Type PacingType `json:"type" yaml:"type"`

	// Duration for constant pacing
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min and Max bound random pacing
	Min time.Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max time.Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// Validate checks the pacing parameters.
func (p *Pacing) Validate() error {
	if p == nil {
		return nil
	}
	switch p.Type {
	case "", PacingNone:
	case PacingConstant:
		if p.Duration < 0 {
			return fmt.Errorf("constant pacing duration cannot be negative")
		}
	case PacingRandom:
		if p.Min < 0 || p.Max < p.Min {
			return fmt.Errorf("random pacing requires 0 <= min <= max")
		}
	default:
		return fmt.Errorf("unknown pacing type %q", p.Type)
	}
	return nil
}

// Delay returns the wait before the next iteration.
func (p *Pacing) Delay() time.Duration {
	if p == nil {
		return 0
	}
	switch p.Type {
	case PacingConstant:
		return p.Duration
	case PacingRandom:
		if diff := p.Max - p.Min; diff > 0 {
			return p.Min + time.Duration(rand.Int63n(int64(diff)))
		}
		return p.Min
	default:
		return 0
	}
}

// SpawnHook is consulted before each VU is created. A non-nil error makes
// the spawn fail; the caller retries later.
type SpawnHook func(id int) error

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Scenario Scenario
	Metrics  *metrics.Collector
	Logger   *zap.Logger

	// MaxVUs caps concurrently live VUs. Zero means unlimited.
	MaxVUs int

	Pacing    *Pacing
	SpawnHook SpawnHook

	// HardStopWait bounds how long Shutdown waits for iterations after their
	// context has been cancelled (default: 5s).
	HardStopWait time.Duration
}

// Scheduler manages the pool of virtual users.
//
// Each VU runs in its own goroutine, looping RunOnce back-to-back. Between
// iterations it checks the graceful context passed to Scale and its own stop
// signal. Iterations themselves run under a separate hard-stop context that
// is cancelled only by Shutdown once the grace period expires, so an
// in-flight request is never cut short by a graceful stop.
type Scheduler struct {
	cfg    SchedulerConfig
	exec   *IterationExecutor
	logger *zap.Logger

	// live VUs in spawn order
	vus   []*VirtualUser
	vusMu sync.Mutex

	nextID atomic.Int32
	closed atomic.Bool

	iterCtx    context.Context
	iterCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler. No VU runs until Scale or Spawn is
// called.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewCollector()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HardStopWait <= 0 {
		cfg.HardStopWait = 5 * time.Second
	}

	iterCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:        cfg,
		exec:       NewIterationExecutor(cfg.Metrics, cfg.Logger),
		logger:     cfg.Logger.Named("scheduler"),
		iterCtx:    iterCtx,
		iterCancel: cancel,
	}
}

// Spawn creates a VU and starts its loop. ctx is the graceful context:
// once it is done the VU starts no new iteration.
func (s *Scheduler) Spawn(ctx context.Context) (*VirtualUser, error) {
	if s.closed.Load() {
		return nil, ErrSchedulerClosed
	}

	id := int(s.nextID.Add(1))

	if s.cfg.MaxVUs > 0 && s.LiveCount() >= s.cfg.MaxVUs {
		return nil, &SpawnError{ID: id, Err: ErrResourceExhausted}
	}
	if s.cfg.SpawnHook != nil {
		if err := s.cfg.SpawnHook(id); err != nil {
			return nil, &SpawnError{ID: id, Err: err}
		}
	}

	v := NewVirtualUser(id)

	s.vusMu.Lock()
	s.vus = append(s.vus, v)
	s.vusMu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, v)
	return v, nil
}

func (s *Scheduler) run(ctx context.Context, v *VirtualUser) {
	defer s.wg.Done()
	defer s.remove(v)
	defer v.markStopped()

	if !v.start() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.stopCh:
			return
		default:
		}

		st := NewState(v, v.nextIteration(), s.cfg.Metrics, s.cfg.Logger)
		s.exec.RunOnce(s.iterCtx, s.cfg.Scenario, st)

		if d := s.cfg.Pacing.Delay(); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-v.stopCh:
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

func (s *Scheduler) remove(v *VirtualUser) {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()
	for i, other := range s.vus {
		if other == v {
			s.vus = append(s.vus[:i], s.vus[i+1:]...)
			return
		}
	}
}

// ActiveCount returns the number of VUs that are not stopping or stopped.
func (s *Scheduler) ActiveCount() int {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	n := 0
	for _, v := range s.vus {
		if !v.StopRequested() {
			n++
		}
	}
	return n
}

// LiveCount returns the number of VU goroutines that have not exited,
// including those finishing their last iteration.
func (s *Scheduler) LiveCount() int {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()
	return len(s.vus)
}

// Scale spawns or stops VUs until ActiveCount equals target. Excess VUs are
// stopped newest first. On a spawn failure it returns the count reached so
// far together with the error.
func (s *Scheduler) Scale(ctx context.Context, target int) (int, error) {
	if target < 0 {
		target = 0
	}

	current := s.ActiveCount()
	var spawnErr error

	for current < target {
		if _, err := s.Spawn(ctx); err != nil {
			spawnErr = err
			break
		}
		current++
	}

	if current > target {
		s.stopNewest(current - target)
	}

	active := s.ActiveCount()
	s.cfg.Metrics.SetActiveVUs(active)
	return active, spawnErr
}

func (s *Scheduler) stopNewest(n int) {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	for i := len(s.vus) - 1; i >= 0 && n > 0; i-- {
		v := s.vus[i]
		if v.StopRequested() {
			continue
		}
		v.RequestStop()
		n--
	}
}

// StopAll asks every VU to stop after its current iteration.
func (s *Scheduler) StopAll() {
	s.vusMu.Lock()
	vus := make([]*VirtualUser, len(s.vus))
	copy(vus, s.vus)
	s.vusMu.Unlock()

	for _, v := range vus {
		v.RequestStop()
	}
	s.cfg.Metrics.SetActiveVUs(0)
}

// Wait blocks until every VU goroutine has exited or timeout passes. It
// reports whether all exited.
func (s *Scheduler) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Shutdown stops every VU. It waits up to gracePeriod for in-flight
// iterations, then cancels the iteration context and waits up to
// HardStopWait more. It returns the number of VUs still running and
// refuses further spawns.
func (s *Scheduler) Shutdown(gracePeriod time.Duration) int {
	s.closed.Store(true)
	s.StopAll()

	if s.Wait(gracePeriod) {
		s.iterCancel()
		return 0
	}

	stuck := s.LiveCount()
	s.logger.Warn("graceful stop expired, interrupting iterations",
		zap.Duration("gracefulStop", gracePeriod),
		zap.Int("vus", stuck))
	s.iterCancel()

	if s.Wait(s.cfg.HardStopWait) {
		return 0
	}
	return s.LiveCount()
}

// Metrics returns the collector the scheduler records into.
func (s *Scheduler) Metrics() *metrics.Collector {
	return s.cfg.Metrics
}
