// Package engine runs a load test: it drives the executor, watches
// abort-on-fail thresholds while VUs run, and assembles the final
// RunResult once every VU has stopped.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/stampede/internal/executor"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/threshold"
	"github.com/wesleyorama2/stampede/internal/vu"
)

// DefaultThresholdInterval is how often abort-on-fail thresholds are
// checked while the run is live.
const DefaultThresholdInterval = time.Second

// DefaultProgressInterval is how often OnProgress is called.
const DefaultProgressInterval = time.Second

// ErrAlreadyRun is returned by Run on an engine that has already run.
var ErrAlreadyRun = errors.New("engine has already run")

// Options configures an Engine.
type Options struct {
	Name     string
	Executor *executor.Config
	Scenario vu.Scenario

	// Thresholds maps metric names to their declared thresholds.
	Thresholds map[string][]threshold.Spec

	// Metrics declares custom metrics the scenario records, so thresholds
	// can reference them.
	Metrics []metrics.Definition

	// HTTPMetrics declares the http_req_* family.
	HTTPMetrics bool

	SummaryHandlers []SummaryHandler
	Output          OutputWriter

	Logger           *zap.Logger
	CollectorOptions []metrics.Option
	SpawnHook        vu.SpawnHook
	HardStopWait     time.Duration

	ThresholdInterval time.Duration

	// OnProgress is called every ProgressInterval while the run is live
	// and once more after it ends.
	OnProgress       func(Progress)
	ProgressInterval time.Duration
}

// Progress is a live view of the run.
type Progress struct {
	Elapsed     time.Duration
	Total       time.Duration
	Percent     float64
	ActiveVUs   int
	TargetVUs   int
	Stage       int
	StageName   string
	TotalStages int
	Phase       metrics.Phase
	Iterations  int64
	Errors      int64
	Rate        float64
	Done        bool
}

// Engine runs one load test. It is single use.
type Engine struct {
	opts       Options
	logger     *zap.Logger
	collector  *metrics.Collector
	scheduler  *vu.Scheduler
	exec       executor.Executor
	thresholds []threshold.Threshold

	ran atomic.Bool

	abortMu sync.Mutex
	abort   *RunAbort

	warnMu   sync.Mutex
	warnings []string
}

// New validates opts and prepares the run. Every problem with the stage
// plan or the thresholds is returned as a ConfigurationError before any VU
// exists.
func New(opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ThresholdInterval <= 0 {
		opts.ThresholdInterval = DefaultThresholdInterval
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.Scenario == nil {
		return nil, &ConfigurationError{Err: errors.New("scenario is required")}
	}
	if opts.Executor == nil {
		return nil, &ConfigurationError{Err: errors.New("executor configuration is required")}
	}

	logger := opts.Logger.Named("engine")

	catalog := threshold.NewCatalog(metrics.CoreDefinitions()...)
	if opts.HTTPMetrics {
		catalog.Add(metrics.HTTPDefinitions()...)
	}
	catalog.Add(opts.Metrics...)

	ths, err := threshold.ParseAll(opts.Thresholds, catalog)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	exec, err := executor.New(context.Background(), opts.Executor, opts.Logger)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	collector := metrics.NewCollector(append([]metrics.Option{metrics.WithLogger(opts.Logger)}, opts.CollectorOptions...)...)
	for _, def := range catalog {
		collector.Declare(def)
	}

	scheduler := vu.NewScheduler(vu.SchedulerConfig{
		Scenario:     opts.Scenario,
		Metrics:      collector,
		Logger:       opts.Logger,
		MaxVUs:       opts.Executor.MaxVUs,
		Pacing:       opts.Executor.Pacing,
		SpawnHook:    opts.SpawnHook,
		HardStopWait: opts.HardStopWait,
	})

	return &Engine{
		opts:       opts,
		logger:     logger,
		collector:  collector,
		scheduler:  scheduler,
		exec:       exec,
		thresholds: ths,
	}, nil
}

// Collector returns the run's metric collector.
func (e *Engine) Collector() *metrics.Collector {
	return e.collector
}

// Thresholds returns the parsed thresholds.
func (e *Engine) Thresholds() []threshold.Threshold {
	return e.thresholds
}

// Run executes the test. It blocks until every VU has stopped and always
// returns a result. The error is non-nil only when a summary handler or
// writing its outputs failed; it never changes RunResult.Passed.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	if !e.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	start := time.Now()
	e.collector.Start()
	e.logger.Info("run started",
		zap.String("name", e.opts.Name),
		zap.Duration("duration", e.opts.Executor.TotalDuration()),
		zap.Int("peak_vus", e.opts.Executor.PeakVUs()),
		zap.Int("thresholds", len(e.thresholds)))

	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(done)
		return e.exec.Run(gctx, e.scheduler, e.collector)
	})
	if threshold.HasAbortable(e.thresholds) {
		g.Go(func() error {
			e.watchThresholds(done)
			return nil
		})
	}
	if e.opts.OnProgress != nil {
		g.Go(func() error {
			e.reportProgress(done)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Only reachable if the executor was never initialized.
		e.logger.Error("executor failed", zap.Error(err))
		e.addWarning(fmt.Sprintf("executor failed: %v", err))
	}

	if e.exec.Interrupted() {
		e.setAbort(&RunAbort{Reason: AbortInterrupt, Elapsed: time.Since(start)})
	}

	e.collector.Freeze()
	result := e.assemble(start)

	if e.opts.OnProgress != nil {
		e.opts.OnProgress(e.progress(true))
	}

	e.logger.Info("run finished",
		zap.String("id", result.ID),
		zap.Bool("passed", result.Passed),
		zap.Bool("interrupted", result.Interrupted),
		zap.Duration("duration", result.Duration))

	return result, e.handleSummary(result)
}

// Stop interrupts the run gracefully. It is idempotent and safe to call
// before or after Run.
func (e *Engine) Stop() {
	e.exec.Stop()
}

func (e *Engine) setAbort(a *RunAbort) {
	e.abortMu.Lock()
	defer e.abortMu.Unlock()
	if e.abort == nil {
		e.abort = a
	}
}

func (e *Engine) currentAbort() *RunAbort {
	e.abortMu.Lock()
	defer e.abortMu.Unlock()
	return e.abort
}

// watchThresholds checks abort-on-fail thresholds until done is closed,
// stopping the executor on the first breach.
func (e *Engine) watchThresholds(done <-chan struct{}) {
	ticker := time.NewTicker(e.opts.ThresholdInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			snap := e.collector.Snapshot()
			outcome, breached := threshold.Breached(snap, e.thresholds, snap.Elapsed)
			if !breached {
				continue
			}
			e.logger.Warn("threshold breached, aborting run",
				zap.String("metric", outcome.Metric),
				zap.String("threshold", outcome.Expression),
				zap.Float64("actual", outcome.Actual))
			e.setAbort(&RunAbort{Reason: AbortThreshold, Elapsed: snap.Elapsed, Threshold: &outcome})
			e.exec.Stop()
			return
		}
	}
}

func (e *Engine) reportProgress(done <-chan struct{}) {
	ticker := time.NewTicker(e.opts.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			e.opts.OnProgress(e.progress(false))
		}
	}
}

func (e *Engine) progress(final bool) Progress {
	stats := e.exec.Stats()
	p := Progress{
		Elapsed:     stats.Elapsed,
		Total:       stats.TotalDuration,
		Percent:     e.exec.Progress() * 100,
		ActiveVUs:   e.collector.ActiveVUs(),
		TargetVUs:   stats.TargetVUs,
		Stage:       stats.CurrentStage,
		StageName:   stats.CurrentStageName,
		TotalStages: stats.TotalStages,
		Phase:       e.collector.Phase(),
		Done:        final,
	}
	if b := e.collector.LatestBucket(); b != nil {
		p.Iterations = b.Iterations
		p.Errors = b.IterationErrors
		p.Rate = b.IntervalRate
	}
	return p
}

func (e *Engine) addWarning(msg string) {
	e.warnMu.Lock()
	defer e.warnMu.Unlock()
	e.warnings = append(e.warnings, msg)
}
