package metrics

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const shardCount = 16

// Config contains configuration for a Collector.
type Config struct {
	// BucketInterval is the interval of the time series (default: 1s).
	BucketInterval time.Duration

	// MaxBuckets bounds the time series ring buffer (default: 3600).
	MaxBuckets int

	// HistogramMin and HistogramMax bound time trend values after scaling.
	HistogramMin int64
	HistogramMax int64

	// ValueHistogramMax bounds trends of plain numbers, which are stored
	// unscaled (default: 1e12).
	ValueHistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3).
	HistogramSigFigs int

	// Scale converts a time trend value to histogram units (default: 1000,
	// so milliseconds are stored at microsecond resolution).
	Scale float64

	Logger *zap.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BucketInterval:    time.Second,
		MaxBuckets:        3600,
		HistogramMin:      1,
		HistogramMax:      3600000000, // one hour in microseconds
		ValueHistogramMax: 1000000000000,
		HistogramSigFigs:  3,
		Scale:             1000,
	}
}

// Option adjusts a Config.
type Option func(*Config)

// WithLogger sets the logger used for coercion and drop warnings.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithBucketInterval sets the time series interval.
func WithBucketInterval(d time.Duration) Option {
	return func(c *Config) { c.BucketInterval = d }
}

// WithMaxBuckets sets the time series ring size.
func WithMaxBuckets(n int) Option {
	return func(c *Config) { c.MaxBuckets = n }
}

// WithHistogram sets the time trend histogram range and precision.
func WithHistogram(min, max int64, sigFigs int) Option {
	return func(c *Config) {
		c.HistogramMin = min
		c.HistogramMax = max
		c.HistogramSigFigs = sigFigs
	}
}

type shard struct {
	mu     sync.RWMutex
	series map[string]*series
}

// Collector aggregates samples into named series.
//
// # Thread Safety
//
// Record may be called from any number of goroutines. The series map is
// split into shards keyed by an FNV-1a hash of the name, each guarded by an
// RWMutex, and every series has its own mutex, so a Snapshot never holds a
// writer up for longer than one series' critical section.
type Collector struct {
	shards    [shardCount]shard
	timeHist  histogramConfig
	valueHist histogramConfig
	config    Config
	logger *zap.Logger

	// freezeMu is read-held by every Record so Freeze can wait for in-flight
	// records before sealing the collector.
	freezeMu sync.RWMutex
	frozen   bool
	frozenAt time.Time
	dropped  atomic.Int64
	warned   sync.Map

	activeVUs atomic.Int32
	maxVUs    atomic.Int32

	phaseMu      sync.RWMutex
	currentPhase Phase
	phaseHistory []PhaseChange

	startMu   sync.RWMutex
	startTime time.Time

	bucketStore *TimeBucketStore

	startOnce     sync.Once
	freezeOnce    sync.Once
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
}

// NewCollector creates a collector. The background emitter does not run
// until Start is called.
func NewCollector(opts ...Option) *Collector {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BucketInterval <= 0 {
		cfg.BucketInterval = time.Second
	}
	if cfg.HistogramMin < 1 {
		cfg.HistogramMin = 1
	}
	if cfg.HistogramSigFigs < 1 || cfg.HistogramSigFigs > 5 {
		cfg.HistogramSigFigs = 3
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 1000
	}
	if cfg.HistogramMax <= cfg.HistogramMin {
		cfg.HistogramMax = DefaultConfig().HistogramMax
	}
	if cfg.ValueHistogramMax <= cfg.HistogramMin {
		cfg.ValueHistogramMax = DefaultConfig().ValueHistogramMax
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{
		config: cfg,
		timeHist: histogramConfig{
			min:     cfg.HistogramMin,
			max:     cfg.HistogramMax,
			sigFigs: cfg.HistogramSigFigs,
			scale:   cfg.Scale,
		},
		valueHist: histogramConfig{
			min:     cfg.HistogramMin,
			max:     cfg.ValueHistogramMax,
			sigFigs: cfg.HistogramSigFigs,
			scale:   1,
		},
		logger:       logger.Named("metrics"),
		currentPhase: PhaseInit,
		startTime:    time.Now(),
		bucketStore:  NewTimeBucketStore(cfg.MaxBuckets),
	}
	for i := range c.shards {
		c.shards[i].series = make(map[string]*series)
	}
	return c
}

// Start marks the run start and launches the background emitter.
// Subsequent calls do nothing.
func (c *Collector) Start() {
	c.startOnce.Do(func() {
		now := time.Now()
		c.startMu.Lock()
		c.startTime = now
		c.startMu.Unlock()
		c.bucketStore.restart(now)

		ctx, cancel := context.WithCancel(context.Background())
		c.emitterCancel = cancel
		c.emitterWg.Add(1)
		go c.runEmitter(ctx)
	})
}

func (c *Collector) histogramFor(vt ValueType) histogramConfig {
	if vt == Time {
		return c.timeHist
	}
	return c.valueHist
}

func (c *Collector) shardFor(name string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return &c.shards[h.Sum32()%shardCount]
}

// lookup returns the series for name, creating it with kind if absent.
func (c *Collector) lookup(name string, kind Kind, valueType ValueType) *series {
	sh := c.shardFor(name)

	sh.mu.RLock()
	s, ok := sh.series[name]
	sh.mu.RUnlock()
	if ok {
		return s
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok = sh.series[name]; ok {
		return s
	}
	s = newSeries(name, kind, valueType, c.histogramFor(valueType))
	sh.series[name] = s
	return s
}

func (c *Collector) find(name string) *series {
	sh := c.shardFor(name)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.series[name]
}

// Declare registers a series with zero samples. Declaring an existing name
// keeps its kind; a conflicting kind is logged.
func (c *Collector) Declare(def Definition) {
	s := c.lookup(def.Name, def.Kind, def.ValueType)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind != def.Kind {
		c.warnOnce("kind:"+def.Name, "metric redeclared with a different type",
			zap.String("metric", def.Name),
			zap.Stringer("existing", s.kind),
			zap.Stringer("declared", def.Kind))
		return
	}
	if s.count == 0 && s.valueType != def.ValueType {
		s.valueType = def.ValueType
		if s.kind == KindTrend {
			s.dist = newDistribution(c.histogramFor(def.ValueType))
		}
	}
}

// Record adds one value to the named series. It never fails: unknown names
// create a series of the given kind, a kind mismatch is folded into the
// existing series' kind, and non-finite values are dropped.
func (c *Collector) Record(name string, kind Kind, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		c.warnOnce("nonfinite:"+name, "dropping non-finite sample",
			zap.String("metric", name), zap.Float64("value", value))
		return
	}

	c.freezeMu.RLock()
	defer c.freezeMu.RUnlock()
	if c.frozen {
		c.dropped.Add(1)
		return
	}

	s := c.lookup(name, kind, Default)
	s.mu.Lock()
	if s.kind != kind {
		c.warnOnce("kind:"+name, "sample type does not match metric, coercing",
			zap.String("metric", name),
			zap.Stringer("existing", s.kind),
			zap.Stringer("sample", kind))
	}
	if s.add(value) {
		hc := s.dist.hc
		c.warnOnce("range:"+name, "trend value outside histogram range, percentiles are capped",
			zap.String("metric", name),
			zap.Float64("value", value),
			zap.Float64("limit", float64(hc.max)/hc.scale))
	}
	s.mu.Unlock()

	switch name {
	case Iterations:
		c.bucketStore.RecordIteration()
	case IterationErrors:
		c.bucketStore.RecordError()
	}
}

// RecordSample records s. Its Time is not used for aggregation.
func (c *Collector) RecordSample(s Sample) {
	c.Record(s.Name, s.Kind, s.Value)
}

func (c *Collector) warnOnce(key, msg string, fields ...zap.Field) {
	if _, loaded := c.warned.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	c.logger.Warn(msg, fields...)
}

// Dropped returns how many records arrived after Freeze.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// SetActiveVUs updates the active VU count and the vus/vus_max gauges.
func (c *Collector) SetActiveVUs(count int) {
	c.activeVUs.Store(int32(count))
	for {
		current := c.maxVUs.Load()
		if int32(count) <= current || c.maxVUs.CompareAndSwap(current, int32(count)) {
			break
		}
	}
	c.Record(VUs, KindGauge, float64(count))
	c.Record(VUsMax, KindGauge, float64(c.maxVUs.Load()))
}

// ActiveVUs returns the last reported active VU count.
func (c *Collector) ActiveVUs() int {
	return int(c.activeVUs.Load())
}

// SetPhase updates the current phase, appending to the history on change.
func (c *Collector) SetPhase(phase Phase) {
	c.phaseMu.Lock()
	defer c.phaseMu.Unlock()

	if c.currentPhase == phase {
		return
	}

	c.currentPhase = phase
	c.phaseHistory = append(c.phaseHistory, PhaseChange{
		Phase:      phase,
		Timestamp:  time.Now(),
		Iterations: int64(c.counterValue(Iterations)),
	})
}

// Phase returns the current phase.
func (c *Collector) Phase() Phase {
	c.phaseMu.RLock()
	defer c.phaseMu.RUnlock()
	return c.currentPhase
}

// PhaseHistory returns a copy of the phase transitions.
func (c *Collector) PhaseHistory() []PhaseChange {
	c.phaseMu.RLock()
	defer c.phaseMu.RUnlock()

	result := make([]PhaseChange, len(c.phaseHistory))
	copy(result, c.phaseHistory)
	return result
}

// TimeSeries returns the retained time buckets.
func (c *Collector) TimeSeries() []*TimeBucket {
	return c.bucketStore.GetBuckets()
}

// LatestBucket returns the most recent time bucket, or nil.
func (c *Collector) LatestBucket() *TimeBucket {
	return c.bucketStore.GetLatestBucket()
}

func (c *Collector) counterValue(name string) float64 {
	s := c.find(name)
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum
}

func (c *Collector) trendPercentile(name string, p float64) float64 {
	s := c.find(name)
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.percentile(p)
}

func (c *Collector) runEmitter(ctx context.Context) {
	defer c.emitterWg.Done()

	ticker := time.NewTicker(c.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.emitBucket()
		}
	}
}

func (c *Collector) emitBucket() {
	c.bucketStore.CreateBucket(
		int64(c.counterValue(Iterations)),
		int64(c.counterValue(IterationErrors)),
		c.trendPercentile(IterationDuration, 95),
		c.ActiveVUs(),
		c.Phase(),
	)
}

// Freeze stops the emitter, emits a final bucket and rejects further
// records. It is idempotent.
func (c *Collector) Freeze() {
	c.freezeOnce.Do(func() {
		if c.emitterCancel != nil {
			c.emitterCancel()
			c.emitterWg.Wait()
		}

		c.freezeMu.Lock()
		c.frozen = true
		c.frozenAt = time.Now()
		c.freezeMu.Unlock()

		c.emitBucket()
	})
}

// Frozen reports whether Freeze has been called.
func (c *Collector) Frozen() bool {
	c.freezeMu.RLock()
	defer c.freezeMu.RUnlock()
	return c.frozen
}

func (c *Collector) elapsed(now time.Time) (time.Time, time.Duration) {
	c.startMu.RLock()
	start := c.startTime
	c.startMu.RUnlock()

	c.freezeMu.RLock()
	if c.frozen {
		now = c.frozenAt
	}
	c.freezeMu.RUnlock()

	return start, now.Sub(start)
}

// Snapshot returns a deep copy of every series. Each series is copied under
// its own lock; series are not mutually consistent while a run is live.
func (c *Collector) Snapshot() *Snapshot {
	now := time.Now()
	start, elapsed := c.elapsed(now)
	secs := elapsed.Seconds()

	out := make(map[string]*SeriesSnapshot)
	for i := range c.shards {
		sh := &c.shards[i]

		sh.mu.RLock()
		list := make([]*series, 0, len(sh.series))
		for _, s := range sh.series {
			list = append(list, s)
		}
		sh.mu.RUnlock()

		for _, s := range list {
			out[s.name] = s.snapshot(secs)
		}
	}

	steady, _ := c.bucketStore.SteadyStateRate()

	return &Snapshot{
		Series:          out,
		StartTime:       start,
		Timestamp:       now,
		Elapsed:         elapsed,
		ActiveVUs:       c.ActiveVUs(),
		MaxVUs:          int(c.maxVUs.Load()),
		Phase:           c.Phase(),
		SteadyStateRate: steady,
	}
}
