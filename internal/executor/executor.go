// Package executor drives the virtual user count over time.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/vu"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantVUs runs a fixed number of VUs for a duration.
	TypeConstantVUs Type = "constant-vus"

	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"
)

const (
	// DefaultTickInterval is how often the VU target is recomputed.
	DefaultTickInterval = 100 * time.Millisecond

	// MaxTickInterval bounds TickInterval.
	MaxTickInterval = time.Second

	// DefaultGracefulStop is how long in-flight iterations may run after a
	// stop before their context is cancelled.
	DefaultGracefulStop = 30 * time.Second

	// DefaultSpawnWarnAfter is the number of ticks a spawn failure streak
	// may last before it becomes a run warning.
	DefaultSpawnWarnAfter = 10

	maxBackoffTicks = 32
)

// Executor defines the interface for load generation strategies.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init validates and stores the configuration. Called once before Run.
	Init(ctx context.Context, config *Config) error

	// Run blocks until every stage has elapsed or the run is interrupted,
	// then stops all VUs.
	Run(ctx context.Context, scheduler *vu.Scheduler, metrics *metrics.Collector) error

	// Progress returns current progress (0.0 to 1.0).
	Progress() float64

	// Stats returns executor statistics.
	Stats() *Stats

	// StageResults returns what happened in each stage.
	StageResults() []StageResult

	// Warnings returns run-level warnings raised while running.
	Warnings() []string

	// Stop interrupts the run: the target drops to zero and no VU starts a
	// new iteration.
	Stop()

	// Interrupted reports whether the plan was cut short. A Stop that
	// arrives after the last stage completed does not count.
	Interrupted() bool
}

// Config contains configuration for an executor.
type Config struct {
	Name string `json:"name" yaml:"name"`
	Type Type   `json:"type" yaml:"type"`

	// constant-vus
	VUs      int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// ramping-vus
	StartVUs int     `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`
	Stages   []Stage `json:"stages,omitempty" yaml:"stages,omitempty"`

	// MaxVUs caps live VUs. Zero means unlimited.
	MaxVUs int `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	GracefulStop   time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
	TickInterval   time.Duration `json:"tickInterval,omitempty" yaml:"tickInterval,omitempty"`
	SpawnWarnAfter int           `json:"spawnWarnAfter,omitempty" yaml:"spawnWarnAfter,omitempty"`

	Pacing *vu.Pacing `json:"pacing,omitempty" yaml:"pacing,omitempty"`
}

// Stage is one segment of the plan: reach Target over Duration.
type Stage struct {
	Duration time.Duration `json:"duration" yaml:"duration"`
	Target   int           `json:"target" yaml:"target"`
	Name     string        `json:"name,omitempty" yaml:"name,omitempty"`
}

// Stats contains real-time executor statistics.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`

	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	TotalStages      int    `json:"totalStages"`
}

// StageStatus is how a stage ended.
type StageStatus string

const (
	StageCompleted   StageStatus = "completed"
	StageInterrupted StageStatus = "interrupted"
	StageSkipped     StageStatus = "skipped"
)

// StageResult records the VU count at the end of a stage.
type StageResult struct {
	Index       int           `json:"index"`
	Name        string        `json:"name,omitempty"`
	Target      int           `json:"target"`
	ActiveAtEnd int           `json:"activeAtEnd"`
	Start       time.Time     `json:"start,omitempty"`
	End         time.Time     `json:"end,omitempty"`
	Duration    time.Duration `json:"duration"`
	Status      StageStatus   `json:"status"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}

	switch c.Type {
	case TypeConstantVUs:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}

	case TypeRampingVUs:
		if len(c.Stages) == 0 {
			return &ValidationError{Field: "stages", Message: "at least one stage is required"}
		}
		if c.StartVUs < 0 {
			return &ValidationError{Field: "startVUs", Message: "startVUs cannot be negative"}
		}
		for i, st := range c.Stages {
			if st.Duration <= 0 {
				return &ValidationError{Field: fmt.Sprintf("stages[%d].duration", i), Message: "duration must be > 0"}
			}
			if st.Target < 0 {
				return &ValidationError{Field: fmt.Sprintf("stages[%d].target", i), Message: "target cannot be negative"}
			}
		}

	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	if c.MaxVUs < 0 {
		return &ValidationError{Field: "maxVUs", Message: "maxVUs cannot be negative"}
	}
	if c.GracefulStop < 0 {
		return &ValidationError{Field: "gracefulStop", Message: "gracefulStop cannot be negative"}
	}
	if c.TickInterval < 0 || c.TickInterval > MaxTickInterval {
		return &ValidationError{Field: "tickInterval", Message: "tickInterval must be between 0 and 1s"}
	}
	if c.SpawnWarnAfter < 0 {
		return &ValidationError{Field: "spawnWarnAfter", Message: "spawnWarnAfter cannot be negative"}
	}
	if err := c.Pacing.Validate(); err != nil {
		return &ValidationError{Field: "pacing", Message: err.Error()}
	}

	return nil
}

// TotalDuration calculates the total duration for this executor.
func (c *Config) TotalDuration() time.Duration {
	switch c.Type {
	case TypeConstantVUs:
		return c.Duration
	case TypeRampingVUs:
		var total time.Duration
		for _, stage := range c.Stages {
			total += stage.Duration
		}
		return total
	default:
		return 0
	}
}

// PeakVUs returns the largest VU count the plan asks for.
func (c *Config) PeakVUs() int {
	if c.Type == TypeConstantVUs {
		return c.VUs
	}
	peak := c.StartVUs
	for _, stage := range c.Stages {
		if stage.Target > peak {
			peak = stage.Target
		}
	}
	return peak
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}
