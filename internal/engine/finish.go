package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/threshold"
)

// assemble builds the result from the frozen collector.
func (e *Engine) assemble(start time.Time) *RunResult {
	end := time.Now()
	snap := e.collector.Snapshot()
	outcomes := threshold.Evaluate(snap, e.thresholds)
	abort := e.currentAbort()

	result := &RunResult{
		ID:             uuid.NewString(),
		Name:           e.opts.Name,
		StartTime:      start,
		EndTime:        end,
		Duration:       end.Sub(start),
		Metrics:        snap,
		TimeSeries:     e.collector.TimeSeries(),
		Phases:         e.collector.PhaseHistory(),
		Thresholds:     outcomes,
		Passed:         threshold.Passed(outcomes),
		Interrupted:    e.exec.Interrupted(),
		Abort:          abort,
		Stages:         e.exec.StageResults(),
		DroppedSamples: e.collector.Dropped(),
	}

	// A breach that triggered an abort fails the run even if the series
	// recovered before the final evaluation.
	if abort != nil && abort.Reason == AbortThreshold {
		result.Passed = false
	}

	result.Warnings = append(result.Warnings, e.exec.Warnings()...)
	e.warnMu.Lock()
	result.Warnings = append(result.Warnings, e.warnings...)
	e.warnMu.Unlock()

	total, failed := result.Iterations()
	if total-failed <= 0 {
		result.NoSuccessfulIterations = true
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no successful iterations (%d completed, %d failed)", total, failed))
	}

	if result.DroppedSamples > 0 {
		e.logger.Debug("samples recorded after freeze were dropped", zap.Int64("count", result.DroppedSamples))
	}

	return result
}

// handleSummary calls every handler once and writes what they return.
// Handler failures do not stop later handlers.
func (e *Engine) handleSummary(result *RunResult) error {
	var errs *multierror.Error

	for i, h := range e.opts.SummaryHandlers {
		outputs, err := h(result)
		if err != nil {
			e.logger.Error("summary handler failed", zap.Int("handler", i), zap.Error(err))
			errs = multierror.Append(errs, fmt.Errorf("summary handler %d: %w", i, err))
			continue
		}
		if len(outputs) == 0 {
			continue
		}
		if e.opts.Output == nil {
			e.logger.Debug("no output writer configured, discarding summary", zap.Int("outputs", len(outputs)))
			continue
		}
		if err := e.opts.Output(outputs); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return errs.ErrorOrNil()
}
