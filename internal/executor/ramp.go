package executor

import (
	"time"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

// TargetAt returns the VU target elapsed into the plan and the index of the
// stage it falls in. Within a stage the target moves linearly from the
// previous stage's target (startVUs for the first stage) toward the stage's
// own target, truncated toward the previous target so it never overshoots
// and is monotonic. At and after a stage's end it is exactly that stage's
// target. Past the last stage the index equals len(stages).
func TargetAt(startVUs int, stages []Stage, elapsed time.Duration) (int, int) {
	if elapsed < 0 {
		elapsed = 0
	}

	prev := startVUs
	var stageStart time.Duration
	for i, st := range stages {
		stageEnd := stageStart + st.Duration
		if elapsed < stageEnd {
			progress := float64(elapsed-stageStart) / float64(st.Duration)
			delta := int(float64(st.Target-prev) * progress)
			return clampBetween(prev+delta, prev, st.Target), i
		}
		prev = st.Target
		stageStart = stageEnd
	}
	return prev, len(stages)
}

func clampBetween(v, a, b int) int {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// stageBounds returns the offset from run start at which stage i begins and
// ends.
func stageBounds(stages []Stage, i int) (time.Duration, time.Duration) {
	var start time.Duration
	for j := 0; j < i; j++ {
		start += stages[j].Duration
	}
	return start, start + stages[i].Duration
}

// previousTarget is the VU count stage i ramps from.
func previousTarget(startVUs int, stages []Stage, i int) int {
	if i == 0 {
		return startVUs
	}
	return stages[i-1].Target
}

// PhaseFor classifies stage i as ramp-up, steady or ramp-down.
func PhaseFor(startVUs int, stages []Stage, i int) metrics.Phase {
	if i < 0 || i >= len(stages) {
		return metrics.PhaseStopping
	}
	prev := previousTarget(startVUs, stages, i)
	switch {
	case stages[i].Target > prev:
		return metrics.PhaseRampUp
	case stages[i].Target < prev:
		return metrics.PhaseRampDown
	default:
		return metrics.PhaseSteady
	}
}
