package vu

import (
	"errors"
	"fmt"
)

// ErrResourceExhausted is returned by Spawn when the pool is at MaxVUs.
var ErrResourceExhausted = errors.New("virtual user limit reached")

// ErrSchedulerClosed is returned by Spawn after Shutdown.
var ErrSchedulerClosed = errors.New("scheduler is shut down")

// SpawnError reports a virtual user that could not be created. The
// scheduler retries on a later tick.
type SpawnError struct {
	ID  int
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn virtual user %d: %v", e.ID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// IterationError is a failed iteration: the scenario returned an error or
// panicked. It is recorded, never propagated out of the VU loop.
type IterationError struct {
	VUID      int
	Iteration int64
	Err       error

	// Panic holds the recovered value when the scenario panicked.
	Panic any
}

func (e *IterationError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("vu %d iteration %d panicked: %v", e.VUID, e.Iteration, e.Panic)
	}
	return fmt.Sprintf("vu %d iteration %d: %v", e.VUID, e.Iteration, e.Err)
}

func (e *IterationError) Unwrap() error { return e.Err }
