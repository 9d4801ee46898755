// Package vu runs virtual users: the per-user state machine, the iteration
// executor, and the pool that spawns and stops users.
package vu

import (
	"sync"
	"sync/atomic"
	"time"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// StateIdle indicates the VU has been created but not started.
	StateIdle VUState = iota
	// StateRunning indicates the VU is looping iterations.
	StateRunning
	// StateStopping indicates the VU finishes its current iteration and
	// starts no new one.
	StateStopping
	// StateStopped indicates the VU goroutine has exited.
	StateStopped
)

func (s VUState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is one simulated user. It is owned by a Scheduler.
type VirtualUser struct {
	ID int

	state atomic.Int32

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
	doneOnce sync.Once

	iteration atomic.Int64

	// Per-VU data, kept across iterations.
	data   map[string]any
	dataMu sync.RWMutex
}

// NewVirtualUser creates an idle virtual user.
func NewVirtualUser(id int) *VirtualUser {
	return &VirtualUser{
		ID:     id,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		data:   make(map[string]any),
	}
}

// State returns the current state.
func (vu *VirtualUser) State() VUState {
	return VUState(vu.state.Load())
}

// Iterations returns how many iterations the VU has started.
func (vu *VirtualUser) Iterations() int64 {
	return vu.iteration.Load()
}

func (vu *VirtualUser) nextIteration() int64 {
	return vu.iteration.Add(1)
}

// start moves Idle to Running. It fails if a stop was already requested.
func (vu *VirtualUser) start() bool {
	return vu.state.CompareAndSwap(int32(StateIdle), int32(StateRunning))
}

// RequestStop asks the VU to stop after its current iteration. It is
// idempotent and safe to call in any state.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) ||
		vu.state.CompareAndSwap(int32(StateIdle), int32(StateStopping)) {
		vu.stopOnce.Do(func() { close(vu.stopCh) })
	}
}

// StopRequested reports whether the VU is stopping or stopped.
func (vu *VirtualUser) StopRequested() bool {
	s := vu.State()
	return s == StateStopping || s == StateStopped
}

// Done is closed when the VU has stopped.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

// Wait blocks until the VU stops or timeout passes. It reports whether the
// VU stopped.
func (vu *VirtualUser) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

func (vu *VirtualUser) markStopped() {
	vu.state.Store(int32(StateStopped))
	vu.stopOnce.Do(func() { close(vu.stopCh) })
	vu.doneOnce.Do(func() { close(vu.doneCh) })
}

// SetData stores a value in the VU's scope.
func (vu *VirtualUser) SetData(key string, value any) {
	vu.dataMu.Lock()
	defer vu.dataMu.Unlock()
	vu.data[key] = value
}

// GetData returns a value from the VU's scope.
func (vu *VirtualUser) GetData(key string) (any, bool) {
	vu.dataMu.RLock()
	defer vu.dataMu.RUnlock()
	v, ok := vu.data[key]
	return v, ok
}

// DataSnapshot copies the VU's scope.
func (vu *VirtualUser) DataSnapshot() map[string]any {
	vu.dataMu.RLock()
	defer vu.dataMu.RUnlock()
	out := make(map[string]any, len(vu.data))
	for k, v := range vu.data {
		out[k] = v
	}
	return out
}
