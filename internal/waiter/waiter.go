// Package waiter provides the single-resolution future used to deduplicate
// load work across the definition registry, the entity manager and the image
// derivation cache.
//
// A Waiter couples two things: a settle-once value (the future) and a small
// claim state machine. Exactly one caller wins Claim and becomes responsible
// for settling the waiter; every other caller must Wait on it instead of
// repeating the underlying work.
package waiter

import (
	"context"
	"sync"
)

// State is the claim lifecycle of a waiter.
type State int

const (
	// StateInit means the waiter exists but no worker has claimed it.
	StateInit State = iota
	// StateRunning means exactly one worker is responsible for settling it.
	StateRunning
	// StatePaused is an observable marker set by the owning worker.
	StatePaused
	// StateStopped means the waiter has been settled.
	StateStopped
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Status is the resolution status of a waiter.
type Status int

const (
	StatusPending Status = iota
	StatusResolved
	StatusRejected
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusResolved:
		return "resolved"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Waiter is a single-assignment future with an observable claim state.
type Waiter[T any] struct {
	mu     sync.Mutex
	state  State
	status Status
	value  T
	err    error
	done   chan struct{}
}

// New creates a waiter in StateInit.
func New[T any]() *Waiter[T] {
	return &Waiter[T]{
		state:  StateInit,
		status: StatusPending,
		done:   make(chan struct{}),
	}
}

// Claim transitions the waiter from init to running. Only the first caller
// gets true; it must eventually call Resolve or Reject.
func (w *Waiter[T]) Claim() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateInit {
		return false
	}
	w.state = StateRunning
	return true
}

// Pause marks a running waiter as paused. It has no effect on settlement.
func (w *Waiter[T]) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateRunning {
		w.state = StatePaused
	}
}

// Resolve settles the waiter with a value. Calls after the first settlement
// are no-ops and return false.
func (w *Waiter[T]) Resolve(value T) bool {
	return w.settle(value, nil, StatusResolved)
}

// Reject settles the waiter with an error. Calls after the first settlement
// are no-ops and return false.
func (w *Waiter[T]) Reject(err error) bool {
	var zero T
	return w.settle(zero, err, StatusRejected)
}

func (w *Waiter[T]) settle(value T, err error, status Status) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status != StatusPending {
		return false
	}
	w.value = value
	w.err = err
	w.status = status
	w.state = StateStopped
	close(w.done)
	return true
}

// Wait blocks until the waiter settles or ctx is done.
func (w *Waiter[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-w.done:
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.value, w.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed once the waiter settles.
func (w *Waiter[T]) Done() <-chan struct{} {
	return w.done
}

// State returns the current claim state.
func (w *Waiter[T]) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Status returns the current resolution status.
func (w *Waiter[T]) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Settled reports whether the waiter has been resolved or rejected.
func (w *Waiter[T]) Settled() bool {
	return w.Status() != StatusPending
}
