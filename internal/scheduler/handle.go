package scheduler

import (
	"context"
	"sync/atomic"
)

const (
	stateQueued int32 = iota
	stateRunning
	stateCancelled
)

// Handle is the eventual result of a submitted task.
type Handle struct {
	state atomic.Int32
	done  chan struct{}
	value any
	err   error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Done is closed once the task has a result.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task resolves or ctx ends.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel withdraws a task that has not been dispatched yet; the handle then
// resolves with ErrCancelled. It reports false once a worker has picked the
// task up, running work is never interrupted.
func (h *Handle) Cancel() bool {
	if !h.state.CompareAndSwap(stateQueued, stateCancelled) {
		return false
	}
	h.value, h.err = nil, ErrCancelled
	close(h.done)
	return true
}

// Cancelled reports whether Cancel withdrew the task.
func (h *Handle) Cancelled() bool {
	return h.state.Load() == stateCancelled
}

func (h *Handle) start() bool {
	return h.state.CompareAndSwap(stateQueued, stateRunning)
}

func (h *Handle) resolve(v any, err error) {
	h.value, h.err = v, err
	close(h.done)
}
