// Package scheduler runs asynchronous work on a fixed number of workers,
// dispatching in submission order.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/ssuji15/scriptd/internal/job_tracer"
	"github.com/ssuji15/scriptd/internal/service/logger"
)

var (
	ErrPoolClosed = errors.New("pool is closed; cannot add new tasks")
	ErrCancelled  = errors.New("task cancelled before dispatch")
	ErrPanic      = errors.New("task panicked")
)

// WorkFunc is a unit of work. Its return values resolve the task's Handle.
type WorkFunc func(ctx context.Context) (any, error)

type task struct {
	ctx    context.Context
	fn     WorkFunc
	handle *Handle
}

// Pool is a FIFO queue consumed by a fixed set of workers. Submit never
// blocks; Shutdown stops intake and waits for everything queued to finish.
type Pool struct {
	size int

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []*task
	closed     bool
	unfinished int
	idle       chan struct{}

	active  atomic.Int64
	wg      sync.WaitGroup
	stopped chan struct{}
}

func NewPool(size int) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be >= 1, got %d", size)
	}
	p := &Pool{
		size:    size,
		idle:    closedChan(),
		stopped: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	go func() {
		p.wg.Wait()
		close(p.stopped)
	}()

	logger.Log.Info().Int("workers", size).Msg("task pool started")
	return p, nil
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

// Size is the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit enqueues fn and returns its handle. ctx is handed to fn as is; its
// cancellation does not withdraw the task, use Handle.Cancel for that.
func (p *Pool) Submit(ctx context.Context, fn WorkFunc) (*Handle, error) {
	if fn == nil {
		return nil, errors.New("nil work function")
	}
	h := newHandle()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.queue = append(p.queue, &task{ctx: ctx, fn: fn, handle: h})
	if p.unfinished == 0 {
		p.idle = make(chan struct{})
	}
	p.unfinished++
	p.cond.Signal()
	p.mu.Unlock()

	job_tracer.GetMetrics().QueueDepth(ctx, 1)
	return h, nil
}

// Pending is the number of tasks waiting for a worker, including cancelled
// ones not yet discarded.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Closed reports whether Shutdown has been called.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Active is the number of tasks currently running.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Join waits until every task submitted so far has finished or been
// discarded.
func (p *Pool) Join(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown rejects further submissions, lets the workers drain the queue
// and waits for them to exit. If ctx ends first the workers keep draining in
// the background and ctx's error is returned. Safe to call more than once.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		logger.Log.Info().Int("pending", len(p.queue)).Msg("task pool stopping")
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	select {
	case <-p.stopped:
		logger.Log.Info().Msg("task pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		job_tracer.GetMetrics().QueueDepth(t.ctx, -1)
		p.run(id, t)

		p.mu.Lock()
		p.unfinished--
		if p.unfinished == 0 {
			close(p.idle)
		}
		p.mu.Unlock()
	}
}

func (p *Pool) run(id int, t *task) {
	if !t.handle.start() {
		return
	}
	p.active.Add(1)
	defer p.active.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			log := logger.FromContext(t.ctx)
			log.Error().
				Int("worker", id).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("task panicked")
			t.handle.resolve(nil, fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()

	v, err := t.fn(t.ctx)
	t.handle.resolve(v, err)
}
