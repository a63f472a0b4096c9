package session

import (
	"context"
	"errors"
	"sync"
)

// ErrExecutorClosed is returned when work is submitted after Close.
var ErrExecutorClosed = errors.New("executor closed")

// Executor serializes work for one session onto a single goroutine. Caller
// commands use Run and wait for completion; engine callbacks use Post and
// return immediately. The queue is unbounded so a callback raised while the
// executor itself is inside an engine call never blocks.
type Executor struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	onPanic func(any)
}

// NewExecutor starts an executor. onPanic, when non-nil, receives values
// recovered from posted work.
func NewExecutor(onPanic func(any)) *Executor {
	e := &Executor{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		onPanic: onPanic,
	}
	go e.loop()
	return e
}

// Post queues fn. It reports false when the executor is closed.
func (e *Executor) Post(fn func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.pending = append(e.pending, fn)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

// Run queues fn and waits for it to finish or for ctx to end. Must not be
// called from the executor's own goroutine.
func (e *Executor) Run(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !e.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrExecutorClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work. Work already queued still runs. Safe to call
// from the executor's goroutine and more than once.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the loop has exited.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

func (e *Executor) loop() {
	defer close(e.done)
	for {
		e.mu.Lock()
		batch := e.pending
		e.pending = nil
		closed := e.closed
		e.mu.Unlock()

		for _, fn := range batch {
			e.safeRun(fn)
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-e.wake
	}
}

func (e *Executor) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil && e.onPanic != nil {
			e.onPanic(r)
		}
	}()
	fn()
}
