package mainloop

import (
	"context"
	"errors"
)

// ErrStopped is returned by DispatchSync once the loop has exited.
var ErrStopped = errors.New("mainloop: stopped")

// Dispatcher schedules work on the goroutine that owns UI state.
// DispatchSync returns ErrStopped once that goroutine is gone.
type Dispatcher interface {
	Dispatch(fn func())
	DispatchSync(ctx context.Context, fn func()) error
}

// Loop runs queued functions one at a time on the goroutine that calls Run.
type Loop struct {
	queue   chan func()
	stopped chan struct{}
}

// New creates a loop with room for size pending functions.
func New(size int) *Loop {
	if size < 1 {
		size = 1
	}
	return &Loop{
		queue:   make(chan func(), size),
		stopped: make(chan struct{}),
	}
}

// Run executes dispatched functions until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.queue:
			fn()
		}
	}
}

// Dispatch queues fn. It blocks while the queue is full and drops fn once
// the loop has stopped.
func (l *Loop) Dispatch(fn func()) {
	select {
	case l.queue <- fn:
	case <-l.stopped:
	}
}

// DispatchSync queues fn and waits until it has run.
func (l *Loop) DispatchSync(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case l.queue <- wrapped:
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Immediate runs dispatched functions on the caller's goroutine.
// Used by tests and headless runs.
type Immediate struct{}

func (Immediate) Dispatch(fn func()) { fn() }

func (Immediate) DispatchSync(_ context.Context, fn func()) error {
	fn()
	return nil
}
