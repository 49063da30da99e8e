package grid

import (
	"context"
	"errors"
	"sync"
)

var ErrLoopStopped = errors.New("loop is stopped")

// Loop is a serial execution context. All grid state is mutated only by functions
// running on it.
type Loop struct {
	fnCh     chan func()
	stopCh   chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}
}

func NewLoop() *Loop {
	l := &Loop{
		fnCh:     make(chan func(), 100),
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	go l.run()

	return l
}

func (l *Loop) run() {
	defer close(l.loopDone)

	for {
		select {
		case fn := <-l.fnCh:
			fn()
		case <-l.stopCh:
			return
		}
	}
}

// Dispatch schedules fn to run on the loop. Functions passed after Shutdown are dropped.
// It must not be called from the loop itself.
func (l *Loop) Dispatch(fn func()) {
	select {
	case l.fnCh <- fn:
	case <-l.stopCh:
	}
}

// Do runs fn on the loop and waits for it to finish. If ctx is done first, fn can still
// run later, so it must not write to variables of the caller. Use [call] to get results.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})

	select {
	case l.fnCh <- func() {
		defer close(done)
		fn()
	}:
	case <-l.stopCh:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-l.loopDone:
		// The loop could have been stopped before fn was called.
		select {
		case <-done:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the loop. Functions in the queue are dropped.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.loopDone:
		return nil
	}
}

// call runs fn on the loop and returns its result. The result of fn that finishes
// after ctx is done is dropped.
func call[T any](ctx context.Context, l *Loop, fn func() T) (T, error) {
	resCh := make(chan T, 1)
	err := l.Do(ctx, func() {
		resCh <- fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return <-resCh, nil
}
