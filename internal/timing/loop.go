package timing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// Loop is a serial executor implementing contracts.Clock on the monotonic clock.
type Loop struct {
	start time.Time

	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

// NewLoop creates a stopped loop. Callbacks queue until Run is called.
func NewLoop() *Loop {
	return &Loop{start: time.Now(), wake: make(chan struct{}, 1)}
}

// Now returns the time elapsed since the loop was created.
func (l *Loop) Now() time.Duration {
	return time.Since(l.start)
}

// AfterFunc schedules f to run on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, f func()) contracts.Timer {
	t := &loopTimer{}
	run := func() {
		if t.stopped.CompareAndSwap(false, true) {
			f()
		}
	}
	if d <= 0 {
		l.Post(run)
		return t
	}
	t.timer = time.AfterFunc(d, func() { l.Post(run) })
	return t
}

// Post queues f behind the pending callbacks. Post never blocks.
func (l *Loop) Post(f func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs f on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		f()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes callbacks until ctx is cancelled. Pending callbacks are dropped on exit.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
	}()
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, f := range batch {
			f()
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

type loopTimer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

func (t *loopTimer) Stop() bool {
	if !t.stopped.CompareAndSwap(false, true) {
		return false
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	return true
}
