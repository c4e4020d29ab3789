package clock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const blockedLoopThreshold = 25 * time.Millisecond

// Loop real-time Clock backed by one goroutine draining an unbounded queue.
type Loop struct {
	l    *zap.Logger
	mu   sync.Mutex
	q    []func()
	wake chan struct{}
}

// NewLoop creates a loop. Callbacks posted before Run are kept.
func NewLoop(l *zap.Logger) *Loop {
	return &Loop{
		l:    l.With(zap.String("component", "loop")),
		wake: make(chan struct{}, 1),
	}
}

// Now returns wall-clock time.
func (lp *Loop) Now() time.Time {
	return time.Now()
}

// Post enqueues fn. Safe to call from any goroutine.
func (lp *Loop) Post(fn func()) {
	lp.mu.Lock()
	lp.q = append(lp.q, fn)
	lp.mu.Unlock()

	select {
	case lp.wake <- struct{}{}:
	default:
	}
}

// Call runs fn on the loop and waits for it to finish.
func (lp *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	lp.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc schedules fn on the loop after d.
func (lp *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.t = time.AfterFunc(d, func() {
		lp.Post(func() {
			if !t.stopped.Load() {
				fn()
			}
		})
	})
	return t
}

// Every schedules fn on the loop each d.
func (lp *Loop) Every(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	var arm func()
	arm = func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.stopped.Load() {
			return
		}
		t.t = time.AfterFunc(d, func() {
			lp.Post(func() {
				if !t.stopped.Load() {
					fn()
				}
			})
			arm()
		})
	}
	arm()
	return t
}

// Run drains the queue until ctx is done. A panicking callback stops the loop with an error.
func (lp *Loop) Run(ctx context.Context) (err error) {
	lp.l.Info("event loop started")
	defer lp.l.Info("event loop stopped")

	for {
		lp.mu.Lock()
		batch := lp.q
		lp.q = nil
		lp.mu.Unlock()

		for _, fn := range batch {
			if err := lp.exec(fn); err != nil {
				return err
			}
		}

		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-lp.wake:
		}
	}
}

func (lp *Loop) exec(fn func()) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("event loop callback panicked: %v", r)
		}
		if took := time.Since(start); took > blockedLoopThreshold {
			lp.l.Warn("event loop blocked", zap.Duration("took", took))
		}
	}()

	fn()
	return nil
}

type loopTimer struct {
	mu      sync.Mutex
	t       *time.Timer
	stopped atomic.Bool
}

func (t *loopTimer) Stop() {
	t.stopped.Store(true)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t != nil {
		t.t.Stop()
	}
}
