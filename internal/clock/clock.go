// Package clock runs the bot's single event loop and the timers that feed it.
package clock

import "time"

// Timer handle to a scheduled callback.
type Timer interface {
	Stop()
}

// Clock time source and scheduler. Every callback runs on the loop goroutine,
// never concurrently with another callback.
type Clock interface {
	Now() time.Time
	// AfterFunc runs fn once after d.
	AfterFunc(d time.Duration, fn func()) Timer
	// Every runs fn each d, first time after d.
	Every(d time.Duration, fn func()) Timer
	// Post runs fn as soon as the loop is free.
	Post(fn func())
}

// Scheduler coalesces bursts of requests into one run per loop turn.
type Scheduler struct {
	c       Clock
	pending bool
}

// NewScheduler creates a scheduler posting to c.
func NewScheduler(c Clock) *Scheduler {
	return &Scheduler{c: c}
}

// Schedule posts fn unless a run is already pending. Must be called on the loop.
func (s *Scheduler) Schedule(fn func()) {
	if s.pending {
		return
	}
	s.pending = true
	s.c.Post(func() {
		defer func() { s.pending = false }()
		fn()
	})
}

// RegularTimer fires on a fixed interval that survives restarts:
// given the last fire time it waits out the remainder before ticking.
type RegularTimer struct {
	c        Clock
	fn       func()
	interval time.Duration
	timer    Timer
	stopped  bool
}

// NewRegularTimer starts ticking. A zero last starts immediately.
func NewRegularTimer(c Clock, fn func(), interval time.Duration, last time.Time) *RegularTimer {
	rt := &RegularTimer{c: c, fn: fn, interval: interval}

	if last.IsZero() {
		rt.start()
		return rt
	}

	wait := last.Add(interval).Sub(c.Now())
	if wait > 0 {
		rt.timer = c.AfterFunc(wait, rt.start)
	} else {
		rt.start()
	}

	return rt
}

func (rt *RegularTimer) start() {
	if rt.stopped {
		return
	}
	rt.fn()
	rt.timer = rt.c.Every(rt.interval, rt.fn)
}

// Stop cancels future ticks.
func (rt *RegularTimer) Stop() {
	rt.stopped = true
	if rt.timer != nil {
		rt.timer.Stop()
	}
}
