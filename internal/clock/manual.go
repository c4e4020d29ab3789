package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual deterministic Clock for tests and replays. Time only moves on Advance.
type Manual struct {
	mu         sync.Mutex
	now        time.Time
	seq        uint64
	timers     []*manualTimer
	immediates []func()
}

type manualTimer struct {
	m       *Manual
	at      time.Time
	period  time.Duration
	seq     uint64
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.stopped = true
}

// NewManual creates a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Post queues fn until the next Flush or Advance.
func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.immediates = append(m.immediates, fn)
	m.mu.Unlock()
}

// AfterFunc runs fn once the clock is advanced past d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	return m.add(d, 0, fn)
}

// Every runs fn each time the clock crosses a multiple of d.
func (m *Manual) Every(d time.Duration, fn func()) Timer {
	return m.add(d, d, fn)
}

func (m *Manual) add(d, period time.Duration, fn func()) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, at: m.now.Add(d), period: period, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Flush runs posted callbacks, including ones posted while flushing.
func (m *Manual) Flush() {
	for {
		m.mu.Lock()
		if len(m.immediates) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.immediates[0]
		m.immediates = m.immediates[1:]
		m.mu.Unlock()

		fn()
	}
}

// Advance moves time forward by d, firing due timers in time order.
func (m *Manual) Advance(d time.Duration) {
	m.Flush()

	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
		m.Flush()
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
	m.Flush()
}

// nextDue pops the earliest timer due at or before target and moves time to it.
func (m *Manual) nextDue(target time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live

	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})

	if len(m.timers) == 0 || m.timers[0].at.After(target) {
		return nil
	}

	t := m.timers[0]
	m.now = t.at
	if t.period > 0 {
		t.at = t.at.Add(t.period)
	} else {
		m.timers = m.timers[1:]
	}

	return t
}
