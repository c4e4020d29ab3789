// Package evt provides a typed in-process event with ordered synchronous dispatch.
package evt

import "sync"

type handler[T any] struct {
	id uint64
	fn func(T)
}

// Event fans a value out to its handlers in registration order.
// The zero value is ready to use.
type Event[T any] struct {
	mu       sync.Mutex
	handlers []handler[T]
	nextID   uint64
}

// On registers fn and returns a func that removes it.
func (e *Event[T]) On(fn func(T)) (off func()) {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	next := make([]handler[T], len(e.handlers), len(e.handlers)+1)
	copy(next, e.handlers)
	e.handlers = append(next, handler[T]{id: id, fn: fn})
	e.mu.Unlock()

	return func() { e.off(id) }
}

func (e *Event[T]) off(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make([]handler[T], 0, len(e.handlers))
	for _, h := range e.handlers {
		if h.id != id {
			next = append(next, h)
		}
	}
	e.handlers = next
}

// Trigger calls every handler registered before the call, in order.
// Handlers may register or remove handlers while being dispatched.
func (e *Event[T]) Trigger(v T) {
	e.mu.Lock()
	hs := e.handlers
	e.mu.Unlock()

	for _, h := range hs {
		h.fn(v)
	}
}

// Len returns the number of registered handlers.
func (e *Event[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}
