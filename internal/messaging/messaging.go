package messaging

// Publisher pushes values of one topic to every connected client.
type Publisher[T any] interface {
	Publish(msg T)
	// RegisterSnapshot sets the generator used to bring late subscribers up to date.
	RegisterSnapshot(fn func() []T) Publisher[T]
}

// Receiver delivers client-originated values of one topic.
type Receiver[T any] interface {
	RegisterReceiver(fn func(T))
}

// NullPublisher drops everything.
type NullPublisher[T any] struct{}

// Publish does nothing.
func (NullPublisher[T]) Publish(T) {}

// RegisterSnapshot does nothing.
func (p NullPublisher[T]) RegisterSnapshot(func() []T) Publisher[T] { return p }

// NullReceiver never delivers.
type NullReceiver[T any] struct{}

// RegisterReceiver does nothing.
func (NullReceiver[T]) RegisterReceiver(func(T)) {}

// Tee publishes to every wrapped publisher. The snapshot goes to the first one only.
type Tee[T any] []Publisher[T]

// Publish forwards msg to all publishers in order.
func (t Tee[T]) Publish(msg T) {
	for _, p := range t {
		p.Publish(msg)
	}
}

// RegisterSnapshot registers fn on the first publisher.
func (t Tee[T]) RegisterSnapshot(fn func() []T) Publisher[T] {
	if len(t) > 0 {
		t[0].RegisterSnapshot(fn)
	}
	return t
}

// Recorder in-memory Publisher, useful for tests and the data endpoint.
type Recorder[T any] struct {
	Messages []T
	snapshot func() []T
}

// Publish appends msg.
func (r *Recorder[T]) Publish(msg T) {
	r.Messages = append(r.Messages, msg)
}

// RegisterSnapshot stores fn.
func (r *Recorder[T]) RegisterSnapshot(fn func() []T) Publisher[T] {
	r.snapshot = fn
	return r
}

// Snapshot calls the registered generator, nil when none.
func (r *Recorder[T]) Snapshot() []T {
	if r.snapshot == nil {
		return nil
	}
	return r.snapshot()
}

// Last returns the most recent message.
func (r *Recorder[T]) Last() (T, bool) {
	var zero T
	if len(r.Messages) == 0 {
		return zero, false
	}
	return r.Messages[len(r.Messages)-1], true
}

// ManualReceiver Receiver driven by Send, for tests.
type ManualReceiver[T any] struct {
	handler func(T)
}

// RegisterReceiver stores fn.
func (r *ManualReceiver[T]) RegisterReceiver(fn func(T)) {
	r.handler = fn
}

// Send delivers v to the registered handler.
func (r *ManualReceiver[T]) Send(v T) {
	if r.handler != nil {
		r.handler(v)
	}
}
