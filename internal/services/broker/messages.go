package broker

import (
	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

const messagesSnapshotSize = 50

// Messages operator-facing text notices.
type Messages struct {
	c         clock.Clock
	pub       messaging.Publisher[domain.Message]
	persister storage.Sink[domain.Message]
	stored    []domain.Message
}

// NewMessages creates the publisher, initial are messages loaded at startup.
func NewMessages(c clock.Clock, pub messaging.Publisher[domain.Message], persister storage.Sink[domain.Message], initial []domain.Message) *Messages {
	m := &Messages{c: c, pub: pub, persister: persister}
	m.stored = append(m.stored, initial...)
	pub.RegisterSnapshot(func() []domain.Message { return takeLast(m.stored, messagesSnapshotSize) })
	return m
}

// Publish timestamps, publishes and persists text.
func (m *Messages) Publish(text string) {
	msg := domain.Message{Text: text, Time: m.c.Now()}
	m.pub.Publish(msg)
	m.persister.Persist(msg)
	m.stored = append(m.stored, msg)
	if len(m.stored) > 2*messagesSnapshotSize {
		m.stored = append([]domain.Message(nil), takeLast(m.stored, messagesSnapshotSize)...)
	}
}

// takeLast returns a copy of the last n elements.
func takeLast[T any](s []T, n int) []T {
	if len(s) > n {
		s = s[len(s)-n:]
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
