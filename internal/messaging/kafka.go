package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMirror copies published values to kafka topics named prefix+topic.
type KafkaMirror struct {
	l      *zap.Logger
	w      messageWriter
	prefix string
}

// NewKafkaMirror creates an async writer to brokers.
func NewKafkaMirror(l *zap.Logger, brokers []string, prefix string) *KafkaMirror {
	l = l.With(zap.String("component", "kafka"))
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				l.Warn("failed to deliver messages", zap.Int("count", len(msgs)), zap.Error(err))
			}
		},
	}
	return &KafkaMirror{l: l, w: w, prefix: prefix}
}

// Close flushes pending messages.
func (m *KafkaMirror) Close() error {
	return errors.Wrap(m.w.Close(), "close kafka writer")
}

func (m *KafkaMirror) write(topic string, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		m.l.Error("failed to encode message", zap.String("topic", topic), zap.Error(err))
		return
	}

	msg := kafka.Message{Topic: m.prefix + topic, Value: payload}
	if key != "" {
		msg.Key = []byte(key)
	}
	if err := m.w.WriteMessages(context.Background(), msg); err != nil {
		m.l.Warn("failed to enqueue message", zap.String("topic", topic), zap.Error(err))
	}
}

// NewKafkaPublisher returns a Publisher writing topic to m. key may be nil.
func NewKafkaPublisher[T any](m *KafkaMirror, topic string, key func(T) string) Publisher[T] {
	return &kafkaPublisher[T]{m: m, topic: topic, key: key}
}

type kafkaPublisher[T any] struct {
	m     *KafkaMirror
	topic string
	key   func(T) string
}

func (p *kafkaPublisher[T]) Publish(msg T) {
	var key string
	if p.key != nil {
		key = p.key(msg)
	}
	p.m.write(p.topic, key, msg)
}

// RegisterSnapshot is a no-op, kafka consumers replay the log instead.
func (p *kafkaPublisher[T]) RegisterSnapshot(func() []T) Publisher[T] {
	return p
}
