package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Frame kinds.
const (
	KindSubscribe = "u"
	KindSnapshot  = "n"
	KindMessage   = "m"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
	snapshotTimeout = 5 * time.Second
	maxMessageSize  = 64 << 10
)

// Frame is the JSON envelope exchanged with websocket clients.
type Frame struct {
	Topic string          `json:"topic"`
	Kind  string          `json:"kind"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Executor runs callbacks on the bot's event loop.
type Executor interface {
	Post(fn func())
	Call(ctx context.Context, fn func()) error
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub websocket fan-out of every topic. Snapshots are produced on the event loop,
// inbound messages are decoded on the connection goroutine and handled on the loop.
type Hub struct {
	l        *zap.Logger
	exec     Executor
	upgrader websocket.Upgrader
	buffer   int

	mu        sync.RWMutex
	clients   map[*client]struct{}
	snapshots map[string]func() any
	receivers map[string]func(json.RawMessage) error
}

// NewHub creates a hub with the given per-client buffer.
func NewHub(l *zap.Logger, exec Executor, buffer int) *Hub {
	if buffer < 1 {
		buffer = 256
	}
	return &Hub{
		l:         l.With(zap.String("component", "hub")),
		exec:      exec,
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		buffer:    buffer,
		clients:   make(map[*client]struct{}),
		snapshots: make(map[string]func() any),
		receivers: make(map[string]func(json.RawMessage) error),
	}
}

// NewPublisher returns a Publisher for topic backed by h.
func NewPublisher[T any](h *Hub, topic string) Publisher[T] {
	return &hubPublisher[T]{h: h, topic: topic}
}

// NewReceiver returns a Receiver for topic backed by h.
func NewReceiver[T any](h *Hub, topic string) Receiver[T] {
	return &hubReceiver[T]{h: h, topic: topic}
}

type hubPublisher[T any] struct {
	h     *Hub
	topic string
}

func (p *hubPublisher[T]) Publish(msg T) {
	p.h.broadcast(p.topic, msg)
}

func (p *hubPublisher[T]) RegisterSnapshot(fn func() []T) Publisher[T] {
	p.h.mu.Lock()
	defer p.h.mu.Unlock()

	if _, ok := p.h.snapshots[p.topic]; ok {
		p.h.l.Warn("snapshot generator already registered", zap.String("topic", p.topic))
		return p
	}
	p.h.snapshots[p.topic] = func() any { return fn() }
	return p
}

type hubReceiver[T any] struct {
	h     *Hub
	topic string
}

func (r *hubReceiver[T]) RegisterReceiver(fn func(T)) {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()

	if _, ok := r.h.receivers[r.topic]; ok {
		r.h.l.Warn("receiver already registered", zap.String("topic", r.topic))
		return
	}
	r.h.receivers[r.topic] = func(raw json.RawMessage) error {
		var v T
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &v); err != nil {
				return errors.Wrapf(err, "decode %s message", r.topic)
			}
		}
		r.h.exec.Post(func() { fn(v) })
		return nil
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(topic string, msg any) {
	frame, err := encodeFrame(topic, KindMessage, msg)
	if err != nil {
		h.l.Error("failed to encode message", zap.String("topic", topic), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			// drop slow consumer
		}
	}
}

// ServeHTTP upgrades the connection and serves the client until it goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.buffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.l.Info("client connected", zap.String("remote", r.RemoteAddr))

	go h.writePump(c)
	h.readPump(c)

	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.l.Info("client disconnected", zap.String("remote", r.RemoteAddr))
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.l.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		switch f.Kind {
		case KindSubscribe:
			h.sendSnapshot(c, f.Topic)
		case KindMessage:
			h.mu.RLock()
			recv, ok := h.receivers[f.Topic]
			h.mu.RUnlock()
			if !ok {
				h.l.Warn("no receiver for topic", zap.String("topic", f.Topic))
				continue
			}
			if err := recv(f.Data); err != nil {
				h.l.Warn("dropping malformed client message", zap.String("topic", f.Topic), zap.Error(err))
			}
		default:
			h.l.Warn("unknown frame kind", zap.String("kind", f.Kind))
		}
	}
}

func (h *Hub) sendSnapshot(c *client, topic string) {
	h.mu.RLock()
	snap, ok := h.snapshots[topic]
	h.mu.RUnlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	var data any
	if err := h.exec.Call(ctx, func() { data = snap() }); err != nil {
		h.l.Warn("snapshot timed out", zap.String("topic", topic), zap.Error(err))
		return
	}

	frame, err := encodeFrame(topic, KindSnapshot, data)
	if err != nil {
		h.l.Error("failed to encode snapshot", zap.String("topic", topic), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encodeFrame(topic, kind string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	b, err := json.Marshal(Frame{Topic: topic, Kind: kind, Data: raw})
	if err != nil {
		return nil, errors.Wrap(err, "marshal frame")
	}
	return b, nil
}
