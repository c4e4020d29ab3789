package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"
)

const (
	DefaultDir    = "./wal/tribeca"
	FlushInterval = 10 * time.Second

	segmentLimit = 1000
	maxSegments  = 20
)

// WALStore queued, WAL-backed store of one collection.
type WALStore[T any] struct {
	l          *zap.Logger
	collection string
	def        T

	walMu sync.RWMutex
	wal   *gowal.Wal

	qMu   sync.Mutex
	queue []T
}

// NewWALStore opens (or creates) the WAL of collection under dir.
// def is returned by LoadLatest when nothing was stored and seeds every decoded value.
func NewWALStore[T any](l *zap.Logger, dir, collection string, def T) (*WALStore[T], error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              filepath.Join(dir, collection),
		Prefix:           collection + "_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "init %s WAL", collection)
	}

	return &WALStore[T]{
		l:          l.With(zap.String("component", "persister"), zap.String("collection", collection)),
		collection: collection,
		def:        def,
		wal:        wal,
	}, nil
}

// Persist queues v, it reaches disk on the next flush.
func (s *WALStore[T]) Persist(v T) {
	s.qMu.Lock()
	s.queue = append(s.queue, v)
	s.qMu.Unlock()
}

// Flush writes every queued value.
func (s *WALStore[T]) Flush() error {
	s.qMu.Lock()
	pending := s.queue
	s.queue = nil
	s.qMu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	s.walMu.Lock()
	defer s.walMu.Unlock()

	for i, v := range pending {
		payload, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "marshal %s record", s.collection)
		}

		if err := s.wal.Write(s.wal.CurrentIndex()+1, s.collection, payload); err != nil {
			s.requeue(pending[i:])
			return errors.Wrapf(err, "write %s record", s.collection)
		}
	}

	return nil
}

func (s *WALStore[T]) requeue(vs []T) {
	s.qMu.Lock()
	s.queue = append(append([]T{}, vs...), s.queue...)
	s.qMu.Unlock()
}

// Run flushes every FlushInterval until ctx is done.
func (s *WALStore[T]) Run(ctx context.Context) error {
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.l.Error("failed to flush", zap.Error(err))
			}
		}
	}
}

// LoadAll returns up to limit most recent matching values, oldest first.
// Queued values are flushed first so reads observe every Persist.
func (s *WALStore[T]) LoadAll(ctx context.Context, limit int, filter func(T) bool) ([]T, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}

	s.walMu.RLock()
	defer s.walMu.RUnlock()

	var out []T
	for idx := s.wal.CurrentIndex(); idx > 0 && (limit <= 0 || len(out) < limit); idx-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		v, err := s.get(idx)
		if err != nil {
			continue
		}
		if filter == nil || filter(v) {
			out = append(out, v)
		}
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out, nil
}

// LoadLatest returns the newest value, or the default when empty.
func (s *WALStore[T]) LoadLatest(ctx context.Context) (T, error) {
	all, err := s.LoadAll(ctx, 1, nil)
	if err != nil {
		return s.def, err
	}
	if len(all) == 0 {
		return s.def, nil
	}
	return all[0], nil
}

// FindByID returns the value stored at WAL index id.
func (s *WALStore[T]) FindByID(ctx context.Context, id uint64) (T, error) {
	if err := s.Flush(); err != nil {
		return s.def, err
	}

	s.walMu.RLock()
	defer s.walMu.RUnlock()

	if id == 0 || id > s.wal.CurrentIndex() {
		return s.def, errors.Wrapf(ErrNoData, "%s record %d", s.collection, id)
	}
	return s.get(id)
}

// LoadRaw returns up to limit most recent payloads, oldest first.
func (s *WALStore[T]) LoadRaw(ctx context.Context, limit int) ([]json.RawMessage, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}

	s.walMu.RLock()
	defer s.walMu.RUnlock()

	var out []json.RawMessage
	for idx := s.wal.CurrentIndex(); idx > 0 && (limit <= 0 || len(out) < limit); idx-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key, payload, err := s.wal.Get(idx)
		if err != nil || key != s.collection {
			continue
		}
		out = append(out, json.RawMessage(payload))
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// get must be called with walMu held.
func (s *WALStore[T]) get(idx uint64) (T, error) {
	key, payload, err := s.wal.Get(idx)
	if err != nil {
		return s.def, errors.Wrapf(err, "read %s record %d", s.collection, idx)
	}
	if key != s.collection {
		return s.def, errors.Wrapf(ErrNoData, "%s record %d has key %s", s.collection, idx, key)
	}

	v := s.def
	if err := json.Unmarshal(payload, &v); err != nil {
		return s.def, errors.Wrapf(err, "decode %s record %d", s.collection, idx)
	}
	return v, nil
}

// Close flushes the queue and closes the WAL.
func (s *WALStore[T]) Close() error {
	flushErr := s.Flush()

	s.walMu.Lock()
	defer s.walMu.Unlock()

	if err := s.wal.Close(); err != nil {
		return errors.Wrapf(err, "close %s WAL", s.collection)
	}
	return flushErr
}
