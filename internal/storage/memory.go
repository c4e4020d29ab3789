package storage

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStore in-process Repository, used by tests and paper runs without a data dir.
type MemoryStore[T any] struct {
	mu   sync.Mutex
	def  T
	rows []T
}

// NewMemoryStore creates a store seeded with rows.
func NewMemoryStore[T any](def T, rows ...T) *MemoryStore[T] {
	return &MemoryStore[T]{def: def, rows: rows}
}

// Persist appends v.
func (m *MemoryStore[T]) Persist(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, v)
}

// LoadAll returns up to limit most recent matching rows, oldest first.
func (m *MemoryStore[T]) LoadAll(_ context.Context, limit int, filter func(T) bool) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []T
	for i := len(m.rows) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if filter == nil || filter(m.rows[i]) {
			out = append(out, m.rows[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LoadLatest returns the newest row or the default.
func (m *MemoryStore[T]) LoadLatest(_ context.Context) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rows) == 0 {
		return m.def, nil
	}
	return m.rows[len(m.rows)-1], nil
}

// FindByID returns the row with 1-based position id.
func (m *MemoryStore[T]) FindByID(_ context.Context, id uint64) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == 0 || id > uint64(len(m.rows)) {
		return m.def, errors.Wrapf(ErrNoData, "record %d", id)
	}
	return m.rows[id-1], nil
}

// Rows returns a copy of everything persisted.
func (m *MemoryStore[T]) Rows() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]T, len(m.rows))
	copy(out, m.rows)
	return out
}
