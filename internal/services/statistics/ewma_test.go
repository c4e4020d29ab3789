package statistics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeFV struct{ fv *domain.FairValue }

func (f *fakeFV) LatestFairValue() *domain.FairValue { return f.fv }

func TestComputeEwma(t *testing.T) {
	assert.Equal(t, 42.0, ComputeEwma(42, nil, 0.5))

	prev := 100.0
	assert.InDelta(t, 105.0, ComputeEwma(110, &prev, 0.5), 1e-9)
	assert.InDelta(t, 100.95, ComputeEwma(110, &prev, 0.095), 1e-9)
}

func TestEwmaCalculator_Initialize(t *testing.T) {
	t.Run("seed matches a manual fold", func(t *testing.T) {
		e := NewEwmaCalculator(0.5)
		e.Initialize([]float64{100, 110, 120})
		require.NotNil(t, e.Latest())
		assert.InDelta(t, 112.5, *e.Latest(), 1e-9)

		assert.InDelta(t, 116.25, e.AddNewValue(120), 1e-9)
	})

	t.Run("empty seed", func(t *testing.T) {
		e := NewEwmaCalculator(0.095)
		e.Initialize(nil)
		assert.Nil(t, e.Latest())
		assert.Equal(t, 100.0, e.AddNewValue(100))
	})

	t.Run("seed on top of existing value", func(t *testing.T) {
		e := NewEwmaCalculator(0.5)
		e.AddNewValue(100)
		e.Initialize([]float64{110})
		assert.InDelta(t, 105.0, *e.Latest(), 1e-9)
	})
}

func TestObservableEWMA(t *testing.T) {
	c := clock.NewManual(t0)
	fv := &fakeFV{}
	e := NewObservableEWMA(zap.NewNop(), c, fv, 0)

	var updates []float64
	e.Updated().On(func(v float64) { updates = append(updates, v) })

	assert.Nil(t, e.Latest())

	fv.fv = &domain.FairValue{Price: 100}
	c.Advance(time.Minute)
	require.NotNil(t, e.Latest())
	assert.Equal(t, []float64{100}, updates)

	fv.fv = &domain.FairValue{Price: 100.0005}
	c.Advance(time.Minute)
	assert.Len(t, updates, 1, "moves within 1e-3 are ignored")

	fv.fv = &domain.FairValue{Price: 110}
	c.Advance(30 * time.Second)
	assert.Len(t, updates, 1, "sampled once a minute")
	c.Advance(30 * time.Second)
	require.Len(t, updates, 2)
	assert.InDelta(t, 100.95, updates[1], 1e-9)
}
