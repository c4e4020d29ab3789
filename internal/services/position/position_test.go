package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/services/statistics"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type tick float64

func (t tick) MinTickIncrement() float64 { return float64(t) }

type fakeFV struct{ fv *domain.FairValue }

func (f *fakeFV) LatestFairValue() *domain.FairValue { return f.fv }

func TestLean(t *testing.T) {
	tests := []struct {
		name        string
		short, long float64
		tick        float64
		want        float64
	}{
		{"flat", 100, 100, 0.01, 0},
		{"small rise", 100.001, 100, 0.01, 0.005},
		{"saturates up", 101, 100, 0.01, 1},
		{"saturates down", 99, 100, 0.01, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Lean(tt.short, tt.long, tt.tick), 1e-6)
		})
	}
}

func TestManager_HourlySamples(t *testing.T) {
	c := clock.NewManual(t0)
	fv := &fakeFV{fv: &domain.FairValue{Price: 100}}
	store := storage.NewMemoryStore(domain.RegularFairValue{})
	params := domain.DefaultQuotingParameters()

	m := NewManager(zap.NewNop(), c, tick(0.01), store, fv, nil,
		statistics.NewEwmaCalculator(params.ShortEwma), statistics.NewEwmaCalculator(params.LongEwma))

	var leans []float64
	m.NewTargetPosition().On(func(v float64) { leans = append(leans, v) })

	rows := store.Rows()
	require.Len(t, rows, 1, "first sample is taken at start without history")
	assert.Equal(t, domain.RegularFairValue{Time: t0, Value: 100}, rows[0])
	assert.Zero(t, m.LatestTargetPosition())

	fv.fv = &domain.FairValue{Price: 101}
	c.Advance(time.Hour)

	require.Len(t, store.Rows(), 2)
	require.Len(t, leans, 1)
	// short 100.19, long 100.095
	assert.InDelta(t, (100.19/100.095-1)/0.01*5, m.LatestTargetPosition(), 1e-9)

	t.Run("no fair value skips the sample", func(t *testing.T) {
		fv.fv = nil
		c.Advance(time.Hour)
		assert.Len(t, store.Rows(), 2)
	})
}

func TestManager_ResumesFromLastSample(t *testing.T) {
	c := clock.NewManual(t0)
	fv := &fakeFV{fv: &domain.FairValue{Price: 100}}
	store := storage.NewMemoryStore(domain.RegularFairValue{})
	initial := []domain.RegularFairValue{
		{Time: t0.Add(-90 * time.Minute), Value: 99},
		{Time: t0.Add(-30 * time.Minute), Value: 100},
	}

	m := NewManager(zap.NewNop(), c, tick(0.01), store, fv, initial,
		statistics.NewEwmaCalculator(0.19), statistics.NewEwmaCalculator(0.095))
	defer m.Stop()

	c.Advance(29 * time.Minute)
	assert.Empty(t, store.Rows())

	c.Advance(time.Minute)
	assert.Len(t, store.Rows(), 1)

	c.Advance(time.Hour)
	assert.Len(t, store.Rows(), 2)
}

type fakeLean struct {
	v  float64
	ev evt.Event[float64]
}

func (f *fakeLean) LatestTargetPosition() float64          { return f.v }
func (f *fakeLean) NewTargetPosition() *evt.Event[float64] { return &f.ev }

type fakeParams struct {
	p  domain.QuotingParameters
	ev evt.Event[domain.QuotingParameters]
}

func (f *fakeParams) Latest() domain.QuotingParameters                    { return f.p }
func (f *fakeParams) NewParameters() *evt.Event[domain.QuotingParameters] { return &f.ev }

type fakeReports struct {
	r  *domain.PositionReport
	ev evt.Event[domain.PositionReport]
}

func (f *fakeReports) LatestReport() *domain.PositionReport         { return f.r }
func (f *fakeReports) NewReport() *evt.Event[domain.PositionReport] { return &f.ev }

func TestTargetBasePositionManager(t *testing.T) {
	c := clock.NewManual(t0)
	lean := &fakeLean{}
	params := &fakeParams{p: domain.DefaultQuotingParameters()}
	reports := &fakeReports{}
	pub := &messaging.Recorder[domain.TargetBasePositionValue]{}
	store := storage.NewMemoryStore(domain.TargetBasePositionValue{})

	tbp := NewTargetBasePositionManager(zap.NewNop(), c, lean, params, reports, pub, store)

	setParams := func(mutate func(p *domain.QuotingParameters)) {
		mutate(&params.p)
		params.ev.Trigger(params.p)
	}

	t.Run("nothing without a position report", func(t *testing.T) {
		setParams(func(p *domain.QuotingParameters) {})
		assert.Nil(t, tbp.LatestTargetPosition())
		assert.Empty(t, pub.Snapshot())
	})

	t.Run("manual target", func(t *testing.T) {
		reports.r = &domain.PositionReport{Value: 10}
		reports.ev.Trigger(*reports.r)
		require.NotNil(t, tbp.LatestTargetPosition())
		assert.Equal(t, domain.TargetBasePositionValue{Data: 3, Time: t0}, *tbp.LatestTargetPosition())
		assert.Len(t, pub.Messages, 1)
	})

	t.Run("small moves are suppressed", func(t *testing.T) {
		setParams(func(p *domain.QuotingParameters) { p.TargetBasePosition = 3.04 })
		assert.Len(t, pub.Messages, 1)

		setParams(func(p *domain.QuotingParameters) { p.TargetBasePosition = 3.1 })
		assert.Len(t, pub.Messages, 2)
		assert.Equal(t, 3.1, tbp.LatestTargetPosition().Data)
	})

	t.Run("ewma basic follows the lean", func(t *testing.T) {
		setParams(func(p *domain.QuotingParameters) { p.AutoPositionMode = domain.AutoPositionModeEwmaBasic })
		assert.InDelta(t, 5.0, tbp.LatestTargetPosition().Data, 1e-9)

		lean.v = 0.5
		lean.ev.Trigger(0.5)
		assert.InDelta(t, 7.5, tbp.LatestTargetPosition().Data, 1e-9)
		assert.Len(t, store.Rows(), 4)
	})
}
