// Package position decides how much base currency the bot wants to hold.
package position

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

const (
	regularFairValueInterval = time.Hour
	leanMultiplier           = 5
	targetBaseEpsilon        = 0.05
)

// TickSource minimum price increment of the pair.
type TickSource interface {
	MinTickIncrement() float64
}

// FairValueSource current fair value.
type FairValueSource interface {
	LatestFairValue() *domain.FairValue
}

// Averager running average fed one value at a time.
type Averager interface {
	AddNewValue(v float64) float64
}

// Manager samples the fair value hourly and turns the short/long EWMA ratio into a lean in [-1, 1].
type Manager struct {
	l         *zap.Logger
	c         clock.Clock
	details   TickSource
	persister storage.Sink[domain.RegularFairValue]
	fv        FairValueSource
	short     Averager
	long      Averager

	data   []domain.RegularFairValue
	latest float64
	timer  *clock.RegularTimer

	newTargetPosition evt.Event[float64]
}

// NewManager resumes the hourly schedule from the last sample in initial.
func NewManager(
	l *zap.Logger,
	c clock.Clock,
	details TickSource,
	persister storage.Sink[domain.RegularFairValue],
	fv FairValueSource,
	initial []domain.RegularFairValue,
	short, long Averager,
) *Manager {
	m := &Manager{
		l:         l.With(zap.String("component", "rfv")),
		c:         c,
		details:   details,
		persister: persister,
		fv:        fv,
		short:     short,
		long:      long,
		data:      append([]domain.RegularFairValue(nil), initial...),
	}

	var last time.Time
	if len(initial) > 0 {
		last = initial[len(initial)-1].Time
	}
	m.timer = clock.NewRegularTimer(c, m.updateEwmaValues, regularFairValueInterval, last)

	return m
}

// Lean maps the short/long EWMA ratio to [-1, 1], five ticks of relative divergence saturating it.
func Lean(short, long, tick float64) float64 {
	factor := 1 / tick
	v := (short*factor/long - factor) * leanMultiplier
	return math.Max(-1, math.Min(1, v))
}

func (m *Manager) updateEwmaValues() {
	fv := m.fv.LatestFairValue()
	if fv == nil {
		return
	}

	rfv := domain.RegularFairValue{Time: m.c.Now(), Value: fv.Price}
	newShort := m.short.AddNewValue(fv.Price)
	newLong := m.long.AddNewValue(fv.Price)
	tick := m.details.MinTickIncrement()

	target := Lean(newShort, newLong, tick)
	if math.Abs(target-m.latest) > tick {
		m.latest = target
		m.newTargetPosition.Trigger(target)
	}

	m.l.Info("recalculated regular fair value",
		zap.Float64("short", newShort),
		zap.Float64("long", newLong),
		zap.Float64("target", m.latest),
		zap.Float64("fv", fv.Price),
	)

	m.data = append(m.data, rfv)
	m.persister.Persist(rfv)
}

// LatestTargetPosition returns the current lean.
func (m *Manager) LatestTargetPosition() float64 { return m.latest }

// NewTargetPosition fires when the lean moved by more than a tick.
func (m *Manager) NewTargetPosition() *evt.Event[float64] { return &m.newTargetPosition }

// Stop halts the hourly sampling.
func (m *Manager) Stop() { m.timer.Stop() }

// LeanSource the position manager's view.
type LeanSource interface {
	LatestTargetPosition() float64
	NewTargetPosition() *evt.Event[float64]
}

// ParametersSource current quoting parameters and their changes.
type ParametersSource interface {
	Latest() domain.QuotingParameters
	NewParameters() *evt.Event[domain.QuotingParameters]
}

// ReportSource latest position report and its changes.
type ReportSource interface {
	LatestReport() *domain.PositionReport
	NewReport() *evt.Event[domain.PositionReport]
}

// TargetBasePositionManager target base inventory, manual or derived from the lean.
type TargetBasePositionManager struct {
	l         *zap.Logger
	c         clock.Clock
	lean      LeanSource
	params    ParametersSource
	positions ReportSource
	pub       messaging.Publisher[domain.TargetBasePositionValue]
	persister storage.Sink[domain.TargetBasePositionValue]

	latest *domain.TargetBasePositionValue

	newTargetPosition evt.Event[domain.TargetBasePositionValue]
}

// NewTargetBasePositionManager recomputes on position reports, parameter changes and lean changes.
func NewTargetBasePositionManager(
	l *zap.Logger,
	c clock.Clock,
	lean LeanSource,
	params ParametersSource,
	positions ReportSource,
	pub messaging.Publisher[domain.TargetBasePositionValue],
	persister storage.Sink[domain.TargetBasePositionValue],
) *TargetBasePositionManager {
	t := &TargetBasePositionManager{
		l:         l.With(zap.String("component", "position-manager")),
		c:         c,
		lean:      lean,
		params:    params,
		positions: positions,
		pub:       pub,
		persister: persister,
	}

	pub.RegisterSnapshot(func() []domain.TargetBasePositionValue {
		if t.latest == nil {
			return nil
		}
		return []domain.TargetBasePositionValue{*t.latest}
	})
	positions.NewReport().On(func(domain.PositionReport) { t.recompute() })
	params.NewParameters().On(func(domain.QuotingParameters) { t.recompute() })
	lean.NewTargetPosition().On(func(float64) { t.recompute() })

	return t
}

func (t *TargetBasePositionManager) recompute() {
	report := t.positions.LatestReport()
	if report == nil {
		return
	}
	params := t.params.Latest()

	target := params.TargetBasePosition
	if params.AutoPositionMode == domain.AutoPositionModeEwmaBasic {
		target = (1 + t.lean.LatestTargetPosition()) / 2 * report.Value
	}

	if t.latest != nil && math.Abs(t.latest.Data-target) <= targetBaseEpsilon {
		return
	}

	v := domain.TargetBasePositionValue{Data: target, Time: t.c.Now()}
	t.latest = &v
	t.newTargetPosition.Trigger(v)
	t.pub.Publish(v)
	t.persister.Persist(v)
	t.l.Info("recalculated target base position", zap.Float64("target", target))
}

// LatestTargetPosition returns the current target, nil before the first position report.
func (t *TargetBasePositionManager) LatestTargetPosition() *domain.TargetBasePositionValue {
	return t.latest
}

// NewTargetPosition fires when the target moved by more than 0.05.
func (t *TargetBasePositionManager) NewTargetPosition() *evt.Event[domain.TargetBasePositionValue] {
	return &t.newTargetPosition
}
