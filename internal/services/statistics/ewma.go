// Package statistics exponential moving averages of the fair value.
package statistics

import (
	"math"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
)

const (
	// DefaultQuotingAlpha smoothing of the quoting EWMA when none is configured.
	DefaultQuotingAlpha = 0.095

	quotingEwmaInterval = time.Minute
	quotingEwmaEpsilon  = 1e-3
)

// ComputeEwma folds v into previous. The first value seeds the average.
func ComputeEwma(v float64, previous *float64, alpha float64) float64 {
	if previous == nil {
		return v
	}
	return alpha*v + (1-alpha)*(*previous)
}

// EwmaCalculator plain EWMA with a fixed alpha.
type EwmaCalculator struct {
	alpha  float64
	latest *float64
}

// NewEwmaCalculator creates an empty calculator.
func NewEwmaCalculator(alpha float64) *EwmaCalculator {
	return &EwmaCalculator{alpha: alpha}
}

// Initialize replays seed through the average.
func (e *EwmaCalculator) Initialize(seed []float64) {
	if e.latest != nil {
		for _, v := range seed {
			e.AddNewValue(v)
		}
		return
	}
	if len(seed) == 0 {
		return
	}

	// a one-period EMA starts at the first value and then weights new values by Smoothing/2
	ema := &trend.Ema[float64]{Period: 1, Smoothing: 2 * e.alpha}
	values := helper.ChanToSlice(ema.Compute(helper.SliceToChan(seed)))
	if len(values) > 0 {
		last := values[len(values)-1]
		e.latest = &last
	}
}

// AddNewValue folds v in and returns the new average.
func (e *EwmaCalculator) AddNewValue(v float64) float64 {
	next := ComputeEwma(v, e.latest, e.alpha)
	e.latest = &next
	return next
}

// Latest returns the current average, nil before any value.
func (e *EwmaCalculator) Latest() *float64 { return e.latest }

// FairValueSource current fair value.
type FairValueSource interface {
	LatestFairValue() *domain.FairValue
}

// ObservableEWMA samples the fair value every minute and notifies when the average moves.
type ObservableEWMA struct {
	l      *zap.Logger
	fv     FairValueSource
	alpha  float64
	latest *float64

	updated evt.Event[float64]
}

// NewObservableEWMA samples immediately and then once a minute. A non-positive alpha uses DefaultQuotingAlpha.
func NewObservableEWMA(l *zap.Logger, c clock.Clock, fv FairValueSource, alpha float64) *ObservableEWMA {
	if alpha <= 0 {
		alpha = DefaultQuotingAlpha
	}
	e := &ObservableEWMA{l: l.With(zap.String("component", "ewma")), fv: fv, alpha: alpha}

	c.Every(quotingEwmaInterval, e.onTick)
	e.onTick()

	return e
}

func (e *ObservableEWMA) onTick() {
	fv := e.fv.LatestFairValue()
	if fv == nil {
		e.l.Info("unable to compute EWMA value")
		return
	}

	v := ComputeEwma(fv.Price, e.latest, e.alpha)
	if e.latest != nil && math.Abs(v-*e.latest) <= quotingEwmaEpsilon {
		return
	}

	e.latest = &v
	e.l.Info("new EWMA value", zap.Float64("value", v))
	e.updated.Trigger(v)
}

// Latest returns the quoting EWMA, nil until the first fair value.
func (e *ObservableEWMA) Latest() *float64 { return e.latest }

// Updated fires when the average moved by more than 1e-3.
func (e *ObservableEWMA) Updated() *evt.Event[float64] { return &e.updated }
