package fairvalue

import (
	"math"

	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/rounding"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

// ParametersSource current quoting parameters and their changes.
type ParametersSource interface {
	Latest() domain.QuotingParameters
	NewParameters() *evt.Event[domain.QuotingParameters]
}

// Engine computes the fair value from the top of the filtered book.
// A new value replaces the old one only when it moved by at least one tick.
type Engine struct {
	l          *zap.Logger
	c          clock.Clock
	details    TickSource
	filtration *MarketFiltration
	params     ParametersSource
	pub        messaging.Publisher[domain.FairValue]
	persister  storage.Sink[domain.FairValue]

	latest  *domain.FairValue
	changed evt.Event[*domain.FairValue]
}

// NewEngine recalculates on parameter and filtered book changes.
func NewEngine(
	l *zap.Logger,
	c clock.Clock,
	details TickSource,
	filtration *MarketFiltration,
	params ParametersSource,
	pub messaging.Publisher[domain.FairValue],
	persister storage.Sink[domain.FairValue],
) *Engine {
	e := &Engine{
		l:          l.With(zap.String("component", "fair-value")),
		c:          c,
		details:    details,
		filtration: filtration,
		params:     params,
		pub:        pub,
		persister:  persister,
	}

	params.NewParameters().On(func(domain.QuotingParameters) { e.recalc() })
	filtration.FilteredMarketChanged().On(func(*domain.Market) { e.recalc() })
	pub.RegisterSnapshot(func() []domain.FairValue {
		if e.latest == nil {
			return nil
		}
		return []domain.FairValue{*e.latest}
	})

	return e
}

func (e *Engine) recalc() {
	mkt := e.filtration.LatestFilteredMarket()
	if !mkt.HasBothSides() {
		e.set(nil)
		return
	}

	t := mkt.Time
	if t.IsZero() {
		t = e.c.Now()
	}

	price := ComputeFV(mkt.Asks[0], mkt.Bids[0], e.params.Latest().FvModel, e.details.MinTickIncrement())
	e.set(&domain.FairValue{Price: price, Time: t})
}

func (e *Engine) set(fv *domain.FairValue) {
	if e.latest == nil && fv == nil {
		return
	}
	if e.latest != nil && fv != nil && math.Abs(e.latest.Price-fv.Price) < e.details.MinTickIncrement() {
		return
	}

	e.latest = fv
	e.changed.Trigger(fv)
	if fv == nil {
		e.l.Info("fair value unavailable")
		return
	}
	e.pub.Publish(*fv)
	e.persister.Persist(*fv)
}

// ComputeFVUnrounded applies the fair value model to the best levels.
func ComputeFVUnrounded(ask, bid domain.MarketSide, model domain.FairValueModel) float64 {
	switch model {
	case domain.FairValueModelWBBO:
		return (ask.Price*ask.Size + bid.Price*bid.Size) / (ask.Size + bid.Size)
	default:
		return (ask.Price + bid.Price) / 2
	}
}

// ComputeFV returns the fair value rounded to the nearest tick.
func ComputeFV(ask, bid domain.MarketSide, model domain.FairValueModel, tick float64) float64 {
	return rounding.RoundNearest(ComputeFVUnrounded(ask, bid, model), tick)
}

// LatestFairValue returns the current fair value, nil when the book is unusable.
func (e *Engine) LatestFairValue() *domain.FairValue { return e.latest }

// FairValueChanged fires when the fair value moved by at least a tick or became unavailable.
func (e *Engine) FairValueChanged() *evt.Event[*domain.FairValue] { return &e.changed }
