// Package quoting computes the two-sided quote the bot wants on the exchange.
package quoting

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/rounding"
	"github.com/vadiminshakov/tribeca/internal/services/quoting/styles"
)

const (
	recalcInterval = time.Second

	sizeChangeEpsilon      = 5e-3
	publishedSizeEpsilon   = 1e-3
	narrowingDebounceDelay = 300 * time.Millisecond
)

// FilteredMarketSource book without our own quotes.
type FilteredMarketSource interface {
	LatestFilteredMarket() *domain.Market
	FilteredMarketChanged() *evt.Event[*domain.Market]
}

// FairValueSource current fair value.
type FairValueSource interface {
	LatestFairValue() *domain.FairValue
}

// ParametersSource current quoting parameters and their changes.
type ParametersSource interface {
	Latest() domain.QuotingParameters
	NewParameters() *evt.Event[domain.QuotingParameters]
}

// TradeSource own fills.
type TradeSource interface {
	Trade() *evt.Event[domain.Trade]
}

// PositionSource latest position report.
type PositionSource interface {
	LatestReport() *domain.PositionReport
}

// TickSource minimum price increment of the pair.
type TickSource interface {
	MinTickIncrement() float64
}

// EwmaSource quoting EWMA of the fair value.
type EwmaSource interface {
	Latest() *float64
	Updated() *evt.Event[float64]
}

// TargetPositionSource target base position.
type TargetPositionSource interface {
	LatestTargetPosition() *domain.TargetBasePositionValue
	NewTargetPosition() *evt.Event[domain.TargetBasePositionValue]
}

// SafetySource trade safety.
type SafetySource interface {
	Latest() *domain.TradeSafety
	NewValue() *evt.Event[domain.TradeSafety]
}

// Inputs collaborators of the Engine.
type Inputs struct {
	Registry       *styles.Registry
	FilteredMarket FilteredMarketSource
	FairValue      FairValueSource
	Params         ParametersSource
	Publisher      messaging.Publisher[domain.TwoSidedQuote]
	Trades         TradeSource
	Positions      PositionSource
	Details        TickSource
	Ewma           EwmaSource
	TargetPosition TargetPositionSource
	Safety         SafetySource
}

// Engine runs the selected style and applies protections, inventory limits and safety
// gating before rounding to the tick. Small changes keep the previous quote.
type Engine struct {
	l  *zap.Logger
	c  clock.Clock
	in Inputs

	latest       *domain.TwoSidedQuote
	quoteChanged evt.Event[*domain.TwoSidedQuote]
}

// NewEngine recalculates on every input change and once a second.
func NewEngine(l *zap.Logger, c clock.Clock, in Inputs) *Engine {
	e := &Engine{l: l.With(zap.String("component", "quoting-engine")), c: c, in: in}

	recalcNow := func() { e.recalc(c.Now()) }

	in.FilteredMarket.FilteredMarketChanged().On(func(m *domain.Market) {
		if m != nil && !m.Time.IsZero() {
			e.recalc(m.Time)
			return
		}
		recalcNow()
	})
	in.Params.NewParameters().On(func(domain.QuotingParameters) { recalcNow() })
	in.Trades.Trade().On(func(domain.Trade) { recalcNow() })
	in.Ewma.Updated().On(func(float64) { recalcNow() })
	in.TargetPosition.NewTargetPosition().On(func(domain.TargetBasePositionValue) { recalcNow() })
	in.Safety.NewValue().On(func(domain.TradeSafety) { recalcNow() })
	in.Publisher.RegisterSnapshot(func() []domain.TwoSidedQuote {
		if e.latest == nil {
			return nil
		}
		return []domain.TwoSidedQuote{*e.latest}
	})
	c.Every(recalcInterval, recalcNow)

	return e
}

func (e *Engine) recalc(t time.Time) {
	fv := e.in.FairValue.LatestFairValue()
	mkt := e.in.FilteredMarket.LatestFilteredMarket()
	if fv == nil || mkt == nil {
		e.set(nil)
		return
	}

	bid, ask, ok := e.computeQuote(mkt, *fv)
	if !ok {
		e.set(nil)
		return
	}

	e.set(&domain.TwoSidedQuote{
		Bid:  e.quotesAreSame(bid, e.latest, domain.SideBid),
		Ask:  e.quotesAreSame(ask, e.latest, domain.SideAsk),
		Time: t,
	})
}

func (e *Engine) computeQuote(mkt *domain.Market, fv domain.FairValue) (bid, ask *domain.Quote, ok bool) {
	params := e.in.Params.Latest()
	tick := e.in.Details.MinTickIncrement()

	gen, ok := e.in.Registry.Get(params.Mode).GenerateQuote(styles.Input{
		Market:  mkt,
		FV:      fv,
		Params:  params,
		MinTick: tick,
	})
	if !ok {
		return nil, nil, false
	}
	bid = &domain.Quote{Price: gen.BidPx, Size: gen.BidSz}
	ask = &domain.Quote{Price: gen.AskPx, Size: gen.AskSz}

	if ewma := e.in.Ewma.Latest(); params.EwmaProtection && ewma != nil {
		if *ewma > ask.Price {
			ask.Price = *ewma
		}
		if *ewma < bid.Price {
			bid.Price = *ewma
		}
	}

	tbp := e.in.TargetPosition.LatestTargetPosition()
	pos := e.in.Positions.LatestReport()
	if tbp == nil || pos == nil {
		e.l.Warn("cannot compute a quote since no position report exists")
		return nil, nil, false
	}

	totalBase := pos.TotalBase()
	if totalBase < tbp.Data-params.PositionDivergence {
		ask = nil
		if params.AggressivePositionRebalancing {
			bid.Size = math.Min(params.AprMultiplier*params.Size, tbp.Data-totalBase)
		}
	}
	if totalBase > tbp.Data+params.PositionDivergence {
		bid = nil
		if params.AggressivePositionRebalancing && ask != nil {
			ask.Size = math.Min(params.AprMultiplier*params.Size, totalBase-tbp.Data)
		}
	}

	safety := e.in.Safety.Latest()
	if safety == nil {
		return nil, nil, false
	}

	if params.Mode == domain.QuotingModePingPong {
		if ask != nil && safety.BuyPing != 0 && ask.Price < safety.BuyPing+params.Width {
			ask.Price = safety.BuyPing + params.Width
		}
		if bid != nil && safety.SellPong != 0 && bid.Price > safety.SellPong-params.Width {
			bid.Price = safety.SellPong - params.Width
		}
	}

	if safety.Sell > params.TradesPerMinute {
		ask = nil
	}
	if safety.Buy > params.TradesPerMinute {
		bid = nil
	}

	floor := tick
	if bid != nil {
		bid.Price = math.Max(0, rounding.RoundDown(bid.Price, tick))
		bid.Size = math.Max(tick, rounding.RoundDown(bid.Size, tick))
		floor = bid.Price + tick
	}
	if ask != nil {
		ask.Price = math.Max(floor, rounding.RoundUp(ask.Price, tick))
		ask.Size = math.Max(tick, rounding.RoundDown(ask.Size, tick))
	}

	return bid, ask, true
}

// quotesAreSame keeps the previous side when the new one only moved within a tick,
// or narrowed shortly after the previous quote.
func (e *Engine) quotesAreSame(q *domain.Quote, prev *domain.TwoSidedQuote, side domain.Side) *domain.Quote {
	if q == nil {
		return nil
	}
	if prev == nil {
		return q
	}

	prevQ := prev.Bid
	if side == domain.SideAsk {
		prevQ = prev.Ask
	}
	if prevQ == nil {
		return q
	}

	if math.Abs(q.Size-prevQ.Size) > sizeChangeEpsilon {
		return q
	}
	if math.Abs(q.Price-prevQ.Price) < e.in.Details.MinTickIncrement() {
		return prevQ
	}

	narrowed := (side == domain.SideBid && prevQ.Price < q.Price) ||
		(side == domain.SideAsk && prevQ.Price > q.Price)
	age := e.c.Now().Sub(prev.Time)
	if narrowed && age < narrowingDebounceDelay && age > -narrowingDebounceDelay {
		return prevQ
	}
	return q
}

func (e *Engine) set(q *domain.TwoSidedQuote) {
	if !quotesChanged(e.latest, q, e.in.Details.MinTickIncrement()) {
		return
	}

	e.latest = q
	e.quoteChanged.Trigger(q)
	if q == nil {
		e.in.Publisher.Publish(domain.TwoSidedQuote{Time: e.c.Now()})
		return
	}
	e.in.Publisher.Publish(*q)
}

func quoteChanged(o, n *domain.Quote, tick float64) bool {
	if (o == nil) != (n == nil) {
		return true
	}
	if o == nil {
		return false
	}
	if math.Abs(o.Price-n.Price) > tick {
		return true
	}
	return math.Abs(o.Size-n.Size) > publishedSizeEpsilon
}

func quotesChanged(o, n *domain.TwoSidedQuote, tick float64) bool {
	if (o == nil) != (n == nil) {
		return true
	}
	if o == nil {
		return false
	}
	return quoteChanged(o.Bid, n.Bid, tick) || quoteChanged(o.Ask, n.Ask, tick)
}

// LatestQuote returns the current quote, nil when the engine cannot quote.
func (e *Engine) LatestQuote() *domain.TwoSidedQuote { return e.latest }

// QuoteChanged fires when the published quote changes.
func (e *Engine) QuoteChanged() *evt.Event[*domain.TwoSidedQuote] { return &e.quoteChanged }
