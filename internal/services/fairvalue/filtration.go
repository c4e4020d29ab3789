// Package fairvalue derives the book the quoting engine sees and the fair value it quotes around.
package fairvalue

import (
	"math"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
)

// minFilteredSize levels at or below this size after filtering are dropped.
const minFilteredSize = 0.001

// MarketSource the current book and its change notifications.
type MarketSource interface {
	CurrentBook() *domain.Market
	MarketData() *evt.Event[*domain.Market]
}

// QuotesSource our own resting quote orders.
type QuotesSource interface {
	QuotesSent(side domain.Side) []domain.QuoteOrder
}

// TickSource minimum price increment of the pair.
type TickSource interface {
	MinTickIncrement() float64
}

// MarketFiltration removes our own resting quotes from the book.
type MarketFiltration struct {
	details   TickSource
	scheduler *clock.Scheduler
	quoter    QuotesSource
	md        MarketSource

	latest  *domain.Market
	changed evt.Event[*domain.Market]
}

// NewMarketFiltration recomputes the filtered book at most once per loop turn after market data changes.
func NewMarketFiltration(details TickSource, scheduler *clock.Scheduler, quoter QuotesSource, md MarketSource) *MarketFiltration {
	f := &MarketFiltration{details: details, scheduler: scheduler, quoter: quoter, md: md}
	md.MarketData().On(func(*domain.Market) { scheduler.Schedule(f.filterFullMarket) })
	return f
}

func (f *MarketFiltration) filterFullMarket() {
	mkt := f.md.CurrentBook()
	if !mkt.HasBothSides() {
		f.set(nil)
		return
	}

	filtered := &domain.Market{
		Bids: f.FilterSide(mkt.Bids, domain.SideBid),
		Asks: f.FilterSide(mkt.Asks, domain.SideAsk),
		Time: mkt.Time,
	}
	if !filtered.HasBothSides() {
		f.set(nil)
		return
	}
	f.set(filtered)
}

// FilterSide returns a copy of levels with the sizes of our quotes on side subtracted.
func (f *MarketFiltration) FilterSide(levels []domain.MarketSide, side domain.Side) []domain.MarketSide {
	tick := f.details.MinTickIncrement()

	copied := make([]domain.MarketSide, len(levels))
	copy(copied, levels)

	for _, q := range f.quoter.QuotesSent(side) {
		for i := range copied {
			if math.Abs(q.Quote.Price-copied[i].Price) < tick {
				copied[i].Size -= q.Quote.Size
			}
		}
	}

	out := copied[:0]
	for _, m := range copied {
		if m.Size > minFilteredSize {
			out = append(out, m)
		}
	}
	return out
}

func (f *MarketFiltration) set(m *domain.Market) {
	f.latest = m
	f.changed.Trigger(m)
}

// LatestFilteredMarket returns the last filtered book, nil when a side is empty.
func (f *MarketFiltration) LatestFilteredMarket() *domain.Market { return f.latest }

// FilteredMarketChanged fires after every recomputation.
func (f *MarketFiltration) FilteredMarketChanged() *evt.Event[*domain.Market] { return &f.changed }
