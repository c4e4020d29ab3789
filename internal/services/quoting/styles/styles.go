// Package styles turns the filtered book and fair value into an unrounded two-sided quote.
package styles

import (
	"math"

	"github.com/vadiminshakov/tribeca/internal/domain"
)

// topSizeStepIn a top level larger than this is improved by one tick in Top, InverseTop and PingPong.
const topSizeStepIn = 0.2

// Input everything a style may look at.
type Input struct {
	Market  *domain.Market
	FV      domain.FairValue
	Params  domain.QuotingParameters
	MinTick float64
}

// GeneratedQuote unrounded prices and sizes.
type GeneratedQuote struct {
	BidPx float64
	BidSz float64
	AskPx float64
	AskSz float64
}

// Style a quoting mode.
type Style interface {
	Mode() domain.QuotingMode
	// GenerateQuote returns false when the style cannot quote.
	GenerateQuote(in Input) (GeneratedQuote, bool)
}

type styleFunc struct {
	mode domain.QuotingMode
	fn   func(in Input) (GeneratedQuote, bool)
}

func (s styleFunc) Mode() domain.QuotingMode { return s.mode }

func (s styleFunc) GenerateQuote(in Input) (GeneratedQuote, bool) {
	if !in.Market.HasBothSides() {
		return GeneratedQuote{}, false
	}
	return s.fn(in)
}

// Mid quotes width around the fair value.
func Mid() Style {
	return styleFunc{mode: domain.QuotingModeMid, fn: func(in Input) (GeneratedQuote, bool) {
		return GeneratedQuote{
			BidPx: math.Max(in.FV.Price-in.Params.Width, 0),
			BidSz: in.Params.Size,
			AskPx: in.FV.Price + in.Params.Width,
			AskSz: in.Params.Size,
		}, true
	}}
}

// Top steps one tick inside large top levels, never closer than half the width to the fair value.
func Top() Style {
	return styleFunc{mode: domain.QuotingModeTop, fn: func(in Input) (GeneratedQuote, bool) {
		return topJoin(in, true), true
	}}
}

// Join joins the top levels, never closer than half the width to the fair value.
func Join() Style {
	return styleFunc{mode: domain.QuotingModeJoin, fn: func(in Input) (GeneratedQuote, bool) {
		return topJoin(in, false), true
	}}
}

// PingPong quotes like Top. The engine keeps its sides away from the last opposite fills.
func PingPong() Style {
	return styleFunc{mode: domain.QuotingModePingPong, fn: func(in Input) (GeneratedQuote, bool) {
		return topJoin(in, true), true
	}}
}

// InverseJoin quotes outside the top of a wide market and widens a narrow one.
func InverseJoin() Style {
	return styleFunc{mode: domain.QuotingModeInverseJoin, fn: func(in Input) (GeneratedQuote, bool) {
		return inverseJoin(in, false), true
	}}
}

// InverseTop is InverseJoin stepping one tick inside large top levels.
func InverseTop() Style {
	return styleFunc{mode: domain.QuotingModeInverseTop, fn: func(in Input) (GeneratedQuote, bool) {
		return inverseJoin(in, true), true
	}}
}

// Depth quotes at the first level where cumulative size reaches the width.
func Depth() Style {
	return styleFunc{mode: domain.QuotingModeDepth, fn: func(in Input) (GeneratedQuote, bool) {
		depth := in.Params.Width
		return GeneratedQuote{
			BidPx: priceAtDepth(in.Market.Bids, depth),
			BidSz: in.Params.Size,
			AskPx: priceAtDepth(in.Market.Asks, depth),
			AskSz: in.Params.Size,
		}, true
	}}
}

// All returns every built-in style.
func All() []Style {
	return []Style{Top(), Mid(), Join(), InverseJoin(), InverseTop(), PingPong(), Depth()}
}

func priceAtDepth(levels []domain.MarketSide, depth float64) float64 {
	px := levels[0].Price
	var cum float64
	for _, l := range levels {
		cum += l.Size
		if cum >= depth {
			break
		}
		px = l.Price
	}
	return px
}

// topLevel first level larger than stepOverSize, looking at most one level deep.
func topLevel(levels []domain.MarketSide, stepOverSize float64) domain.MarketSide {
	if levels[0].Size > stepOverSize || len(levels) < 2 {
		return levels[0]
	}
	return levels[1]
}

func quoteAtTopOfMarket(in Input) GeneratedQuote {
	bid := topLevel(in.Market.Bids, in.Params.StepOverSize)
	ask := topLevel(in.Market.Asks, in.Params.StepOverSize)
	return GeneratedQuote{BidPx: bid.Price, BidSz: bid.Size, AskPx: ask.Price, AskSz: ask.Size}
}

func topJoin(in Input, stepIn bool) GeneratedQuote {
	q := quoteAtTopOfMarket(in)

	if stepIn && q.BidSz > topSizeStepIn {
		q.BidPx += in.MinTick
	}
	q.BidPx = math.Min(in.FV.Price-in.Params.Width/2, q.BidPx)

	if stepIn && q.AskSz > topSizeStepIn {
		q.AskPx -= in.MinTick
	}
	q.AskPx = math.Max(in.FV.Price+in.Params.Width/2, q.AskPx)

	q.BidSz = in.Params.Size
	q.AskSz = in.Params.Size
	return q
}

func inverseJoin(in Input, stepIn bool) GeneratedQuote {
	q := quoteAtTopOfMarket(in)
	width := in.Params.Width

	mktWidth := math.Abs(q.AskPx - q.BidPx)
	if mktWidth > width {
		q.AskPx += width
		q.BidPx -= width
	}

	if stepIn {
		if q.BidSz > topSizeStepIn {
			q.BidPx += in.MinTick
		}
		if q.AskSz > topSizeStepIn {
			q.AskPx -= in.MinTick
		}
	}

	if mktWidth < 2*width/3 {
		q.AskPx += width / 4
		q.BidPx -= width / 4
	}

	q.BidSz = in.Params.Size
	q.AskSz = in.Params.Size
	return q
}
