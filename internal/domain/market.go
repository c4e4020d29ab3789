package domain

import "time"

// MarketSide one price level.
type MarketSide struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Market book snapshot, both sides best-first.
type Market struct {
	Bids []MarketSide `json:"bids"`
	Asks []MarketSide `json:"asks"`
	Time time.Time    `json:"time"`
}

// HasBothSides reports whether the book has at least one level per side.
func (m *Market) HasBothSides() bool {
	return m != nil && len(m.Bids) > 0 && len(m.Asks) > 0
}

// Crossed reports whether the best bid is at or above the best ask.
func (m *Market) Crossed() bool {
	if !m.HasBothSides() {
		return false
	}
	return m.Bids[0].Price >= m.Asks[0].Price
}

// Mid returns the top-of-book midpoint.
func (m *Market) Mid() (float64, bool) {
	if !m.HasBothSides() {
		return 0, false
	}
	return (m.Bids[0].Price + m.Asks[0].Price) / 2, true
}

// Top returns a copy limited to depth levels per side.
func (m *Market) Top(depth int) Market {
	take := func(levels []MarketSide) []MarketSide {
		if len(levels) > depth {
			levels = levels[:depth]
		}
		out := make([]MarketSide, len(levels))
		copy(out, levels)
		return out
	}
	return Market{Bids: take(m.Bids), Asks: take(m.Asks), Time: m.Time}
}

// FairValue reference price.
type FairValue struct {
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}

// RegularFairValue hourly fair value sample used by the position manager.
type RegularFairValue struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}
