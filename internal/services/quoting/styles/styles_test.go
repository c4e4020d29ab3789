package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tribeca/internal/domain"
)

func input(mode domain.QuotingMode, bids, asks []domain.MarketSide) Input {
	p := domain.DefaultQuotingParameters()
	p.Mode = mode
	p.Width = 0.3
	p.Size = 0.05
	return Input{
		Market:  &domain.Market{Bids: bids, Asks: asks},
		FV:      domain.FairValue{Price: 100.5},
		Params:  p,
		MinTick: 0.01,
	}
}

func TestStyles(t *testing.T) {
	top := []domain.MarketSide{{Price: 100, Size: 1}}
	topAsk := []domain.MarketSide{{Price: 101, Size: 1}}

	tests := []struct {
		name  string
		style Style
		bids  []domain.MarketSide
		asks  []domain.MarketSide
		bidPx float64
		askPx float64
	}{
		{"inverse join widens a wide market", InverseJoin(), top, topAsk, 99.7, 101.3},
		{"mid", Mid(), top, topAsk, 100.2, 100.8},
		{"top steps in", Top(), top, topAsk, 100.01, 100.99},
		{"join", Join(), top, topAsk, 100, 101},
		{"ping pong", PingPong(), top, topAsk, 100.01, 100.99},
		{"inverse top", InverseTop(), top, topAsk, 99.71, 101.29},
		{
			"top is bounded by half the width",
			Top(),
			[]domain.MarketSide{{Price: 100.45, Size: 1}},
			[]domain.MarketSide{{Price: 100.55, Size: 1}},
			100.35, 100.65,
		},
		{
			"inverse join narrow market",
			InverseJoin(),
			[]domain.MarketSide{{Price: 100.45, Size: 1}},
			[]domain.MarketSide{{Price: 100.55, Size: 1}},
			100.375, 100.625,
		},
		{
			"small top level is stepped over",
			Join(),
			[]domain.MarketSide{{Price: 100.3, Size: 0.05}, {Price: 100, Size: 1}},
			[]domain.MarketSide{{Price: 100.7, Size: 0.05}, {Price: 101, Size: 1}},
			100, 101,
		},
		{
			"depth",
			Depth(),
			[]domain.MarketSide{{Price: 100, Size: 0.1}, {Price: 99, Size: 0.1}, {Price: 98, Size: 1}},
			[]domain.MarketSide{{Price: 101, Size: 0.5}, {Price: 102, Size: 1}},
			99, 101,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, ok := tt.style.GenerateQuote(input(tt.style.Mode(), tt.bids, tt.asks))
			require.True(t, ok)
			assert.InDelta(t, tt.bidPx, q.BidPx, 1e-9)
			assert.InDelta(t, tt.askPx, q.AskPx, 1e-9)
			assert.Equal(t, 0.05, q.BidSz)
			assert.Equal(t, 0.05, q.AskSz)
		})
	}
}

func TestStyles_EmptySide(t *testing.T) {
	for _, s := range All() {
		_, ok := s.GenerateQuote(input(s.Mode(), nil, []domain.MarketSide{{Price: 101, Size: 1}}))
		assert.False(t, ok, s.Mode().String())
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(All()...)

	for _, s := range All() {
		assert.Equal(t, s.Mode(), r.Get(s.Mode()).Mode())
	}

	_, ok := r.Get(domain.QuotingMode(42)).GenerateQuote(input(domain.QuotingModeTop,
		[]domain.MarketSide{{Price: 100, Size: 1}}, []domain.MarketSide{{Price: 101, Size: 1}}))
	assert.False(t, ok)

	_, ok = NewRegistry(Mid()).Get(domain.QuotingModeTop).GenerateQuote(input(domain.QuotingModeTop, nil, nil))
	assert.False(t, ok)
}
