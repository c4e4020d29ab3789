// Package safety throttles quoting after bursts of one-sided fills.
package safety

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

const (
	recalcInterval = time.Second
	// pingPongScan upper bound of own trades inspected for buyPing and sellPong.
	pingPongScan = 10000

	nettedQtyEpsilon = 1e-4
	combinedEpsilon  = 1e-3
	pingPongEpsilon  = 1e-2
)

// ParametersSource current quoting parameters and their changes.
type ParametersSource interface {
	Latest() domain.QuotingParameters
	NewParameters() *evt.Event[domain.QuotingParameters]
}

// TradeSource own fills.
type TradeSource interface {
	RecentTrades(n int) []domain.Trade
	Trade() *evt.Event[domain.Trade]
}

// Calculator keeps unmatched buys and sells inside the trade rate window and expresses
// them in multiples of the quote size.
type Calculator struct {
	l         *zap.Logger
	c         clock.Clock
	params    ParametersSource
	trades    TradeSource
	pub       messaging.Publisher[domain.TradeSafety]
	persister storage.Sink[domain.TradeSafety]

	buys  []domain.Trade
	sells []domain.Trade

	latest   *domain.TradeSafety
	newValue evt.Event[domain.TradeSafety]
}

// NewCalculator recomputes on fills, parameter changes and every second.
func NewCalculator(
	l *zap.Logger,
	c clock.Clock,
	params ParametersSource,
	trades TradeSource,
	pub messaging.Publisher[domain.TradeSafety],
	persister storage.Sink[domain.TradeSafety],
) *Calculator {
	s := &Calculator{
		l:         l.With(zap.String("component", "safety")),
		c:         c,
		params:    params,
		trades:    trades,
		pub:       pub,
		persister: persister,
	}

	pub.RegisterSnapshot(func() []domain.TradeSafety {
		if s.latest == nil {
			return nil
		}
		return []domain.TradeSafety{*s.latest}
	})
	params.NewParameters().On(func(domain.QuotingParameters) { s.ComputeQtyLimit() })
	trades.Trade().On(s.onTrade)
	c.Every(recalcInterval, s.ComputeQtyLimit)

	return s
}

func (s *Calculator) onTrade(t domain.Trade) {
	if s.isOlderThan(t, s.params.Latest()) {
		return
	}

	switch t.Side {
	case domain.SideAsk:
		s.sells = append(s.sells, t)
	case domain.SideBid:
		s.buys = append(s.buys, t)
	}
	s.ComputeQtyLimit()
}

// ComputeQtyLimit nets the trades in the window and updates the latest safety.
// Without a positive quote size there is nothing to express the limit in, so the latest value is kept.
func (s *Calculator) ComputeQtyLimit() {
	params := s.params.Latest()
	if params.Size <= 0 {
		return
	}
	buyPing, sellPong := s.pingPong(params.Size)

	s.buys = s.window(s.buys, params, -1)
	s.sells = s.window(s.sells, params, 1)

	// net the cheapest buy against the most expensive sell while the pair made money
	for len(s.buys) > 0 && len(s.sells) > 0 {
		sell := &s.sells[len(s.sells)-1]
		buy := &s.buys[len(s.buys)-1]
		if sell.Price < buy.Price {
			break
		}

		sellQty, buyQty := sell.Quantity, buy.Quantity
		buy.Quantity -= sellQty
		sell.Quantity -= buyQty

		if buy.Quantity < nettedQtyEpsilon {
			s.buys = s.buys[:len(s.buys)-1]
		}
		if sell.Quantity < nettedQtyEpsilon {
			s.sells = s.sells[:len(s.sells)-1]
		}
	}

	buy := sumQty(s.buys) / params.Size
	sell := sumQty(s.sells) / params.Size
	s.set(domain.TradeSafety{
		Buy:      buy,
		Sell:     sell,
		Combined: (sumQty(s.buys) + sumQty(s.sells)) / params.Size,
		BuyPing:  buyPing,
		SellPong: sellPong,
		Time:     s.c.Now(),
	})
}

// pingPong size weighted prices of the latest fills per side, up to size each.
func (s *Calculator) pingPong(size float64) (buyPing, sellPong float64) {
	trades := s.trades.RecentTrades(pingPongScan)

	var buyPq, sellPq float64
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		if t.Side == domain.SideBid && buyPq < size {
			q := math.Min(size-buyPq, t.Quantity)
			buyPing += t.Price * q
			buyPq += q
		}
		if t.Side == domain.SideAsk && sellPq < size {
			q := math.Min(size-sellPq, t.Quantity)
			sellPong += t.Price * q
			sellPq += q
		}
		if buyPq >= size && sellPq >= size {
			break
		}
	}

	if buyPq > 0 {
		buyPing /= buyPq
	}
	if sellPq > 0 {
		sellPong /= sellPq
	}
	return buyPing, sellPong
}

// window drops trades outside the rate window and sorts by direction*price.
func (s *Calculator) window(trades []domain.Trade, params domain.QuotingParameters, direction float64) []domain.Trade {
	kept := trades[:0]
	for _, t := range trades {
		if !s.isOlderThan(t, params) {
			kept = append(kept, t)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return direction*kept[i].Price < direction*kept[j].Price
	})
	return kept
}

func (s *Calculator) isOlderThan(t domain.Trade, params domain.QuotingParameters) bool {
	age := s.c.Now().Sub(t.Time)
	if age < 0 {
		age = -age
	}
	return age.Seconds() > params.TradeRateSeconds
}

func (s *Calculator) set(v domain.TradeSafety) {
	if s.latest != nil &&
		math.Abs(v.Combined-s.latest.Combined) <= combinedEpsilon &&
		math.Abs(v.BuyPing-s.latest.BuyPing) < pingPongEpsilon &&
		math.Abs(v.SellPong-s.latest.SellPong) < pingPongEpsilon {
		return
	}

	s.latest = &v
	s.newValue.Trigger(v)
	s.persister.Persist(v)
	s.pub.Publish(v)
}

func sumQty(trades []domain.Trade) float64 {
	var sum float64
	for _, t := range trades {
		sum += t.Quantity
	}
	return sum
}

// Latest returns the current safety, nil before the first computation.
func (s *Calculator) Latest() *domain.TradeSafety { return s.latest }

// NewValue fires when the safety changed noticeably.
func (s *Calculator) NewValue() *evt.Event[domain.TradeSafety] { return &s.newValue }
