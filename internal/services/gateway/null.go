package gateway

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/rounding"
)

const (
	nullConnectDelay     = 500 * time.Millisecond
	nullAckDelay         = 10 * time.Millisecond
	nullFillDelay        = time.Second
	nullTradeInterval    = 15 * time.Second
	nullPositionInterval = 2500 * time.Millisecond
	nullDepth            = 25
)

// NullOptions tunes the simulated exchange.
type NullOptions struct {
	MinTick            float64
	FillProbability    float64
	MarketDataInterval time.Duration
	Seed               int64
}

// NewNull builds a fully simulated gateway driven by c.
func NewNull(l *zap.Logger, c clock.Clock, pair domain.CurrencyPair, opts NullOptions) Gateway {
	if opts.MinTick <= 0 {
		opts.MinTick = 0.01
	}
	if opts.MarketDataInterval <= 0 {
		opts.MarketDataInterval = time.Second
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(opts.Seed))
	l = l.With(zap.String("component", "nullgw"))

	return Gateway{
		MD:  newNullMarketData(c, rnd, opts),
		OE:  newNullOrderEntry(l, c, rnd, opts.FillProbability),
		Pos: newNullPosition(c, pair),
		Details: staticDetails{
			minTick:  opts.MinTick,
			exchange: domain.ExchangeNull,
		},
	}
}

type nullOrderEntry struct {
	l        *zap.Logger
	c        clock.Clock
	rnd      *rand.Rand
	fillProb float64

	orderUpdate evt.Event[domain.OrderStatusUpdate]
	connect     evt.Event[domain.ConnectivityStatus]
}

func newNullOrderEntry(l *zap.Logger, c clock.Clock, rnd *rand.Rand, fillProb float64) *nullOrderEntry {
	g := &nullOrderEntry{l: l, c: c, rnd: rnd, fillProb: fillProb}
	c.AfterFunc(nullConnectDelay, func() { g.connect.Trigger(domain.Connected) })
	return g
}

func (g *nullOrderEntry) OrderUpdate() *evt.Event[domain.OrderStatusUpdate]     { return &g.orderUpdate }
func (g *nullOrderEntry) ConnectChanged() *evt.Event[domain.ConnectivityStatus] { return &g.connect }
func (g *nullOrderEntry) GenerateClientOrderID() string                         { return uuid.NewString() }
func (g *nullOrderEntry) CancelsByClientOrderID() bool                          { return true }
func (g *nullOrderEntry) SupportsCancelAllOpenOrders() bool                     { return false }

func (g *nullOrderEntry) CancelAllOpenOrders(context.Context) (int, error) {
	return 0, nil
}

func (g *nullOrderEntry) SendOrder(o domain.OrderStatusReport) {
	if o.TimeInForce == domain.TimeInForceIOC {
		g.l.Warn("rejecting IOC order", zap.String("orderId", o.OrderID))
		g.c.AfterFunc(nullAckDelay, func() {
			g.orderUpdate.Trigger(domain.OrderStatusUpdate{
				OrderID:       o.OrderID,
				OrderStatus:   domain.Ptr(domain.OrderStatusRejected),
				RejectMessage: "cannot send IOCs",
				Time:          g.c.Now(),
			})
		})
		g.raiseLatency(o)
		return
	}

	g.c.AfterFunc(nullAckDelay, func() { g.ack(o) })
	g.raiseLatency(o)
}

func (g *nullOrderEntry) CancelOrder(o domain.OrderStatusReport) {
	g.c.AfterFunc(nullAckDelay, func() {
		g.orderUpdate.Trigger(domain.OrderStatusUpdate{
			OrderID:     o.OrderID,
			OrderStatus: domain.Ptr(domain.OrderStatusCancelled),
			Time:        g.c.Now(),
		})
	})
	g.raiseLatency(o)
}

func (g *nullOrderEntry) ReplaceOrder(o domain.OrderStatusReport) {
	g.c.AfterFunc(nullAckDelay, func() { g.ack(o) })
	g.raiseLatency(o)
}

func (g *nullOrderEntry) ack(o domain.OrderStatusReport) {
	g.orderUpdate.Trigger(domain.OrderStatusUpdate{
		OrderID:        o.OrderID,
		ExchangeID:     "null-" + o.OrderID,
		OrderStatus:    domain.Ptr(domain.OrderStatusWorking),
		Price:          domain.Ptr(o.Price),
		Quantity:       domain.Ptr(o.Quantity),
		LeavesQuantity: domain.Ptr(o.Quantity),
		Time:           g.c.Now(),
	})

	if g.rnd.Float64() >= g.fillProb {
		return
	}

	liq := domain.LiquidityMake
	if g.rnd.Float64() < 0.5 {
		liq = domain.LiquidityTake
	}
	g.c.AfterFunc(nullFillDelay, func() {
		g.orderUpdate.Trigger(domain.OrderStatusUpdate{
			OrderID:        o.OrderID,
			OrderStatus:    domain.Ptr(domain.OrderStatusComplete),
			LastQuantity:   domain.Ptr(o.Quantity),
			LastPrice:      domain.Ptr(o.Price),
			LeavesQuantity: domain.Ptr(0.0),
			Liquidity:      domain.Ptr(liq),
			Time:           g.c.Now(),
		})
	})
}

func (g *nullOrderEntry) raiseLatency(o domain.OrderStatusReport) {
	g.orderUpdate.Trigger(domain.OrderStatusUpdate{
		OrderID:              o.OrderID,
		ComputationalLatency: g.c.Now().Sub(o.Time),
	})
}

type nullMarketData struct {
	c       clock.Clock
	rnd     *rand.Rand
	minTick float64

	marketData  evt.Event[domain.Market]
	marketTrade evt.Event[domain.GatewayMarketTrade]
	connect     evt.Event[domain.ConnectivityStatus]
}

func newNullMarketData(c clock.Clock, rnd *rand.Rand, opts NullOptions) *nullMarketData {
	g := &nullMarketData{c: c, rnd: rnd, minTick: opts.MinTick}
	c.AfterFunc(nullConnectDelay, func() { g.connect.Trigger(domain.Connected) })
	c.Every(opts.MarketDataInterval, func() { g.marketData.Trigger(g.generateMarket()) })
	c.Every(nullTradeInterval, func() { g.marketTrade.Trigger(g.generateTrade()) })
	return g
}

func (g *nullMarketData) MarketData() *evt.Event[domain.Market]                 { return &g.marketData }
func (g *nullMarketData) MarketTrade() *evt.Event[domain.GatewayMarketTrade]    { return &g.marketTrade }
func (g *nullMarketData) ConnectChanged() *evt.Event[domain.ConnectivityStatus] { return &g.connect }

// price draws around 1000, below it for sign -1 and above for +1.
func (g *nullMarketData) price(sign float64) float64 {
	return rounding.RoundNearest(1000+sign*100*g.rnd.Float64(), g.minTick)
}

func (g *nullMarketData) generateMarket() domain.Market {
	side := func(sign float64) []domain.MarketSide {
		levels := make([]domain.MarketSide, nullDepth)
		for i := range levels {
			levels[i] = domain.MarketSide{Price: g.price(sign), Size: g.rnd.Float64()}
		}
		sort.Slice(levels, func(i, j int) bool { return sign*levels[i].Price < sign*levels[j].Price })
		return levels
	}
	return domain.Market{Bids: side(-1), Asks: side(1), Time: g.c.Now()}
}

func (g *nullMarketData) generateTrade() domain.GatewayMarketTrade {
	side := domain.SideBid
	sign := -1.0
	if g.rnd.Float64() > 0.5 {
		side = domain.SideAsk
		sign = 1
	}
	return domain.GatewayMarketTrade{
		Price:    g.price(sign),
		Size:     g.rnd.Float64(),
		Time:     g.c.Now(),
		MakeSide: side,
	}
}

type nullPosition struct {
	positionUpdate evt.Event[domain.CurrencyPosition]
}

func newNullPosition(c clock.Clock, pair domain.CurrencyPair) *nullPosition {
	g := &nullPosition{}
	c.Every(nullPositionInterval, func() {
		g.positionUpdate.Trigger(domain.CurrencyPosition{Amount: 500, HeldAmount: 50, Currency: pair.Base})
		g.positionUpdate.Trigger(domain.CurrencyPosition{Amount: 500, HeldAmount: 50, Currency: pair.Quote})
	})
	return g
}

func (g *nullPosition) PositionUpdate() *evt.Event[domain.CurrencyPosition] { return &g.positionUpdate }
