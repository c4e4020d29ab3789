package gateway

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/pkg/retrier"
)

// BybitOptions settings of the paper-trading gateway.
type BybitOptions struct {
	MinTick         float64
	PollInterval    time.Duration
	FillProbability float64
}

// BybitTicker reads the real Bybit spot top of book. Orders and positions are simulated.
type BybitTicker struct {
	l       *zap.Logger
	c       clock.Clock
	client  *bybit.Client
	symbol  bybit.SymbolV5
	retrier *retrier.Retrier
	every   time.Duration

	marketData  evt.Event[domain.Market]
	marketTrade evt.Event[domain.GatewayMarketTrade]
	connect     evt.Event[domain.ConnectivityStatus]

	mu        sync.Mutex
	connected bool
	lastPrice string
}

// NewBybitPaper builds a gateway that quotes against the live Bybit book without sending orders.
func NewBybitPaper(l *zap.Logger, c clock.Clock, client *bybit.Client, pair domain.CurrencyPair, opts BybitOptions) Gateway {
	if opts.MinTick <= 0 {
		opts.MinTick = 0.01
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	l = l.With(zap.String("component", "bybit"), zap.String("pair", pair.String()))

	md := &BybitTicker{
		l:      l,
		c:      c,
		client: client,
		symbol: bybit.SymbolV5(pair.Symbol()),
		retrier: retrier.New(
			retrier.WithMaxRetries(2),
			retrier.WithInitialInterval(200*time.Millisecond),
		),
		every: opts.PollInterval,
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return Gateway{
		MD:  md,
		OE:  newNullOrderEntry(l, c, rnd, opts.FillProbability),
		Pos: newNullPosition(c, pair),
		Details: staticDetails{
			minTick:  opts.MinTick,
			exchange: domain.ExchangeBybit,
		},
	}
}

func (t *BybitTicker) MarketData() *evt.Event[domain.Market]                 { return &t.marketData }
func (t *BybitTicker) MarketTrade() *evt.Event[domain.GatewayMarketTrade]    { return &t.marketTrade }
func (t *BybitTicker) ConnectChanged() *evt.Event[domain.ConnectivityStatus] { return &t.connect }

// Run polls the ticker until ctx is done.
func (t *BybitTicker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.every)
	defer ticker.Stop()

	for {
		if err := t.poll(ctx); err != nil {
			t.l.Warn("failed to poll ticker", zap.Error(err))
			t.setConnected(false)
		} else {
			t.setConnected(true)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (t *BybitTicker) poll(ctx context.Context) error {
	item, err := retrier.DoWithData(t.retrier, ctx, func(ctx context.Context) (bybit.V5GetTickersSpotItem, error) {
		res, err := t.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
			Category: bybit.CategoryV5Spot,
			Symbol:   &t.symbol,
		})
		if err != nil {
			return bybit.V5GetTickersSpotItem{}, err
		}
		if res.Result.Spot == nil || len(res.Result.Spot.List) == 0 {
			return bybit.V5GetTickersSpotItem{}, retrier.Permanent(errors.Errorf("bybit returned no ticker for %s", t.symbol))
		}
		return res.Result.Spot.List[0], nil
	})
	if err != nil {
		return errors.Wrap(err, "get bybit ticker")
	}

	mkt, err := tickerToMarket(item.Bid1Price, item.Bid1Size, item.Ask1Price, item.Ask1Size)
	if err != nil {
		return err
	}
	mkt.Time = t.c.Now()

	t.mu.Lock()
	lastChanged := t.lastPrice != "" && t.lastPrice != item.LastPrice
	t.lastPrice = item.LastPrice
	t.mu.Unlock()

	var trade *domain.GatewayMarketTrade
	if lastChanged {
		px, err := decimal.NewFromString(item.LastPrice)
		if err != nil {
			return errors.Wrap(err, "parse last price")
		}
		makeSide := domain.SideAsk
		if mid, ok := mkt.Mid(); ok && px.InexactFloat64() < mid {
			makeSide = domain.SideBid
		}
		trade = &domain.GatewayMarketTrade{Price: px.InexactFloat64(), Time: mkt.Time, MakeSide: makeSide}
	}

	t.c.Post(func() {
		t.marketData.Trigger(mkt)
		if trade != nil {
			t.marketTrade.Trigger(*trade)
		}
	})
	return nil
}

func (t *BybitTicker) setConnected(connected bool) {
	t.mu.Lock()
	changed := t.connected != connected
	t.connected = connected
	t.mu.Unlock()

	if !changed {
		return
	}
	status := domain.Disconnected
	if connected {
		status = domain.Connected
	}
	t.c.Post(func() { t.connect.Trigger(status) })
}

// tickerToMarket one level book from ticker strings. An empty side stays empty.
func tickerToMarket(bidPx, bidSz, askPx, askSz string) (domain.Market, error) {
	var mkt domain.Market

	level := func(px, sz string) (*domain.MarketSide, error) {
		if px == "" || sz == "" {
			return nil, nil
		}
		p, err := decimal.NewFromString(px)
		if err != nil {
			return nil, errors.Wrapf(err, "parse price %q", px)
		}
		s, err := decimal.NewFromString(sz)
		if err != nil {
			return nil, errors.Wrapf(err, "parse size %q", sz)
		}
		if !p.IsPositive() || !s.IsPositive() {
			return nil, nil
		}
		return &domain.MarketSide{Price: p.InexactFloat64(), Size: s.InexactFloat64()}, nil
	}

	bid, err := level(bidPx, bidSz)
	if err != nil {
		return mkt, err
	}
	ask, err := level(askPx, askSz)
	if err != nil {
		return mkt, err
	}
	if bid != nil {
		mkt.Bids = []domain.MarketSide{*bid}
	}
	if ask != nil {
		mkt.Asks = []domain.MarketSide{*ask}
	}
	return mkt, nil
}
