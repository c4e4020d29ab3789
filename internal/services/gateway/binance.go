package gateway

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/pkg/retrier"
)

const (
	binanceDepth        = 25
	binanceTradesLimit  = 50
	binanceRequestQueue = 1024
	binanceCallTimeout  = 10 * time.Second

	// order does not exist
	binanceErrNoSuchOrder = -2013
	// unknown order sent on cancel
	binanceErrCancelRejected = -2011
)

// BinanceOptions static settings of the Binance spot gateway.
type BinanceOptions struct {
	MinTick      float64
	MakeFee      float64
	TakeFee      float64
	PollInterval time.Duration
}

// Binance spot gateway polling REST endpoints. Order calls are executed in
// submission order by one worker so a cancel never overtakes its send.
type Binance struct {
	l       *zap.Logger
	c       clock.Clock
	client  *binance.Client
	pair    domain.CurrencyPair
	symbol  string
	retrier *retrier.Retrier
	opts    BinanceOptions

	marketData     evt.Event[domain.Market]
	marketTrade    evt.Event[domain.GatewayMarketTrade]
	mdConnect      evt.Event[domain.ConnectivityStatus]
	oeConnect      evt.Event[domain.ConnectivityStatus]
	orderUpdate    evt.Event[domain.OrderStatusUpdate]
	positionUpdate evt.Event[domain.CurrencyPosition]

	requests chan func(ctx context.Context)

	mu          sync.Mutex
	connected   bool
	lastTradeID int64
	lastFillID  int64
	tracked     map[string]struct{}
}

// NewBinance creates the gateway. Call Run to start polling.
func NewBinance(l *zap.Logger, c clock.Clock, client *binance.Client, pair domain.CurrencyPair, opts BinanceOptions) *Binance {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	l = l.With(zap.String("component", "binance"), zap.String("pair", pair.String()))

	return &Binance{
		l:      l,
		c:      c,
		client: client,
		pair:   pair,
		symbol: pair.Symbol(),
		retrier: retrier.New(
			retrier.WithMaxRetries(2),
			retrier.WithInitialInterval(200*time.Millisecond),
			retrier.WithRetryIf(isRetryable),
			retrier.WithOnRetry(func(attempt int, err error) {
				l.Warn("retrying binance request", zap.Int("attempt", attempt), zap.Error(err))
			}),
		),
		opts:     opts,
		requests: make(chan func(ctx context.Context), binanceRequestQueue),
		tracked:  make(map[string]struct{}),
	}
}

// AsGateway exposes b through the capability split.
func (b *Binance) AsGateway() Gateway {
	return Gateway{
		MD:  binanceMarketData{b},
		OE:  b,
		Pos: b,
		Details: staticDetails{
			minTick:  b.opts.MinTick,
			makeFee:  b.opts.MakeFee,
			takeFee:  b.opts.TakeFee,
			exchange: domain.ExchangeBinance,
			stp:      false,
		},
	}
}

type binanceMarketData struct{ b *Binance }

func (m binanceMarketData) MarketData() *evt.Event[domain.Market] { return &m.b.marketData }
func (m binanceMarketData) MarketTrade() *evt.Event[domain.GatewayMarketTrade] {
	return &m.b.marketTrade
}
func (m binanceMarketData) ConnectChanged() *evt.Event[domain.ConnectivityStatus] {
	return &m.b.mdConnect
}

func (b *Binance) OrderUpdate() *evt.Event[domain.OrderStatusUpdate]     { return &b.orderUpdate }
func (b *Binance) ConnectChanged() *evt.Event[domain.ConnectivityStatus] { return &b.oeConnect }
func (b *Binance) PositionUpdate() *evt.Event[domain.CurrencyPosition]   { return &b.positionUpdate }
func (b *Binance) CancelsByClientOrderID() bool                          { return true }
func (b *Binance) SupportsCancelAllOpenOrders() bool                     { return true }

// GenerateClientOrderID binance accepts up to 36 characters.
func (b *Binance) GenerateClientOrderID() string { return uuid.NewString() }

// Run polls market data, balances and order state, and executes queued order calls.
func (b *Binance) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(b.opts.PollInterval)
		defer ticker.Stop()
		for {
			b.poll(ctx)
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case req := <-b.requests:
				req(ctx)
			}
		}
	})

	return g.Wait()
}

func (b *Binance) enqueue(orderID string, req func(ctx context.Context)) {
	select {
	case b.requests <- req:
	default:
		b.l.Error("order request queue is full", zap.String("orderId", orderID))
		b.emitOrder(domain.OrderStatusUpdate{
			OrderID:       orderID,
			OrderStatus:   domain.Ptr(domain.OrderStatusRejected),
			RejectMessage: "order request queue is full",
		})
	}
}

// SendOrder places o asynchronously.
func (b *Binance) SendOrder(o domain.OrderStatusReport) {
	started := b.c.Now()
	b.enqueue(o.OrderID, func(ctx context.Context) {
		b.send(ctx, o)
		b.emitOrder(domain.OrderStatusUpdate{OrderID: o.OrderID, ComputationalLatency: time.Since(started)})
	})
}

// CancelOrder cancels o by its client order id.
func (b *Binance) CancelOrder(o domain.OrderStatusReport) {
	b.enqueue(o.OrderID, func(ctx context.Context) { b.cancel(ctx, o) })
}

// ReplaceOrder cancels o and sends it again with its new price and quantity.
func (b *Binance) ReplaceOrder(o domain.OrderStatusReport) {
	b.enqueue(o.OrderID, func(ctx context.Context) {
		if b.cancel(ctx, o) {
			b.send(ctx, o)
		}
	})
}

// CancelAllOpenOrders cancels every open order of the pair.
func (b *Binance) CancelAllOpenOrders(ctx context.Context) (int, error) {
	res, err := retrier.DoWithData(b.retrier, ctx, func(ctx context.Context) (*binance.CancelOpenOrdersResponse, error) {
		return b.client.NewCancelOpenOrdersService().Symbol(b.symbol).Do(ctx)
	})
	if err != nil {
		return 0, errors.Wrap(err, "cancel all binance orders")
	}
	return len(res.Orders), nil
}

func (b *Binance) send(ctx context.Context, o domain.OrderStatusReport) {
	ctx, cancel := context.WithTimeout(ctx, binanceCallTimeout)
	defer cancel()

	svc := b.client.NewCreateOrderService().
		Symbol(b.symbol).
		Side(toBinanceSide(o.Side)).
		Quantity(formatDecimal(o.Quantity)).
		NewClientOrderID(o.OrderID)

	switch {
	case o.Type == domain.OrderTypeMarket:
		svc = svc.Type(binance.OrderTypeMarket)
	case o.PreferPostOnly:
		svc = svc.Type(binance.OrderTypeLimitMaker).Price(formatDecimal(o.Price))
	default:
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(toBinanceTimeInForce(o.TimeInForce)).
			Price(formatDecimal(o.Price))
	}

	res, err := svc.Do(ctx)
	if err != nil {
		b.l.Warn("order rejected", zap.String("orderId", o.OrderID), zap.Error(err))
		b.emitOrder(domain.OrderStatusUpdate{
			OrderID:       o.OrderID,
			OrderStatus:   domain.Ptr(domain.OrderStatusRejected),
			RejectMessage: err.Error(),
			Time:          b.c.Now(),
		})
		return
	}

	b.mu.Lock()
	b.tracked[o.OrderID] = struct{}{}
	b.mu.Unlock()

	b.emitOrder(domain.OrderStatusUpdate{
		OrderID:     o.OrderID,
		ExchangeID:  strconv.FormatInt(res.OrderID, 10),
		OrderStatus: domain.Ptr(fromBinanceStatus(res.Status)),
		Time:        b.c.Now(),
	})
}

func (b *Binance) cancel(ctx context.Context, o domain.OrderStatusReport) bool {
	ctx, cancel := context.WithTimeout(ctx, binanceCallTimeout)
	defer cancel()

	_, err := b.client.NewCancelOrderService().
		Symbol(b.symbol).
		OrigClientOrderID(o.OrderID).
		Do(ctx)
	if err != nil {
		b.l.Warn("cancel rejected", zap.String("orderId", o.OrderID), zap.Error(err))
		b.emitOrder(domain.OrderStatusUpdate{
			OrderID:        o.OrderID,
			CancelRejected: true,
			RejectMessage:  err.Error(),
			Time:           b.c.Now(),
		})
		return false
	}

	b.mu.Lock()
	delete(b.tracked, o.OrderID)
	b.mu.Unlock()

	b.emitOrder(domain.OrderStatusUpdate{
		OrderID:     o.OrderID,
		OrderStatus: domain.Ptr(domain.OrderStatusCancelled),
		Time:        b.c.Now(),
	})
	return true
}

func (b *Binance) poll(ctx context.Context) {
	if err := b.pollDepth(ctx); err != nil {
		b.l.Warn("failed to poll depth", zap.Error(err))
		b.setConnected(false)
		return
	}
	b.setConnected(true)

	if err := b.pollMarketTrades(ctx); err != nil {
		b.l.Warn("failed to poll market trades", zap.Error(err))
	}
	if err := b.pollBalances(ctx); err != nil {
		b.l.Warn("failed to poll balances", zap.Error(err))
	}
	if err := b.pollFills(ctx); err != nil {
		b.l.Warn("failed to poll fills", zap.Error(err))
	}
	if err := b.pollOrders(ctx); err != nil {
		b.l.Warn("failed to poll orders", zap.Error(err))
	}
}

func (b *Binance) pollDepth(ctx context.Context) error {
	res, err := retrier.DoWithData(b.retrier, ctx, func(ctx context.Context) (*binance.DepthResponse, error) {
		return b.client.NewDepthService().Symbol(b.symbol).Limit(binanceDepth).Do(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "get binance depth")
	}

	bids, err := toMarketSides(res.Bids, func(l binance.Bid) (string, string) { return l.Price, l.Quantity })
	if err != nil {
		return err
	}
	asks, err := toMarketSides(res.Asks, func(l binance.Ask) (string, string) { return l.Price, l.Quantity })
	if err != nil {
		return err
	}

	mkt := domain.Market{Bids: bids, Asks: asks, Time: b.c.Now()}
	b.c.Post(func() { b.marketData.Trigger(mkt) })
	return nil
}

func (b *Binance) pollMarketTrades(ctx context.Context) error {
	trades, err := retrier.DoWithData(b.retrier, ctx, func(ctx context.Context) ([]*binance.Trade, error) {
		return b.client.NewRecentTradesService().Symbol(b.symbol).Limit(binanceTradesLimit).Do(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "get binance recent trades")
	}

	b.mu.Lock()
	onStartup := b.lastTradeID == 0
	last := b.lastTradeID
	b.mu.Unlock()

	var out []domain.GatewayMarketTrade
	for _, t := range trades {
		if t.ID <= last {
			continue
		}
		last = t.ID

		px, err := decimal.NewFromString(t.Price)
		if err != nil {
			return errors.Wrap(err, "parse trade price")
		}
		sz, err := decimal.NewFromString(t.Quantity)
		if err != nil {
			return errors.Wrap(err, "parse trade quantity")
		}

		makeSide := domain.SideAsk
		if t.IsBuyerMaker {
			makeSide = domain.SideBid
		}
		out = append(out, domain.GatewayMarketTrade{
			Price:     px.InexactFloat64(),
			Size:      sz.InexactFloat64(),
			Time:      time.UnixMilli(t.Time),
			OnStartup: onStartup,
			MakeSide:  makeSide,
		})
	}

	b.mu.Lock()
	b.lastTradeID = last
	b.mu.Unlock()

	if len(out) > 0 {
		b.c.Post(func() {
			for _, t := range out {
				b.marketTrade.Trigger(t)
			}
		})
	}
	return nil
}

func (b *Binance) pollBalances(ctx context.Context) error {
	account, err := retrier.DoWithData(b.retrier, ctx, func(ctx context.Context) (*binance.Account, error) {
		return b.client.NewGetAccountService().Do(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "get binance account")
	}

	var positions []domain.CurrencyPosition
	for _, bal := range account.Balances {
		if bal.Asset != string(b.pair.Base) && bal.Asset != string(b.pair.Quote) {
			continue
		}
		free, err := decimal.NewFromString(bal.Free)
		if err != nil {
			return errors.Wrap(err, "parse free balance")
		}
		locked, err := decimal.NewFromString(bal.Locked)
		if err != nil {
			return errors.Wrap(err, "parse locked balance")
		}
		positions = append(positions, domain.CurrencyPosition{
			Amount:     free.InexactFloat64(),
			HeldAmount: locked.InexactFloat64(),
			Currency:   domain.Currency(bal.Asset),
		})
	}

	b.c.Post(func() {
		for _, p := range positions {
			b.positionUpdate.Trigger(p)
		}
	})
	return nil
}

// pollFills reports own executions by exchange order id.
func (b *Binance) pollFills(ctx context.Context) error {
	b.mu.Lock()
	from := b.lastFillID
	b.mu.Unlock()

	trades, err := retrier.DoWithData(b.retrier, ctx, func(ctx context.Context) ([]*binance.TradeV3, error) {
		svc := b.client.NewListTradesService().Symbol(b.symbol).Limit(binanceTradesLimit)
		if from > 0 {
			svc = svc.FromID(from + 1)
		}
		return svc.Do(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "list binance fills")
	}

	last := from
	var updates []domain.OrderStatusUpdate
	for _, t := range trades {
		if t.ID <= last {
			continue
		}
		last = t.ID
		// fills that happened before startup were settled in a previous run
		if from == 0 {
			continue
		}

		px, err := decimal.NewFromString(t.Price)
		if err != nil {
			return errors.Wrap(err, "parse fill price")
		}
		qty, err := decimal.NewFromString(t.Quantity)
		if err != nil {
			return errors.Wrap(err, "parse fill quantity")
		}
		liq := domain.LiquidityTake
		if t.IsMaker {
			liq = domain.LiquidityMake
		}
		updates = append(updates, domain.OrderStatusUpdate{
			ExchangeID:   strconv.FormatInt(t.OrderID, 10),
			LastQuantity: domain.Ptr(qty.InexactFloat64()),
			LastPrice:    domain.Ptr(px.InexactFloat64()),
			Liquidity:    domain.Ptr(liq),
			Time:         time.UnixMilli(t.Time),
		})
	}

	b.mu.Lock()
	b.lastFillID = last
	b.mu.Unlock()

	for _, u := range updates {
		b.emitOrder(u)
	}
	return nil
}

// pollOrders resolves the final status of tracked orders that left the open list.
func (b *Binance) pollOrders(ctx context.Context) error {
	b.mu.Lock()
	if len(b.tracked) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	open, err := retrier.DoWithData(b.retrier, ctx, func(ctx context.Context) ([]*binance.Order, error) {
		return b.client.NewListOpenOrdersService().Symbol(b.symbol).Do(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "list binance open orders")
	}

	stillOpen := make(map[string]struct{}, len(open))
	for _, o := range open {
		stillOpen[o.ClientOrderID] = struct{}{}
	}

	b.mu.Lock()
	var gone []string
	for id := range b.tracked {
		if _, ok := stillOpen[id]; !ok {
			gone = append(gone, id)
		}
	}
	b.mu.Unlock()

	for _, id := range gone {
		order, err := b.client.NewGetOrderService().Symbol(b.symbol).OrigClientOrderID(id).Do(ctx)
		if err != nil {
			var apiErr *common.APIError
			if errors.As(err, &apiErr) && apiErr.Code == binanceErrNoSuchOrder {
				b.untrack(id)
				b.emitOrder(domain.OrderStatusUpdate{
					OrderID:       id,
					OrderStatus:   domain.Ptr(domain.OrderStatusRejected),
					RejectMessage: "order does not exist",
				})
				continue
			}
			return errors.Wrapf(err, "get binance order %s", id)
		}

		status := fromBinanceStatus(order.Status)
		if !domain.OrderIsDone(status) {
			continue
		}
		b.untrack(id)
		b.emitOrder(domain.OrderStatusUpdate{
			OrderID:     id,
			ExchangeID:  strconv.FormatInt(order.OrderID, 10),
			OrderStatus: domain.Ptr(status),
			Time:        b.c.Now(),
		})
	}

	return nil
}

func (b *Binance) untrack(id string) {
	b.mu.Lock()
	delete(b.tracked, id)
	b.mu.Unlock()
}

func (b *Binance) emitOrder(u domain.OrderStatusUpdate) {
	b.c.Post(func() { b.orderUpdate.Trigger(u) })
}

func (b *Binance) setConnected(connected bool) {
	b.mu.Lock()
	changed := b.connected != connected
	b.connected = connected
	b.mu.Unlock()

	if !changed {
		return
	}

	status := domain.Disconnected
	if connected {
		status = domain.Connected
	}
	b.l.Info("connectivity changed", zap.String("status", status.String()))
	b.c.Post(func() {
		b.mdConnect.Trigger(status)
		b.oeConnect.Trigger(status)
	})
}

func isRetryable(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		// API errors are business rejections, except rate limits
		return apiErr.Code == -1003 || apiErr.Code == -1015
	}
	return !errors.Is(err, context.Canceled)
}

func toMarketSides[L any](levels []L, get func(L) (string, string)) ([]domain.MarketSide, error) {
	out := make([]domain.MarketSide, 0, len(levels))
	for _, l := range levels {
		rawPx, rawSz := get(l)
		px, err := decimal.NewFromString(rawPx)
		if err != nil {
			return nil, errors.Wrapf(err, "parse level price %q", rawPx)
		}
		sz, err := decimal.NewFromString(rawSz)
		if err != nil {
			return nil, errors.Wrapf(err, "parse level size %q", rawSz)
		}
		out = append(out, domain.MarketSide{Price: px.InexactFloat64(), Size: sz.InexactFloat64()})
	}
	return out, nil
}

func toBinanceSide(s domain.Side) binance.SideType {
	if s == domain.SideAsk {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

func toBinanceTimeInForce(t domain.TimeInForce) binance.TimeInForceType {
	switch t {
	case domain.TimeInForceIOC:
		return binance.TimeInForceTypeIOC
	case domain.TimeInForceFOK:
		return binance.TimeInForceTypeFOK
	default:
		return binance.TimeInForceTypeGTC
	}
}

func fromBinanceStatus(s binance.OrderStatusType) domain.OrderStatus {
	switch s {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePartiallyFilled, binance.OrderStatusTypePendingCancel:
		return domain.OrderStatusWorking
	case binance.OrderStatusTypeFilled:
		return domain.OrderStatusComplete
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return domain.OrderStatusCancelled
	case binance.OrderStatusTypeRejected:
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusOther
	}
}

func formatDecimal(v float64) string {
	return decimal.NewFromFloat(v).String()
}
