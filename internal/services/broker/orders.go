package broker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/rounding"
	"github.com/vadiminshakov/tribeca/internal/services/gateway"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

// ErrUnknownOrder is returned for cancels and replaces of orders missing from the cache.
var ErrUnknownOrder = errors.New("unknown order")

const (
	pendingRemovalDelay = 5 * time.Second
	tradesSnapshotSize  = 100
	tradeTapeLimit      = 10000
	cancelAllTimeout    = 30 * time.Second
)

// OrderBrokerOptions collaborators and startup state of the OrderBroker.
type OrderBrokerOptions struct {
	OrderPersister storage.Sink[domain.OrderStatusReport]
	TradePersister storage.Sink[domain.Trade]

	OrderPublisher messaging.Publisher[domain.OrderStatusReport]
	TradePublisher messaging.Publisher[domain.Trade]

	SubmitReceiver    messaging.Receiver[domain.OrderRequestFromUI]
	CancelReceiver    messaging.Receiver[domain.CancelOrderRequest]
	CancelAllReceiver messaging.Receiver[domain.CancelAllOrdersRequest]

	InitOrders []domain.OrderStatusReport
	InitTrades []domain.Trade

	// PublishAllOrders publishes quote orders as well as manual ones.
	PublishAllOrders bool
}

// OrderBroker is the single owner of order state. Every gateway update is merged into
// the cached report, which is then replaced as a whole.
type OrderBroker struct {
	l    *zap.Logger
	c    clock.Clock
	base ExchangeInfo
	oe   gateway.OrderEntryGateway
	opts OrderBrokerOptions

	orders       map[string]domain.OrderStatusReport
	exchToClient map[string]string

	pendingRemovals []domain.OrderStatusReport
	deferredCancels map[string]domain.OrderCancel
	trades          []domain.Trade

	orderUpdate evt.Event[domain.OrderStatusReport]
	trade       evt.Event[domain.Trade]
}

// NewOrderBroker wires the broker to oe and the dashboard.
func NewOrderBroker(
	l *zap.Logger,
	c clock.Clock,
	base ExchangeInfo,
	oe gateway.OrderEntryGateway,
	messages *Messages,
	opts OrderBrokerOptions,
) *OrderBroker {
	b := &OrderBroker{
		l:               l.With(zap.String("component", "order-broker")),
		c:               c,
		base:            base,
		oe:              oe,
		opts:            opts,
		orders:          make(map[string]domain.OrderStatusReport),
		exchToClient:    make(map[string]string),
		deferredCancels: make(map[string]domain.OrderCancel),
	}

	for _, o := range opts.InitOrders {
		b.addOrderStatusInMemory(o)
	}
	b.trades = append(b.trades, opts.InitTrades...)

	opts.OrderPublisher.RegisterSnapshot(b.orderStatusSnapshot)
	opts.TradePublisher.RegisterSnapshot(func() []domain.Trade { return b.RecentTrades(tradesSnapshotSize) })

	opts.SubmitReceiver.RegisterReceiver(b.handleSubmit)
	opts.CancelReceiver.RegisterReceiver(func(req domain.CancelOrderRequest) {
		b.l.Info("got cancel request", zap.String("orderId", req.OrderID))
		err := b.CancelOrder(domain.OrderCancel{OrigOrderID: req.OrderID, Exchange: req.Exchange, GeneratedTime: c.Now()})
		if err != nil {
			b.l.Error("failed to cancel order", zap.String("orderId", req.OrderID), zap.Error(err))
		}
	})
	opts.CancelAllReceiver.RegisterReceiver(func(domain.CancelAllOrdersRequest) {
		b.l.Info("handling cancel all orders request")
		ctx, cancel := context.WithTimeout(context.Background(), cancelAllTimeout)
		h := b.CancelOpenOrders(ctx)
		go func() {
			defer cancel()
			n, err := h.Wait(ctx)
			if err != nil {
				b.l.Error("error when cancelling all orders", zap.Int("cancelled", n), zap.Error(err))
				return
			}
			b.l.Info("cancelled all open orders", zap.Int("cancelled", n))
		}()
	})

	oe.OrderUpdate().On(func(u domain.OrderStatusUpdate) { b.updateOrderState(u) })
	oe.ConnectChanged().On(func(s domain.ConnectivityStatus) { messages.Publish("OE gw " + s.String()) })

	c.Every(pendingRemovalDelay, b.clearPendingRemovals)

	return b
}

// OrderUpdate fires with every merged report, before it is persisted or published.
func (b *OrderBroker) OrderUpdate() *evt.Event[domain.OrderStatusReport] { return &b.orderUpdate }

// Trade fires once per fill.
func (b *OrderBroker) Trade() *evt.Event[domain.Trade] { return &b.trade }

// SendOrder mints a New report and hands it to the gateway.
func (b *OrderBroker) SendOrder(order domain.SubmitNewOrder) domain.SentOrder {
	orderID := b.oe.GenerateClientOrderID()

	rpt, _ := b.updateOrderState(domain.OrderStatusUpdate{
		OrderID:        orderID,
		Pair:           domain.Ptr(b.base.Pair()),
		Side:           domain.Ptr(order.Side),
		Quantity:       domain.Ptr(order.Quantity),
		Type:           domain.Ptr(order.Type),
		Price:          domain.Ptr(b.roundPrice(order.Price, order.Side)),
		TimeInForce:    domain.Ptr(order.TimeInForce),
		OrderStatus:    domain.Ptr(domain.OrderStatusNew),
		PreferPostOnly: domain.Ptr(order.PreferPostOnly),
		Exchange:       domain.Ptr(b.base.Exchange()),
		RejectMessage:  order.Msg,
		Source:         domain.Ptr(order.Source),
	})
	b.oe.SendOrder(rpt)

	return domain.SentOrder{SentOrderClientID: orderID}
}

// ReplaceOrder moves a working order to a new price and quantity.
func (b *OrderBroker) ReplaceOrder(replace domain.CancelReplaceOrder) (domain.SentOrder, error) {
	rpt, ok := b.orders[replace.OrigOrderID]
	if !ok {
		return domain.SentOrder{}, errors.Wrapf(ErrUnknownOrder, "cannot replace %s", replace.OrigOrderID)
	}

	merged, _ := b.updateOrderState(domain.OrderStatusUpdate{
		OrderID:        replace.OrigOrderID,
		OrderStatus:    domain.Ptr(domain.OrderStatusWorking),
		PendingReplace: true,
		Price:          domain.Ptr(b.roundPrice(replace.Price, rpt.Side)),
		Quantity:       domain.Ptr(replace.Quantity),
	})
	b.oe.ReplaceOrder(merged)

	return domain.SentOrder{SentOrderClientID: replace.OrigOrderID}, nil
}

// CancelOrder requests cancellation. Gateways that cancel by exchange id get the request
// once the exchange id is known.
func (b *OrderBroker) CancelOrder(cancel domain.OrderCancel) error {
	rpt, ok := b.orders[cancel.OrigOrderID]
	if !ok {
		return errors.Wrapf(ErrUnknownOrder, "cannot cancel %s", cancel.OrigOrderID)
	}

	if !b.oe.CancelsByClientOrderID() && rpt.ExchangeID == "" {
		b.deferredCancels[rpt.OrderID] = cancel
		b.l.Info("registered order for late cancellation", zap.String("orderId", rpt.OrderID))
		return nil
	}

	merged, _ := b.updateOrderState(domain.OrderStatusUpdate{
		OrderID:       cancel.OrigOrderID,
		PendingCancel: true,
	})
	b.oe.CancelOrder(merged)
	return nil
}

func (b *OrderBroker) roundPrice(price float64, side domain.Side) float64 {
	return rounding.RoundSide(price, b.base.MinTickIncrement(), side)
}

func (b *OrderBroker) handleSubmit(req domain.OrderRequestFromUI) {
	b.l.Info("got new order request",
		zap.String("side", req.Side),
		zap.Float64("price", req.Price),
		zap.Float64("quantity", req.Quantity))

	side := domain.ParseSide(req.Side)
	if side == domain.SideUnknown || req.Quantity <= 0 {
		b.l.Error("rejecting malformed order request", zap.Any("request", req))
		return
	}

	b.SendOrder(domain.SubmitNewOrder{
		Side:          side,
		Quantity:      req.Quantity,
		Type:          domain.ParseOrderType(req.OrderType),
		Price:         req.Price,
		TimeInForce:   domain.ParseTimeInForce(req.TimeInForce),
		Exchange:      b.base.Exchange(),
		GeneratedTime: b.c.Now(),
		Source:        domain.OrderSourceOrderTicket,
	})
}

func or[T any](v *T, fallback T) T {
	if v != nil {
		return *v
	}
	return fallback
}

// updateOrderState merges u into the cached report. Updates for unknown orders are dropped.
func (b *OrderBroker) updateOrderState(u domain.OrderStatusUpdate) (domain.OrderStatusReport, bool) {
	var orig domain.OrderStatusReport
	isNew := u.IsNew()

	if !isNew {
		var ok bool
		orig, ok = b.orders[u.OrderID]
		if !ok && u.ExchangeID != "" {
			if id, found := b.exchToClient[u.ExchangeID]; found {
				u.OrderID = id
				orig, ok = b.orders[id]
			}
		}
		if !ok {
			b.l.Error("no existing order for non-New update",
				zap.String("orderId", u.OrderID),
				zap.String("exchangeId", u.ExchangeID),
				zap.Int("knownOrders", len(b.orders)))
			return domain.OrderStatusReport{}, false
		}
	}

	quantity := or(u.Quantity, orig.Quantity)

	var cum float64
	if u.CumQuantity != nil {
		cum = *u.CumQuantity
	} else {
		cum = orig.CumQuantity + or(u.LastQuantity, 0)
	}

	var avg float64
	if cum > 0 {
		avg = or(u.AveragePrice, orig.AveragePrice)
	}

	version := 0
	if !isNew {
		version = orig.Version + 1
	}

	t := u.Time
	if t.IsZero() {
		t = b.c.Now()
	}

	exchangeID := u.ExchangeID
	if exchangeID == "" {
		exchangeID = orig.ExchangeID
	}

	liquidity := orig.Liquidity
	if u.Liquidity != nil {
		liquidity = domain.Ptr(*u.Liquidity)
	}

	o := domain.OrderStatusReport{
		OrderID:              u.OrderID,
		ExchangeID:           exchangeID,
		Pair:                 or(u.Pair, orig.Pair),
		Side:                 or(u.Side, orig.Side),
		Quantity:             quantity,
		Type:                 or(u.Type, orig.Type),
		Price:                or(u.Price, orig.Price),
		TimeInForce:          or(u.TimeInForce, orig.TimeInForce),
		OrderStatus:          or(u.OrderStatus, orig.OrderStatus),
		LeavesQuantity:       or(u.LeavesQuantity, orig.LeavesQuantity),
		CumQuantity:          cum,
		AveragePrice:         avg,
		LastQuantity:         or(u.LastQuantity, 0),
		LastPrice:            or(u.LastPrice, 0),
		Liquidity:            liquidity,
		RejectMessage:        u.RejectMessage,
		Version:              version,
		PartiallyFilled:      cum > 0 && cum != quantity,
		PendingCancel:        u.PendingCancel,
		PendingReplace:       u.PendingReplace,
		CancelRejected:       u.CancelRejected,
		PreferPostOnly:       or(u.PreferPostOnly, orig.PreferPostOnly),
		Source:               or(u.Source, orig.Source),
		Exchange:             or(u.Exchange, orig.Exchange),
		Time:                 t,
		ComputationalLatency: u.ComputationalLatency + orig.ComputationalLatency,
	}

	added := b.updateOrderStatusInMemory(o)
	if ce := b.l.Check(zap.DebugLevel, "order status"); ce != nil {
		ce.Write(zap.String("orderId", o.OrderID), zap.Int("version", o.Version),
			zap.String("status", o.OrderStatus.String()), zap.Bool("kept", added))
	}

	b.orderUpdate.Trigger(o)
	b.opts.OrderPersister.Persist(o)
	if b.shouldPublish(o) {
		b.opts.OrderPublisher.Publish(o)
	}

	if u.LastQuantity != nil && *u.LastQuantity > 0 {
		b.recordTrade(o)
	}

	if cancel, ok := b.deferredCancels[o.OrderID]; ok && !b.oe.CancelsByClientOrderID() && o.ExchangeID != "" {
		delete(b.deferredCancels, o.OrderID)
		b.l.Info("sending deferred cancel", zap.String("orderId", o.OrderID), zap.String("exchangeId", o.ExchangeID))
		if err := b.CancelOrder(cancel); err != nil {
			b.l.Error("failed to send deferred cancel", zap.String("orderId", o.OrderID), zap.Error(err))
		}
	}

	return o, true
}

func (b *OrderBroker) recordTrade(o domain.OrderStatusReport) {
	value := math.Abs(o.LastPrice * o.LastQuantity)
	var fee float64
	if o.Liquidity != nil {
		fee = b.base.TakeFee()
		if *o.Liquidity == domain.LiquidityMake {
			fee = b.base.MakeFee()
		}
		sign := -1.0
		if o.Side == domain.SideBid {
			sign = 1
		}
		value *= 1 + sign*fee
	}

	trade := domain.Trade{
		TradeID:    fmt.Sprintf("%s.%d", o.OrderID, o.Version),
		Time:       o.Time,
		Exchange:   o.Exchange,
		Pair:       o.Pair,
		Price:      o.LastPrice,
		Quantity:   o.LastQuantity,
		Side:       o.Side,
		Value:      value,
		Liquidity:  o.Liquidity,
		FeeCharged: fee,
	}

	b.trades = append(b.trades, trade)
	if len(b.trades) > 2*tradeTapeLimit {
		b.trades = append([]domain.Trade(nil), b.trades[len(b.trades)-tradeTapeLimit:]...)
	}

	b.trade.Trigger(trade)
	b.opts.TradePublisher.Publish(trade)
	b.opts.TradePersister.Persist(trade)
}

func (b *OrderBroker) updateOrderStatusInMemory(o domain.OrderStatusReport) bool {
	if b.shouldPublish(o) || !domain.OrderIsDone(o.OrderStatus) {
		b.addOrderStatusInMemory(o)
		return true
	}
	b.pendingRemovals = append(b.pendingRemovals, o)
	return false
}

func (b *OrderBroker) addOrderStatusInMemory(o domain.OrderStatusReport) {
	if o.ExchangeID != "" {
		b.exchToClient[o.ExchangeID] = o.OrderID
	}
	b.orders[o.OrderID] = o
}

func (b *OrderBroker) clearPendingRemovals() {
	now := b.c.Now()
	kept := b.pendingRemovals[:0]
	for _, o := range b.pendingRemovals {
		if now.Sub(o.Time) > pendingRemovalDelay {
			delete(b.exchToClient, o.ExchangeID)
			delete(b.orders, o.OrderID)
			delete(b.deferredCancels, o.OrderID)
			continue
		}
		kept = append(kept, o)
	}
	b.pendingRemovals = kept
}

func (b *OrderBroker) shouldPublish(o domain.OrderStatusReport) bool {
	if b.opts.PublishAllOrders {
		return true
	}
	switch o.Source {
	case domain.OrderSourceQuote, domain.OrderSourceUnknown:
		return false
	default:
		return true
	}
}

func (b *OrderBroker) orderStatusSnapshot() []domain.OrderStatusReport {
	out := make([]domain.OrderStatusReport, 0, len(b.orders))
	for _, o := range b.orders {
		if b.shouldPublish(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time.Equal(out[j].Time) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

// Order returns the cached report of orderID.
func (b *OrderBroker) Order(orderID string) (domain.OrderStatusReport, bool) {
	o, ok := b.orders[orderID]
	return o, ok
}

// RecentTrades returns a copy of the last n own trades, oldest first.
func (b *OrderBroker) RecentTrades(n int) []domain.Trade {
	return takeLast(b.trades, n)
}

// CancelAll completion handle of CancelOpenOrders.
type CancelAll struct {
	done chan struct{}

	mu        sync.Mutex
	resolved  int
	cancelled int
	err       error
}

func newCancelAll() *CancelAll {
	return &CancelAll{done: make(chan struct{})}
}

func (h *CancelAll) resolve() {
	h.mu.Lock()
	h.resolved++
	h.mu.Unlock()
}

func (h *CancelAll) finish(n int, err error) {
	h.mu.Lock()
	h.cancelled = n
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Done is closed once every cancelled order reached a terminal state.
func (h *CancelAll) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until completion or ctx expiry. On expiry it reports how many orders
// were confirmed cancelled so far.
func (h *CancelAll) Wait(ctx context.Context) (int, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.cancelled, h.err
	case <-ctx.Done():
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.resolved, errors.Wrap(ctx.Err(), "cancel open orders")
	}
}

// CancelOpenOrders cancels every live order. It must be called on the event loop.
// ctx bounds the bulk cancel call of gateways that support one.
func (b *OrderBroker) CancelOpenOrders(ctx context.Context) *CancelAll {
	h := newCancelAll()

	var ids []string
	for id, o := range b.orders {
		if o.PendingCancel || domain.OrderIsDone(o.OrderStatus) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if b.oe.SupportsCancelAllOpenOrders() {
		for _, id := range ids {
			b.updateOrderState(domain.OrderStatusUpdate{OrderID: id, PendingCancel: true})
		}
		go func() {
			n, err := b.oe.CancelAllOpenOrders(ctx)
			h.finish(n, err)
		}()
		return h
	}

	if len(ids) == 0 {
		h.finish(0, nil)
		return h
	}

	waiting := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		waiting[id] = struct{}{}
	}

	var off func()
	off = b.orderUpdate.On(func(o domain.OrderStatusReport) {
		if _, ok := waiting[o.OrderID]; !ok || !domain.OrderIsDone(o.OrderStatus) {
			return
		}
		delete(waiting, o.OrderID)
		h.resolve()
		if len(waiting) == 0 {
			off()
			h.finish(len(ids), nil)
		}
	})

	for _, id := range ids {
		o := b.orders[id]
		err := b.CancelOrder(domain.OrderCancel{OrigOrderID: id, Exchange: o.Exchange, GeneratedTime: b.c.Now()})
		if err != nil {
			b.l.Error("failed to cancel order", zap.String("orderId", id), zap.Error(err))
		}
	}

	return h
}
