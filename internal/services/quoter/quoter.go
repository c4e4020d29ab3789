// Package quoter keeps at most one resting quote order per side.
package quoter

import (
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
)

// OrderBroker the subset of the order broker the quoter drives.
type OrderBroker interface {
	SendOrder(order domain.SubmitNewOrder) domain.SentOrder
	CancelOrder(cancel domain.OrderCancel) error
	OrderUpdate() *evt.Event[domain.OrderStatusReport]
}

// ExchangeStatus connectivity and identity of the venue.
type ExchangeStatus interface {
	ConnectStatus() domain.ConnectivityStatus
	Exchange() domain.Exchange
}

// Quoter routes quote requests to the bid or ask ExchangeQuoter.
type Quoter struct {
	bid *ExchangeQuoter
	ask *ExchangeQuoter
}

// New creates one ExchangeQuoter per side.
func New(l *zap.Logger, broker OrderBroker, exch ExchangeStatus) *Quoter {
	return &Quoter{
		bid: NewExchangeQuoter(l, broker, exch, domain.SideBid),
		ask: NewExchangeQuoter(l, broker, exch, domain.SideAsk),
	}
}

// UpdateQuote places or moves the quote on side.
func (q *Quoter) UpdateQuote(quote domain.Quote, side domain.Side, t time.Time) domain.QuoteSent {
	if eq := q.side(side); eq != nil {
		return eq.UpdateQuote(quote, t)
	}
	return domain.QuoteSentUnableToSend
}

// CancelQuote pulls the quote on side.
func (q *Quoter) CancelQuote(side domain.Side, t time.Time) domain.QuoteSent {
	if eq := q.side(side); eq != nil {
		return eq.CancelQuote(t)
	}
	return domain.QuoteSentUnableToSend
}

// QuotesSent lists quote orders on side that have not reached a terminal state.
func (q *Quoter) QuotesSent(side domain.Side) []domain.QuoteOrder {
	if eq := q.side(side); eq != nil {
		return eq.QuotesSent()
	}
	return nil
}

// ActiveQuote returns the quote order currently representing side.
func (q *Quoter) ActiveQuote(side domain.Side) (domain.QuoteOrder, bool) {
	if eq := q.side(side); eq != nil {
		return eq.ActiveQuote()
	}
	return domain.QuoteOrder{}, false
}

func (q *Quoter) side(s domain.Side) *ExchangeQuoter {
	switch s {
	case domain.SideBid:
		return q.bid
	case domain.SideAsk:
		return q.ask
	default:
		return nil
	}
}

// ExchangeQuoter state machine of one side: idle or one active quote order.
type ExchangeQuoter struct {
	l        *zap.Logger
	broker   OrderBroker
	exch     ExchangeStatus
	side     domain.Side
	exchange domain.Exchange

	active     *domain.QuoteOrder
	quotesSent []domain.QuoteOrder
}

// NewExchangeQuoter subscribes to broker order updates to notice terminal states.
func NewExchangeQuoter(l *zap.Logger, broker OrderBroker, exch ExchangeStatus, side domain.Side) *ExchangeQuoter {
	q := &ExchangeQuoter{
		l:        l.With(zap.String("component", "quoter"), zap.String("side", side.String())),
		broker:   broker,
		exch:     exch,
		side:     side,
		exchange: exch.Exchange(),
	}
	broker.OrderUpdate().On(q.handleOrderUpdate)
	return q
}

func (q *ExchangeQuoter) handleOrderUpdate(o domain.OrderStatusReport) {
	if !domain.OrderIsDone(o.OrderStatus) {
		return
	}

	if q.active != nil && q.active.OrderID == o.OrderID {
		q.active = nil
	}

	kept := q.quotesSent[:0]
	for _, s := range q.quotesSent {
		if s.OrderID != o.OrderID {
			kept = append(kept, s)
		}
	}
	q.quotesSent = kept
}

// UpdateQuote sends quote as a new order, cancelling the previous one first.
// A quote equal in price and size to the active one leaves the resting order alone.
func (q *ExchangeQuoter) UpdateQuote(quote domain.Quote, t time.Time) domain.QuoteSent {
	if q.exch.ConnectStatus() != domain.Connected {
		return domain.QuoteSentUnableToSend
	}

	if q.active == nil {
		return q.start(quote, t)
	}

	if q.active.Quote == quote {
		return domain.QuoteSentUnsentDuplicate
	}

	q.stop(t)
	q.start(quote, t)
	return domain.QuoteSentModify
}

// CancelQuote cancels the active quote order if there is one.
func (q *ExchangeQuoter) CancelQuote(t time.Time) domain.QuoteSent {
	if q.exch.ConnectStatus() != domain.Connected {
		return domain.QuoteSentUnableToSend
	}
	return q.stop(t)
}

func (q *ExchangeQuoter) start(quote domain.Quote, t time.Time) domain.QuoteSent {
	sent := q.broker.SendOrder(domain.SubmitNewOrder{
		Side:           q.side,
		Quantity:       quote.Size,
		Type:           domain.OrderTypeLimit,
		Price:          quote.Price,
		TimeInForce:    domain.TimeInForceGTC,
		Exchange:       q.exchange,
		GeneratedTime:  t,
		PreferPostOnly: true,
		Source:         domain.OrderSourceQuote,
	})

	qo := domain.QuoteOrder{Quote: quote, OrderID: sent.SentOrderClientID}
	q.quotesSent = append(q.quotesSent, qo)
	q.active = &qo

	return domain.QuoteSentFirst
}

func (q *ExchangeQuoter) stop(t time.Time) domain.QuoteSent {
	if q.active == nil {
		return domain.QuoteSentUnsentDelete
	}

	orderID := q.active.OrderID
	q.active = nil

	err := q.broker.CancelOrder(domain.OrderCancel{OrigOrderID: orderID, Exchange: q.exchange, GeneratedTime: t})
	if err != nil {
		q.l.Warn("failed to cancel quote order", zap.String("orderId", orderID), zap.Error(err))
	}

	return domain.QuoteSentDelete
}

// QuotesSent returns a copy of the non-terminal quote orders of this side.
func (q *ExchangeQuoter) QuotesSent() []domain.QuoteOrder {
	return append([]domain.QuoteOrder(nil), q.quotesSent...)
}

// ActiveQuote returns the active quote order.
func (q *ExchangeQuoter) ActiveQuote() (domain.QuoteOrder, bool) {
	if q.active == nil {
		return domain.QuoteOrder{}, false
	}
	return *q.active, true
}
