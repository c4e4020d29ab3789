// Package quotesender decides per side whether the engine's quote goes live or is held.
package quotesender

import (
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/messaging"
)

// QuoteSource the quoting engine.
type QuoteSource interface {
	LatestQuote() *domain.TwoSidedQuote
	QuoteChanged() *evt.Event[*domain.TwoSidedQuote]
}

// Quoter places and cancels quote orders.
type Quoter interface {
	UpdateQuote(quote domain.Quote, side domain.Side, t time.Time) domain.QuoteSent
	CancelQuote(side domain.Side, t time.Time) domain.QuoteSent
	QuotesSent(side domain.Side) []domain.QuoteOrder
}

// ActiveSource the operator's quoting switch.
type ActiveSource interface {
	Latest() bool
	Changed() *evt.Event[bool]
}

// PositionSource per-currency balances.
type PositionSource interface {
	Position(currency domain.Currency) (domain.CurrencyPosition, bool)
}

// Details the traded pair and venue capabilities.
type Details interface {
	Pair() domain.CurrencyPair
	HasSelfTradePrevention() bool
}

// Sender sends the latest quote through the quoter, or cancels it.
type Sender struct {
	l         *zap.Logger
	engine    QuoteSource
	quoter    Quoter
	active    ActiveSource
	positions PositionSource
	details   Details
	pub       messaging.Publisher[domain.TwoSidedQuoteStatus]

	latest domain.TwoSidedQuoteStatus
}

// New reacts to the active switch and to quote changes.
func New(
	l *zap.Logger,
	c clock.Clock,
	engine QuoteSource,
	quoter Quoter,
	active ActiveSource,
	positions PositionSource,
	details Details,
	pub messaging.Publisher[domain.TwoSidedQuoteStatus],
) *Sender {
	s := &Sender{
		l:         l.With(zap.String("component", "quotesender")),
		engine:    engine,
		quoter:    quoter,
		active:    active,
		positions: positions,
		details:   details,
		pub:       pub,
		latest:    domain.TwoSidedQuoteStatus{BidStatus: domain.QuoteStatusHeld, AskStatus: domain.QuoteStatusHeld},
	}

	active.Changed().On(func(bool) { s.sendQuote(c.Now()) })
	engine.QuoteChanged().On(func(q *domain.TwoSidedQuote) {
		if q != nil && !q.Time.IsZero() {
			s.sendQuote(q.Time)
			return
		}
		s.sendQuote(c.Now())
	})
	pub.RegisterSnapshot(func() []domain.TwoSidedQuoteStatus {
		return []domain.TwoSidedQuoteStatus{s.latest}
	})

	return s
}

// LatestStatus returns the last published per-side status.
func (s *Sender) LatestStatus() domain.TwoSidedQuoteStatus { return s.latest }

func (s *Sender) sendQuote(t time.Time) {
	quote := s.engine.LatestQuote()
	pair := s.details.Pair()

	bidStatus, askStatus := domain.QuoteStatusHeld, domain.QuoteStatusHeld
	if quote != nil && s.active.Latest() {
		if quote.Ask != nil && s.hasEnoughPosition(pair.Base, quote.Ask.Size) &&
			(s.details.HasSelfTradePrevention() || !s.crossesSentQuotes(domain.SideAsk, quote.Ask.Price)) {
			askStatus = domain.QuoteStatusLive
		}
		if quote.Bid != nil && s.hasEnoughPosition(pair.Quote, quote.Bid.Size*quote.Bid.Price) &&
			(s.details.HasSelfTradePrevention() || !s.crossesSentQuotes(domain.SideBid, quote.Bid.Price)) {
			bidStatus = domain.QuoteStatusLive
		}
	}

	var askAction, bidAction domain.QuoteSent
	if askStatus == domain.QuoteStatusLive {
		askAction = s.quoter.UpdateQuote(*quote.Ask, domain.SideAsk, t)
	} else {
		askAction = s.quoter.CancelQuote(domain.SideAsk, t)
	}
	if bidStatus == domain.QuoteStatusLive {
		bidAction = s.quoter.UpdateQuote(*quote.Bid, domain.SideBid, t)
	} else {
		bidAction = s.quoter.CancelQuote(domain.SideBid, t)
	}

	s.l.Debug("quote sent",
		zap.Stringer("bid", bidAction),
		zap.Stringer("ask", askAction),
	)

	s.setStatus(domain.TwoSidedQuoteStatus{BidStatus: bidStatus, AskStatus: askStatus})
}

func (s *Sender) setStatus(st domain.TwoSidedQuoteStatus) {
	if st == s.latest {
		return
	}
	s.latest = st
	s.pub.Publish(st)
}

func (s *Sender) hasEnoughPosition(cur domain.Currency, minAmt float64) bool {
	pos, ok := s.positions.Position(cur)
	return ok && pos.Amount > minAmt
}

// crossesSentQuotes reports whether px on side would trade against one of our own
// resting quotes on the other side.
func (s *Sender) crossesSentQuotes(side domain.Side, px float64) bool {
	crosses := func(q domain.Quote) bool { return q.Price >= px }
	if side == domain.SideBid {
		crosses = func(q domain.Quote) bool { return q.Price <= px }
	}

	for _, q := range s.quoter.QuotesSent(side.Opposite()) {
		if crosses(q.Quote) {
			s.l.Warn("crossing quote detected",
				zap.Stringer("side", side),
				zap.Float64("price", px),
				zap.String("crossedOrderId", q.OrderID),
				zap.Float64("crossedPrice", q.Quote.Price),
			)
			return true
		}
	}
	return false
}
