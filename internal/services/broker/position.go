package broker

import (
	"math"

	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/services/gateway"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

// positionEpsilon smaller moves of value and amounts are not republished.
const positionEpsilon = 2e-2

// BookSource gives access to the current book.
type BookSource interface {
	CurrentBook() *domain.Market
}

// PositionBroker turns per-currency balances into a pair position report.
type PositionBroker struct {
	l         *zap.Logger
	c         clock.Clock
	base      ExchangeInfo
	md        BookSource
	pub       messaging.Publisher[domain.PositionReport]
	persister storage.Sink[domain.PositionReport]

	currencies map[domain.Currency]domain.CurrencyPosition
	report     *domain.PositionReport

	newReport evt.Event[domain.PositionReport]
}

// NewPositionBroker subscribes to balance updates of pos.
func NewPositionBroker(
	l *zap.Logger,
	c clock.Clock,
	base ExchangeInfo,
	pos gateway.PositionGateway,
	pub messaging.Publisher[domain.PositionReport],
	persister storage.Sink[domain.PositionReport],
	md BookSource,
) *PositionBroker {
	b := &PositionBroker{
		l:          l.With(zap.String("component", "position-broker")),
		c:          c,
		base:       base,
		md:         md,
		pub:        pub,
		persister:  persister,
		currencies: make(map[domain.Currency]domain.CurrencyPosition),
	}

	pos.PositionUpdate().On(b.onPositionUpdate)
	pub.RegisterSnapshot(func() []domain.PositionReport {
		if b.report == nil {
			return nil
		}
		return []domain.PositionReport{*b.report}
	})

	return b
}

func (b *PositionBroker) onPositionUpdate(p domain.CurrencyPosition) {
	b.currencies[p.Currency] = p

	pair := b.base.Pair()
	basePos, okBase := b.currencies[pair.Base]
	quotePos, okQuote := b.currencies[pair.Quote]
	if !okBase || !okQuote {
		return
	}
	mid, ok := b.md.CurrentBook().Mid()
	if !ok || mid == 0 {
		return
	}

	rpt := domain.PositionReport{
		BaseAmount:      basePos.Amount,
		QuoteAmount:     quotePos.Amount,
		BaseHeldAmount:  basePos.HeldAmount,
		QuoteHeldAmount: quotePos.HeldAmount,
		Value:           basePos.Amount + quotePos.Amount/mid + basePos.HeldAmount + quotePos.HeldAmount/mid,
		QuoteValue:      basePos.Amount*mid + quotePos.Amount + basePos.HeldAmount*mid + quotePos.HeldAmount,
		Pair:            pair,
		Exchange:        b.base.Exchange(),
		Time:            b.c.Now(),
	}

	if prev := b.report; prev != nil &&
		math.Abs(rpt.Value-prev.Value) < positionEpsilon &&
		math.Abs(rpt.BaseAmount-prev.BaseAmount) < positionEpsilon &&
		math.Abs(rpt.BaseHeldAmount-prev.BaseHeldAmount) < positionEpsilon &&
		math.Abs(rpt.QuoteHeldAmount-prev.QuoteHeldAmount) < positionEpsilon {
		return
	}

	b.report = &rpt
	b.newReport.Trigger(rpt)
	b.pub.Publish(rpt)
	b.persister.Persist(rpt)
}

// LatestReport returns the last published report, nil before the first one.
func (b *PositionBroker) LatestReport() *domain.PositionReport {
	return b.report
}

// Position returns the last balance of currency.
func (b *PositionBroker) Position(currency domain.Currency) (domain.CurrencyPosition, bool) {
	p, ok := b.currencies[currency]
	return p, ok
}

// NewReport fires with every published report.
func (b *PositionBroker) NewReport() *evt.Event[domain.PositionReport] {
	return &b.newReport
}
