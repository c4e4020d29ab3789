package broker

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/rounding"
	"github.com/vadiminshakov/tribeca/internal/services/gateway"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

const marketTradesKept = 50

// QuoteSource gives access to the latest computed quote.
type QuoteSource interface {
	LatestQuote() *domain.TwoSidedQuote
}

// MarketTradeBroker records public trade prints next to our quote and the book at that moment.
type MarketTradeBroker struct {
	l         *zap.Logger
	base      ExchangeInfo
	md        BookSource
	quotes    QuoteSource
	pub       messaging.Publisher[domain.MarketTrade]
	persister storage.Sink[domain.MarketTrade]

	trades []domain.MarketTrade

	marketTrade evt.Event[domain.MarketTrade]
}

// NewMarketTradeBroker subscribes to gw prints. initial are trades loaded at startup.
func NewMarketTradeBroker(
	l *zap.Logger,
	gw gateway.MarketDataGateway,
	base ExchangeInfo,
	md BookSource,
	quotes QuoteSource,
	pub messaging.Publisher[domain.MarketTrade],
	persister storage.Sink[domain.MarketTrade],
	initial []domain.MarketTrade,
) *MarketTradeBroker {
	b := &MarketTradeBroker{
		l:         l.With(zap.String("component", "mt-broker")),
		base:      base,
		md:        md,
		quotes:    quotes,
		pub:       pub,
		persister: persister,
	}
	b.trades = append(b.trades, initial...)
	b.l.Info("loaded market trades", zap.Int("count", len(b.trades)))

	pub.RegisterSnapshot(func() []domain.MarketTrade { return takeLast(b.trades, marketTradesKept) })
	gw.MarketTrade().On(b.handleNewMarketTrade)

	return b
}

func (b *MarketTradeBroker) handleNewMarketTrade(u domain.GatewayMarketTrade) {
	tick := b.base.MinTickIncrement()

	if u.OnStartup && b.isReplay(u, tick) {
		return
	}

	t := domain.MarketTrade{
		Exchange: b.base.Exchange(),
		Pair:     b.base.Pair(),
		Price:    rounding.RoundNearest(u.Price, tick),
		Size:     u.Size,
		Time:     u.Time,
		MakeSide: u.MakeSide,
	}
	if !u.OnStartup {
		if q := b.quotes.LatestQuote(); q != nil {
			qc := *q
			t.Quote = &qc
		}
		if book := b.md.CurrentBook(); book.HasBothSides() {
			bid, ask := book.Bids[0], book.Asks[0]
			t.Bid = &bid
			t.Ask = &ask
		}
	}

	if len(b.trades) >= marketTradesKept {
		b.trades = append([]domain.MarketTrade(nil), b.trades[len(b.trades)-marketTradesKept+1:]...)
	}
	b.trades = append(b.trades, t)

	b.marketTrade.Trigger(t)
	b.pub.Publish(t)
	b.persister.Persist(t)
}

// isReplay reports whether a startup print was already recorded in a previous run.
func (b *MarketTradeBroker) isReplay(u domain.GatewayMarketTrade, tick float64) bool {
	for _, existing := range b.trades {
		if math.Abs(existing.Size-u.Size) < 1e-4 &&
			math.Abs(existing.Price-u.Price) < 0.5*tick &&
			absDuration(existing.Time.Sub(u.Time)) < time.Minute {
			return true
		}
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// MarketTrades returns a copy of the kept prints.
func (b *MarketTradeBroker) MarketTrades() []domain.MarketTrade {
	return takeLast(b.trades, len(b.trades))
}

// MarketTrade fires with every recorded print.
func (b *MarketTradeBroker) MarketTrade() *evt.Event[domain.MarketTrade] {
	return &b.marketTrade
}
