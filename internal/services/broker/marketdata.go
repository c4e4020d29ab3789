package broker

import (
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/services/gateway"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

const (
	marketDataPublishInterval = time.Second
	persistedDepth            = 3
)

// MarketDataBroker keeps the current book. Consumers are notified on every gateway update,
// the dashboard and storage get a copy once per second.
type MarketDataBroker struct {
	l    *zap.Logger
	book *domain.Market

	marketData evt.Event[*domain.Market]
}

// NewMarketDataBroker subscribes to md and starts the publish timer on c.
func NewMarketDataBroker(
	l *zap.Logger,
	c clock.Clock,
	md gateway.MarketDataGateway,
	pub messaging.Publisher[domain.Market],
	persister storage.Sink[domain.Market],
	messages *Messages,
) *MarketDataBroker {
	b := &MarketDataBroker{l: l.With(zap.String("component", "md-broker"))}

	c.Every(marketDataPublishInterval, func() {
		if b.book == nil {
			return
		}
		pub.Publish(*b.book)
		top := b.book.Top(persistedDepth)
		top.Time = c.Now()
		persister.Persist(top)
	})

	pub.RegisterSnapshot(func() []domain.Market {
		if b.book == nil {
			return nil
		}
		return []domain.Market{*b.book}
	})

	md.MarketData().On(b.handleMarketData)
	md.ConnectChanged().On(func(s domain.ConnectivityStatus) {
		if s == domain.Disconnected && b.book != nil {
			b.book = nil
			b.marketData.Trigger(nil)
		}
		messages.Publish("MD gw " + s.String())
	})

	return b
}

func (b *MarketDataBroker) handleMarketData(m domain.Market) {
	if m.Crossed() {
		b.l.Warn("ignoring crossed book",
			zap.Float64("bid", m.Bids[0].Price),
			zap.Float64("ask", m.Asks[0].Price))
		b.book = nil
	} else {
		b.book = &m
	}
	b.marketData.Trigger(b.book)
}

// CurrentBook returns the latest book, nil when there is no usable market.
func (b *MarketDataBroker) CurrentBook() *domain.Market {
	return b.book
}

// MarketData fires with the new current book, possibly nil.
func (b *MarketDataBroker) MarketData() *evt.Event[*domain.Market] {
	return &b.marketData
}
