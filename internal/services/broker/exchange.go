// Package broker owns exchange state: connectivity, the current book, orders, trades and positions.
package broker

import (
	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/services/gateway"
)

// ExchangeInfo static facts about the traded exchange and pair.
type ExchangeInfo interface {
	Pair() domain.CurrencyPair
	MinTickIncrement() float64
	HasSelfTradePrevention() bool
	MakeFee() float64
	TakeFee() float64
	Exchange() domain.Exchange
}

// ExchangeBroker combines market data and order entry connectivity.
// The exchange is Connected only while both halves are.
type ExchangeBroker struct {
	l       *zap.Logger
	pair    domain.CurrencyPair
	details gateway.Details
	pub     messaging.Publisher[domain.ConnectivityStatus]

	mdStatus domain.ConnectivityStatus
	oeStatus domain.ConnectivityStatus
	status   domain.ConnectivityStatus

	connectChanged evt.Event[domain.ConnectivityStatus]
}

// NewExchangeBroker subscribes to both gateway halves.
func NewExchangeBroker(
	l *zap.Logger,
	pair domain.CurrencyPair,
	md gateway.MarketDataGateway,
	oe gateway.OrderEntryGateway,
	details gateway.Details,
	pub messaging.Publisher[domain.ConnectivityStatus],
) *ExchangeBroker {
	b := &ExchangeBroker{
		l:        l.With(zap.String("component", "exchange-broker")),
		pair:     pair,
		details:  details,
		pub:      pub,
		mdStatus: domain.Disconnected,
		oeStatus: domain.Disconnected,
		status:   domain.Disconnected,
	}

	md.ConnectChanged().On(func(s domain.ConnectivityStatus) { b.onConnect(domain.GatewayTypeMarketData, s) })
	oe.ConnectChanged().On(func(s domain.ConnectivityStatus) { b.onConnect(domain.GatewayTypeOrderEntry, s) })
	pub.RegisterSnapshot(func() []domain.ConnectivityStatus { return []domain.ConnectivityStatus{b.status} })

	return b
}

func (b *ExchangeBroker) onConnect(gw domain.GatewayType, s domain.ConnectivityStatus) {
	switch gw {
	case domain.GatewayTypeMarketData:
		if b.mdStatus == s {
			return
		}
		b.mdStatus = s
	case domain.GatewayTypeOrderEntry:
		if b.oeStatus == s {
			return
		}
		b.oeStatus = s
	}

	status := domain.Disconnected
	if b.mdStatus == domain.Connected && b.oeStatus == domain.Connected {
		status = domain.Connected
	}
	b.status = status

	b.l.Info("connection status changed",
		zap.String("status", status.String()),
		zap.String("md", b.mdStatus.String()),
		zap.String("oe", b.oeStatus.String()))

	b.connectChanged.Trigger(status)
	b.pub.Publish(status)
}

// ConnectChanged fires on every change of either half.
func (b *ExchangeBroker) ConnectChanged() *evt.Event[domain.ConnectivityStatus] {
	return &b.connectChanged
}

func (b *ExchangeBroker) ConnectStatus() domain.ConnectivityStatus { return b.status }
func (b *ExchangeBroker) Pair() domain.CurrencyPair                { return b.pair }
func (b *ExchangeBroker) MinTickIncrement() float64                { return b.details.MinTickIncrement() }
func (b *ExchangeBroker) HasSelfTradePrevention() bool             { return b.details.HasSelfTradePrevention() }
func (b *ExchangeBroker) MakeFee() float64                         { return b.details.MakeFee() }
func (b *ExchangeBroker) TakeFee() float64                         { return b.details.TakeFee() }
func (b *ExchangeBroker) Exchange() domain.Exchange                { return b.details.Exchange() }
