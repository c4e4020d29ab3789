// Package gateway adapts exchanges to the events and calls the brokers rely on.
// Gateways trigger their events on the event loop only.
package gateway

import (
	"context"

	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
)

// MarketDataGateway public market feed.
type MarketDataGateway interface {
	MarketData() *evt.Event[domain.Market]
	MarketTrade() *evt.Event[domain.GatewayMarketTrade]
	ConnectChanged() *evt.Event[domain.ConnectivityStatus]
}

// OrderEntryGateway order routing. Send, cancel and replace never fail synchronously,
// problems come back as OrderUpdate events.
type OrderEntryGateway interface {
	OrderUpdate() *evt.Event[domain.OrderStatusUpdate]
	ConnectChanged() *evt.Event[domain.ConnectivityStatus]

	SendOrder(o domain.OrderStatusReport)
	CancelOrder(o domain.OrderStatusReport)
	ReplaceOrder(o domain.OrderStatusReport)

	GenerateClientOrderID() string
	CancelsByClientOrderID() bool
	SupportsCancelAllOpenOrders() bool
	// CancelAllOpenOrders blocks until the exchange answers. Never called on the event loop.
	CancelAllOpenOrders(ctx context.Context) (int, error)
}

// PositionGateway balance feed.
type PositionGateway interface {
	PositionUpdate() *evt.Event[domain.CurrencyPosition]
}

// Details static exchange properties.
type Details interface {
	MinTickIncrement() float64
	HasSelfTradePrevention() bool
	MakeFee() float64
	TakeFee() float64
	Exchange() domain.Exchange
}

// Runner gateways that need a background goroutine (polling, sockets).
type Runner interface {
	Run(ctx context.Context) error
}

// Gateway one exchange connection split by capability.
type Gateway struct {
	MD      MarketDataGateway
	OE      OrderEntryGateway
	Pos     PositionGateway
	Details Details
}

// Runners returns every part of the gateway that needs Run.
func (g Gateway) Runners() []Runner {
	var out []Runner
	seen := map[any]bool{}
	for _, part := range []any{g.MD, g.OE, g.Pos, g.Details} {
		r, ok := part.(Runner)
		if !ok || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, r)
	}
	return out
}

type staticDetails struct {
	minTick  float64
	makeFee  float64
	takeFee  float64
	exchange domain.Exchange
	stp      bool
}

func (d staticDetails) MinTickIncrement() float64    { return d.minTick }
func (d staticDetails) HasSelfTradePrevention() bool { return d.stp }
func (d staticDetails) MakeFee() float64             { return d.makeFee }
func (d staticDetails) TakeFee() float64             { return d.takeFee }
func (d staticDetails) Exchange() domain.Exchange    { return d.exchange }
