package domain

import "time"

// OrderStatus primary order state.
type OrderStatus int

const (
	OrderStatusNew OrderStatus = iota
	OrderStatusWorking
	OrderStatusComplete
	OrderStatusCancelled
	OrderStatusRejected
	OrderStatusOther
)

// String returns the string representation of the status.
func (s OrderStatus) String() string {
	switch s {
	case OrderStatusNew:
		return "New"
	case OrderStatusWorking:
		return "Working"
	case OrderStatusComplete:
		return "Complete"
	case OrderStatusCancelled:
		return "Cancelled"
	case OrderStatusRejected:
		return "Rejected"
	default:
		return "Other"
	}
}

// OrderIsDone reports whether the status is terminal.
func OrderIsDone(s OrderStatus) bool {
	switch s {
	case OrderStatusComplete, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// OrderType limit or market.
type OrderType int

const (
	OrderTypeLimit OrderType = iota
	OrderTypeMarket
)

// String returns the string representation of the order type.
func (t OrderType) String() string {
	if t == OrderTypeMarket {
		return "Market"
	}
	return "Limit"
}

// ParseOrderType maps a UI order type name.
func ParseOrderType(s string) OrderType {
	if s == "Market" || s == "market" {
		return OrderTypeMarket
	}
	return OrderTypeLimit
}

// TimeInForce order lifetime policy.
type TimeInForce int

const (
	TimeInForceIOC TimeInForce = iota
	TimeInForceFOK
	TimeInForceGTC
)

// String returns the string representation.
func (t TimeInForce) String() string {
	switch t {
	case TimeInForceIOC:
		return "IOC"
	case TimeInForceFOK:
		return "FOK"
	default:
		return "GTC"
	}
}

// ParseTimeInForce maps a UI time-in-force name, GTC when unknown.
func ParseTimeInForce(s string) TimeInForce {
	switch s {
	case "IOC":
		return TimeInForceIOC
	case "FOK":
		return TimeInForceFOK
	default:
		return TimeInForceGTC
	}
}

// Liquidity maker or taker fill.
type Liquidity int

const (
	LiquidityMake Liquidity = iota
	LiquidityTake
)

// String returns the string representation.
func (l Liquidity) String() string {
	if l == LiquidityTake {
		return "Take"
	}
	return "Make"
}

// OrderSource who created the order.
type OrderSource int

const (
	OrderSourceUnknown OrderSource = iota
	OrderSourceQuote
	OrderSourceOrderTicket
)

// String returns the string representation.
func (s OrderSource) String() string {
	switch s {
	case OrderSourceQuote:
		return "Quote"
	case OrderSourceOrderTicket:
		return "OrderTicket"
	default:
		return "Unknown"
	}
}

// OrderStatusReport canonical order record. Each version is a full replacement.
type OrderStatusReport struct {
	OrderID              string        `json:"orderId"`
	ExchangeID           string        `json:"exchangeId,omitempty"`
	Pair                 CurrencyPair  `json:"pair"`
	Side                 Side          `json:"side"`
	Quantity             float64       `json:"quantity"`
	Type                 OrderType     `json:"type"`
	Price                float64       `json:"price"`
	TimeInForce          TimeInForce   `json:"timeInForce"`
	OrderStatus          OrderStatus   `json:"orderStatus"`
	LeavesQuantity       float64       `json:"leavesQuantity"`
	CumQuantity          float64       `json:"cumQuantity"`
	AveragePrice         float64       `json:"averagePrice,omitempty"`
	LastQuantity         float64       `json:"lastQuantity,omitempty"`
	LastPrice            float64       `json:"lastPrice,omitempty"`
	Liquidity            *Liquidity    `json:"liquidity,omitempty"`
	RejectMessage        string        `json:"rejectMessage,omitempty"`
	Version              int           `json:"version"`
	PartiallyFilled      bool          `json:"partiallyFilled"`
	PendingCancel        bool          `json:"pendingCancel"`
	PendingReplace       bool          `json:"pendingReplace"`
	CancelRejected       bool          `json:"cancelRejected"`
	PreferPostOnly       bool          `json:"preferPostOnly"`
	Source               OrderSource   `json:"source"`
	Exchange             Exchange      `json:"exchange"`
	Time                 time.Time     `json:"time"`
	ComputationalLatency time.Duration `json:"computationalLatency"`
}

// OrderStatusUpdate partial order report coming from a gateway or the broker itself.
// Nil pointers and empty strings mean "keep the previous value".
type OrderStatusUpdate struct {
	OrderID              string
	ExchangeID           string
	Pair                 *CurrencyPair
	Side                 *Side
	Quantity             *float64
	Type                 *OrderType
	Price                *float64
	TimeInForce          *TimeInForce
	OrderStatus          *OrderStatus
	LeavesQuantity       *float64
	CumQuantity          *float64
	AveragePrice         *float64
	LastQuantity         *float64
	LastPrice            *float64
	Liquidity            *Liquidity
	RejectMessage        string
	PendingCancel        bool
	PendingReplace       bool
	CancelRejected       bool
	PreferPostOnly       *bool
	Source               *OrderSource
	Exchange             *Exchange
	Time                 time.Time
	ComputationalLatency time.Duration
}

// IsNew reports whether the update mints a new order.
func (u OrderStatusUpdate) IsNew() bool {
	return u.OrderStatus != nil && *u.OrderStatus == OrderStatusNew
}

// Ptr returns a pointer to v, handy for building partial updates.
func Ptr[T any](v T) *T {
	return &v
}

// SubmitNewOrder request to place an order.
type SubmitNewOrder struct {
	Side           Side
	Quantity       float64
	Type           OrderType
	Price          float64
	TimeInForce    TimeInForce
	Exchange       Exchange
	GeneratedTime  time.Time
	PreferPostOnly bool
	Source         OrderSource
	Msg            string
}

// OrderCancel request to cancel an order by its client id.
type OrderCancel struct {
	OrigOrderID   string
	Exchange      Exchange
	GeneratedTime time.Time
}

// CancelReplaceOrder request to replace price and quantity of a working order.
type CancelReplaceOrder struct {
	OrigOrderID   string
	Quantity      float64
	Price         float64
	Exchange      Exchange
	GeneratedTime time.Time
}

// SentOrder handle returned after a submit.
type SentOrder struct {
	SentOrderClientID string
}

// OrderRequestFromUI order ticket as submitted from the dashboard.
type OrderRequestFromUI struct {
	Side        string  `json:"side"`
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"`
	TimeInForce string  `json:"timeInForce"`
	OrderType   string  `json:"orderType"`
}

// CancelOrderRequest cancel ticket as submitted from the dashboard.
type CancelOrderRequest struct {
	OrderID  string   `json:"orderId"`
	Exchange Exchange `json:"exchange"`
}

// CancelAllOrdersRequest cancel-all ticket, carries no data.
type CancelAllOrdersRequest struct{}
