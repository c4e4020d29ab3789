package domain

import (
	"fmt"
	"time"
)

// Trade own fill, created once per fill event.
type Trade struct {
	TradeID    string       `json:"tradeId"`
	Time       time.Time    `json:"time"`
	Exchange   Exchange     `json:"exchange"`
	Pair       CurrencyPair `json:"pair"`
	Price      float64      `json:"price"`
	Quantity   float64      `json:"quantity"`
	Side       Side         `json:"side"`
	Value      float64      `json:"value"`
	Liquidity  *Liquidity   `json:"liquidity,omitempty"`
	FeeCharged float64      `json:"feeCharged"`
}

// String returns a human-readable string representation.
func (t Trade) String() string {
	return fmt.Sprintf("%s %s %s qty: %g px: %g", t.TradeID, t.Pair.String(), t.Side.String(), t.Quantity, t.Price)
}

// GatewayMarketTrade public trade print as reported by a gateway.
type GatewayMarketTrade struct {
	Price     float64
	Size      float64
	Time      time.Time
	OnStartup bool
	MakeSide  Side
}

// MarketTrade public trade print enriched with our quote and the book at that time.
type MarketTrade struct {
	Exchange Exchange       `json:"exchange"`
	Pair     CurrencyPair   `json:"pair"`
	Price    float64        `json:"price"`
	Size     float64        `json:"size"`
	Time     time.Time      `json:"time"`
	Quote    *TwoSidedQuote `json:"quote,omitempty"`
	Bid      *MarketSide    `json:"bid,omitempty"`
	Ask      *MarketSide    `json:"ask,omitempty"`
	MakeSide Side           `json:"make_side"`
}
