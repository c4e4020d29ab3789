package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Exchange venue identifier.
type Exchange int

const (
	ExchangeNull Exchange = iota
	ExchangeHitBtc
	ExchangeOkCoin
	ExchangeAtlasAts
	ExchangeBtcChina
	ExchangeCoinbase
	ExchangeBitfinex
	ExchangeBinance
	ExchangeBybit
)

var exchangeNames = map[Exchange]string{
	ExchangeNull:     "Null",
	ExchangeHitBtc:   "HitBtc",
	ExchangeOkCoin:   "OkCoin",
	ExchangeAtlasAts: "AtlasAts",
	ExchangeBtcChina: "BtcChina",
	ExchangeCoinbase: "Coinbase",
	ExchangeBitfinex: "Bitfinex",
	ExchangeBinance:  "Binance",
	ExchangeBybit:    "Bybit",
}

// String returns the string representation of the exchange.
func (e Exchange) String() string {
	if name, ok := exchangeNames[e]; ok {
		return name
	}
	return "unknown"
}

// ParseExchange case-insensitive lookup of an exchange name.
func ParseExchange(s string) (Exchange, error) {
	for e, name := range exchangeNames {
		if strings.EqualFold(name, s) {
			return e, nil
		}
	}
	return ExchangeNull, errors.Errorf("unknown exchange %q", s)
}

// ConnectivityStatus gateway connection state.
type ConnectivityStatus int

const (
	Connected ConnectivityStatus = iota
	Disconnected
)

// String returns the string representation.
func (c ConnectivityStatus) String() string {
	if c == Connected {
		return "Connected"
	}
	return "Disconnected"
}

// GatewayType which half of a gateway reported connectivity.
type GatewayType int

const (
	GatewayTypeMarketData GatewayType = iota
	GatewayTypeOrderEntry
	GatewayTypePosition
)

// ProductAdvertisement static description of what is being traded.
type ProductAdvertisement struct {
	Exchange    Exchange     `json:"exchange"`
	Pair        CurrencyPair `json:"pair"`
	Environment string       `json:"environment"`
	MinTick     float64      `json:"minTick"`
}

// Message operator-facing notice.
type Message struct {
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// SerializedQuotesActive persisted quoting on/off switch.
type SerializedQuotesActive struct {
	Active bool      `json:"active"`
	Time   time.Time `json:"time"`
}
