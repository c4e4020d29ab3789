// Package domain defines core data structures used throughout the market maker.
package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Currency asset symbol, e.g. BTC.
type Currency string

// String returns the string representation.
func (c Currency) String() string {
	return string(c)
}

// CurrencyPair traded instrument.
type CurrencyPair struct {
	// Base currency symbol.
	Base Currency `json:"base"`
	// Quote currency symbol.
	Quote Currency `json:"quote"`
}

// String returns the string representation.
func (p CurrencyPair) String() string {
	return fmt.Sprintf("%s/%s", p.Base, p.Quote)
}

// Symbol returns the concatenated exchange symbol, e.g. BTCUSDT.
func (p CurrencyPair) Symbol() string {
	return fmt.Sprintf("%s%s", p.Base, p.Quote)
}

// ParseCurrencyPair parses BASE/QUOTE (BASE_QUOTE is accepted as well).
func ParseCurrencyPair(s string) (CurrencyPair, error) {
	sep := "/"
	if !strings.Contains(s, sep) {
		sep = "_"
	}

	parts := strings.Split(s, sep)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return CurrencyPair{}, errors.Errorf("invalid currency pair %q, must be in the format of BASE/QUOTE, e.g. BTC/USD", s)
	}

	return CurrencyPair{
		Base:  Currency(strings.ToUpper(strings.TrimSpace(parts[0]))),
		Quote: Currency(strings.ToUpper(strings.TrimSpace(parts[1]))),
	}, nil
}
