package domain

import "time"

// CurrencyPosition balance of one currency, last write wins.
type CurrencyPosition struct {
	Amount     float64  `json:"amount"`
	HeldAmount float64  `json:"heldAmount"`
	Currency   Currency `json:"currency"`
}

// PositionReport pair-level position valued at the top-of-book mid.
type PositionReport struct {
	BaseAmount      float64      `json:"baseAmount"`
	QuoteAmount     float64      `json:"quoteAmount"`
	BaseHeldAmount  float64      `json:"baseHeldAmount"`
	QuoteHeldAmount float64      `json:"quoteHeldAmount"`
	Value           float64      `json:"value"`
	QuoteValue      float64      `json:"quoteValue"`
	Pair            CurrencyPair `json:"pair"`
	Exchange        Exchange     `json:"exchange"`
	Time            time.Time    `json:"time"`
}

// TotalBase returns free plus held base amount.
func (r PositionReport) TotalBase() float64 {
	return r.BaseAmount + r.BaseHeldAmount
}

// TargetBasePositionValue desired base inventory.
type TargetBasePositionValue struct {
	Data float64   `json:"data"`
	Time time.Time `json:"time"`
}
