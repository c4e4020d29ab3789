package domain

import "time"

// TradeSafety rolling fill statistics, expressed in multiples of the quote size.
type TradeSafety struct {
	Buy      float64   `json:"buy"`
	Sell     float64   `json:"sell"`
	Combined float64   `json:"combined"`
	BuyPing  float64   `json:"buyPing"`
	SellPong float64   `json:"sellPong"`
	Time     time.Time `json:"time"`
}
