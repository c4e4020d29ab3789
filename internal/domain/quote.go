package domain

import "time"

// Quote one side of our intended quote.
type Quote struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// TwoSidedQuote intended quote, either side may be omitted.
type TwoSidedQuote struct {
	Bid  *Quote    `json:"bid"`
	Ask  *Quote    `json:"ask"`
	Time time.Time `json:"time"`
}

// QuoteStatus whether a side is resting on the exchange.
type QuoteStatus int

const (
	QuoteStatusLive QuoteStatus = iota
	QuoteStatusHeld
)

// String returns the string representation.
func (s QuoteStatus) String() string {
	if s == QuoteStatusLive {
		return "Live"
	}
	return "Held"
}

// TwoSidedQuoteStatus per-side status published by the quote sender.
type TwoSidedQuoteStatus struct {
	BidStatus QuoteStatus `json:"bidStatus"`
	AskStatus QuoteStatus `json:"askStatus"`
}

// QuoteSent outcome of a quoter call.
type QuoteSent int

const (
	QuoteSentFirst QuoteSent = iota
	QuoteSentModify
	QuoteSentUnsentDuplicate
	QuoteSentDelete
	QuoteSentUnsentDelete
	QuoteSentUnableToSend
)

// String returns the string representation.
func (q QuoteSent) String() string {
	switch q {
	case QuoteSentFirst:
		return "First"
	case QuoteSentModify:
		return "Modify"
	case QuoteSentUnsentDuplicate:
		return "UnsentDuplicate"
	case QuoteSentDelete:
		return "Delete"
	case QuoteSentUnsentDelete:
		return "UnsentDelete"
	default:
		return "UnableToSend"
	}
}

// QuoteOrder the order currently representing our quote on one side.
type QuoteOrder struct {
	Quote   Quote
	OrderID string
}
