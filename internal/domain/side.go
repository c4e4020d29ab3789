package domain

// Side order or quote side.
type Side int

const (
	SideBid Side = iota
	SideAsk
	SideUnknown
)

// String returns the string representation of the side.
func (s Side) String() string {
	switch s {
	case SideBid:
		return "Bid"
	case SideAsk:
		return "Ask"
	default:
		return "Unknown"
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	switch s {
	case SideBid:
		return SideAsk
	case SideAsk:
		return SideBid
	default:
		return SideUnknown
	}
}

// ParseSide maps a UI side name to Side.
func ParseSide(s string) Side {
	switch s {
	case "Bid", "bid", "Buy", "buy":
		return SideBid
	case "Ask", "ask", "Sell", "sell":
		return SideAsk
	default:
		return SideUnknown
	}
}
