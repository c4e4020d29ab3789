// Package rounding snaps prices and sizes to exchange tick increments.
package rounding

import (
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tribeca/internal/domain"
)

// RoundUp returns the smallest multiple of tick not below x.
func RoundUp(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	t := decimal.NewFromFloat(tick)
	return decimal.NewFromFloat(x).Div(t).Ceil().Mul(t).InexactFloat64()
}

// RoundDown returns the largest multiple of tick not above x.
func RoundDown(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	t := decimal.NewFromFloat(tick)
	return decimal.NewFromFloat(x).Div(t).Floor().Mul(t).InexactFloat64()
}

// RoundNearest returns the closest multiple of tick, rounding up on an exact tie.
func RoundNearest(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	dx := decimal.NewFromFloat(x)
	t := decimal.NewFromFloat(tick)
	steps := dx.Div(t)
	up := steps.Ceil().Mul(t)
	down := steps.Floor().Mul(t)

	if dx.Sub(down).GreaterThanOrEqual(up.Sub(dx)) {
		return up.InexactFloat64()
	}
	return down.InexactFloat64()
}

// RoundSide rounds bids down and asks up, anything else to nearest.
func RoundSide(x, tick float64, side domain.Side) float64 {
	switch side {
	case domain.SideBid:
		return RoundDown(x, tick)
	case domain.SideAsk:
		return RoundUp(x, tick)
	default:
		return RoundNearest(x, tick)
	}
}
