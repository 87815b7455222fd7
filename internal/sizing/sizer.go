// Package sizing converts a notional budget into exchange-compliant order
// quantities under lot-size and minimum-notional filters.
package sizing

import "math"

// ratioTol absorbs float drift when a quantity divides a step almost exactly,
// so 0.07/0.01 snaps to 7 instead of ceiling up to 8.
const ratioTol = 1e-9

type Sizer struct {
	minQty      float64
	stepSize    float64
	minNotional float64
	precision   int
}

// New derives the rounding precision from the step size once so every
// quantity for the symbol is quantized the same way.
func New(minQty, stepSize, minNotional float64) Sizer {
	precision := 0
	if stepSize > 0 && stepSize < 1 {
		precision = int(math.Round(-math.Log10(stepSize)))
	}
	return Sizer{
		minQty:      minQty,
		stepSize:    stepSize,
		minNotional: minNotional,
		precision:   precision,
	}
}

// Quantity returns the largest step-aligned quantity whose notional fits the
// budget while satisfying minQty and minNotional. A zero return means the
// order is infeasible at this price and the caller should skip the trade.
func (s Sizer) Quantity(budget, price float64) float64 {
	if price <= 0 || s.stepSize <= 0 {
		return 0
	}
	maxQty := budget / price
	minRequired := math.Max(s.minQty, s.minNotional/price)
	minAdj := s.round(math.Ceil(minRequired/s.stepSize-ratioTol) * s.stepSize)
	if maxQty < minAdj {
		return 0
	}
	adj := s.round(math.Floor(maxQty/s.stepSize+ratioTol) * s.stepSize)
	if adj >= minAdj {
		return adj
	}
	return minAdj
}

func (s Sizer) round(qty float64) float64 {
	factor := math.Pow10(s.precision)
	return math.Round(qty*factor) / factor
}
