package math

import "math/big"

// Rescale moves amount from one decimal precision to another.
// Scaling up multiplies; scaling down truncates toward zero. FixedPoint
// conversions and payouts go through it.
func Rescale(amount *big.Int, from, to int) *big.Int {
	out := new(big.Int)
	if amount == nil {
		return out
	}
	switch {
	case from == to:
		out.Set(amount)
	case from < to:
		out.Mul(amount, Pow10(to-from))
	default:
		out.Quo(amount, Pow10(from-to))
	}
	return out
}
